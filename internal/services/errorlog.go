package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
)

// RecordSubmissionError stores a submission that could not be parsed. The
// log is created first because attachments need an existing record, then
// the raw payload is attached as form.xml and the log saved again.
func (s *XFormService) RecordSubmissionError(ctx context.Context, raw []byte, message string) (*models.SubmissionErrorLog, error) {
	log := models.NewSubmissionErrorLog(s.newID(), raw, message, s.now().UTC())
	logCtx := s.logger.With("docId", log.ID, "md5", log.MD5)

	if err := s.saveErrorLog(ctx, log); err != nil {
		logCtx.Error("Failed to create submission error log.", "error", err)
		return nil, err
	}
	if err := s.store.PutAttachment(ctx, log.ID, models.AttachmentName, xmlContentType, raw); err != nil {
		logCtx.Error("Failed to attach submission payload.", "error", err)
		return nil, fmt.Errorf("failed to attach payload to error log %s: %w", log.ID, err)
	}
	log.SetAttachment(models.AttachmentName, newStub(xmlContentType, raw))
	if err := s.saveErrorLog(ctx, log); err != nil {
		logCtx.Error("Failed to update submission error log.", "error", err)
		return nil, err
	}
	logCtx.Info("Recorded submission error.", "problem", message)
	return log, nil
}

func (s *XFormService) saveErrorLog(ctx context.Context, log *models.SubmissionErrorLog) error {
	rec, err := log.ToRecord()
	if err != nil {
		return err
	}
	rev, err := s.saveRecord(ctx, rec)
	if err != nil {
		return err
	}
	log.Revision = rev
	return nil
}

// GetErrorLog loads a submission error log; other record types are not found.
func (s *XFormService) GetErrorLog(ctx context.Context, id string) (*models.SubmissionErrorLog, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.ErrorLogFromRecord(rec)
}

// ErrorLogXML reads the payload of an error log. Error logs always carry
// form.xml, so there is no inline fallback.
func (s *XFormService) ErrorLogXML(ctx context.Context, log *models.SubmissionErrorLog) ([]byte, error) {
	data, err := s.store.FetchAttachment(ctx, log.ID, models.AttachmentName)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, &docstore.NotFoundError{ID: log.ID, Attachment: models.AttachmentName}
		}
		return nil, err
	}
	return data, nil
}
