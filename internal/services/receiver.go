package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
	"github.com/Lllllllleong/xformflow/internal/xmlform"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

const origIDKey = "orig_id"

// ReceiverFunction turns raw submissions into stored form documents.
type ReceiverFunction struct {
	xforms *XFormService
	logger *slog.Logger
}

func NewReceiver(ctx context.Context) (*ReceiverFunction, error) {
	config, err := LoadXFormConfig()
	if err != nil {
		return nil, err
	}
	xforms, err := NewXFormServiceFromConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	slog.Info("Receiver logic initialized.")
	return NewReceiverWithService(xforms), nil
}

func NewReceiverWithService(xforms *XFormService) *ReceiverFunction {
	return &ReceiverFunction{xforms: xforms, logger: xforms.logger}
}

// Process stores one submission. Unparseable xml becomes a submission error
// log. Otherwise the document id is the meta instanceID, and an existing
// document under that id makes this either a duplicate (same xml) or an
// edit (different xml) that deprecates the stored version.
func (f *ReceiverFunction) Process(ctx context.Context, req *models.SubmissionRequest) (*models.SubmissionResponse, error) {
	raw := []byte(req.XML)
	logCtx := f.logger.With("md5", models.MD5Hex(raw))
	logCtx.Info("Processing submission.", "bytes", len(raw), "attachments", len(req.Attachments))

	form, xmlns, err := xmlform.Parse(raw)
	if err != nil {
		logCtx.Warn("Submission could not be parsed.", "error", err)
		errLog, lerr := f.xforms.RecordSubmissionError(ctx, raw, err.Error())
		if lerr != nil {
			return nil, fmt.Errorf("failed to record submission error: %w", lerr)
		}
		return &models.SubmissionResponse{
			Status:     models.StatusError,
			DocumentID: errLog.ID,
			DocType:    models.DocTypeSubmissionErrorLog,
		}, nil
	}

	doc := models.NewInstance("", xmlns, form, f.xforms.now().UTC())
	if md := doc.Metadata(); md != nil && strings.TrimSpace(md.InstanceID) != "" {
		doc.ID = strings.TrimSpace(md.InstanceID)
	} else {
		doc.ID = f.xforms.newID()
	}
	logCtx = logCtx.With("docId", doc.ID, "xmlns", xmlns)

	rec, err := f.xforms.store.Get(ctx, doc.ID)
	if docstore.IsNotFound(err) {
		return f.storeNew(ctx, logCtx, doc, raw, req.Attachments)
	}
	if err != nil {
		logCtx.Error("Failed to look up existing document.", "error", err)
		return nil, err
	}
	existing, err := f.xforms.Resolve(rec)
	if err != nil {
		logCtx.Error("Existing record under this id is not a form document.", "error", err)
		return nil, err
	}

	existingXML, err := f.xforms.GetXML(ctx, existing)
	if err != nil && !docstore.IsNotFound(err) {
		logCtx.Error("Failed to read existing xml.", "error", err)
		return nil, err
	}
	if err == nil && models.MD5Hex(existingXML) == models.MD5Hex(raw) {
		return f.storeDuplicate(ctx, logCtx, doc, raw, req.Attachments)
	}
	return f.storeEdit(ctx, logCtx, existing, existingXML, doc, raw, req.Attachments)
}

func (f *ReceiverFunction) storeNew(ctx context.Context, logCtx *slog.Logger, doc *models.FormDocument, raw []byte, extras []models.SubmissionAttachment) (*models.SubmissionResponse, error) {
	if err := f.xforms.SaveAs(ctx, doc, models.DocTypeInstance); err != nil {
		logCtx.Error("Failed to save form instance.", "error", err)
		return nil, err
	}
	infos, err := f.attach(ctx, logCtx, doc, raw, extras)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Stored new form instance.")
	return &models.SubmissionResponse{Status: models.StatusReceived, DocumentID: doc.ID, DocType: doc.DocType, Attachments: infos}, nil
}

func (f *ReceiverFunction) storeDuplicate(ctx context.Context, logCtx *slog.Logger, doc *models.FormDocument, raw []byte, extras []models.SubmissionAttachment) (*models.SubmissionResponse, error) {
	origID := doc.ID
	doc.ID = f.xforms.newID()
	doc.Problem = fmt.Sprintf("Form is a duplicate of another! (%s)", origID)
	if err := f.xforms.SaveAs(ctx, doc, models.DocTypeDuplicate); err != nil {
		logCtx.Error("Failed to save duplicate.", "error", err)
		return nil, err
	}
	infos, err := f.attach(ctx, logCtx, doc, raw, extras)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Stored duplicate submission.", "duplicateId", doc.ID)
	return &models.SubmissionResponse{Status: models.StatusDuplicate, DocumentID: doc.ID, DocType: doc.DocType, Attachments: infos}, nil
}

// storeEdit keeps the stored version as a deprecated copy under a new id,
// then replaces the original id with the new submission. Attachments of the
// previous version move to the deprecated copy only.
func (f *ReceiverFunction) storeEdit(ctx context.Context, logCtx *slog.Logger, existing *models.FormDocument, existingXML []byte, doc *models.FormDocument, raw []byte, extras []models.SubmissionAttachment) (*models.SubmissionResponse, error) {
	deprecated, err := existing.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", existing.ID, err)
	}
	deprecated.ID = f.xforms.newID()
	deprecated.Revision = ""
	deprecated.DeprecatedDate = nil
	deprecated.Attachments = nil
	deprecated.LegacyXML = ""
	if deprecated.Extra == nil {
		deprecated.Extra = map[string]any{}
	}
	deprecated.Extra[origIDKey] = existing.ID
	logCtx = logCtx.With("deprecatedId", deprecated.ID)

	if err := f.xforms.SaveAs(ctx, deprecated, models.DocTypeDeprecated); err != nil {
		logCtx.Error("Failed to save deprecated copy.", "error", err)
		return nil, err
	}
	if err := f.copyAttachments(ctx, existing, existingXML, deprecated); err != nil {
		logCtx.Error("Failed to copy attachments to deprecated copy.", "error", err)
		return nil, err
	}
	f.xforms.notify(ctx, EventDeprecated, deprecated)

	doc.Revision = existing.Revision
	if err := f.xforms.SaveAs(ctx, doc, models.DocTypeInstance); err != nil {
		logCtx.Error("Failed to save edited form instance.", "error", err)
		return nil, err
	}
	for name := range existing.AttachmentsExcludingPrimary() {
		if err := f.xforms.DeleteAttachment(ctx, doc, name); err != nil {
			logCtx.Error("Failed to remove attachment of the previous version.", "name", name, "error", err)
			return nil, err
		}
	}
	infos, err := f.attach(ctx, logCtx, doc, raw, extras)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Stored edited form instance.")
	return &models.SubmissionResponse{
		Status:       models.StatusEdited,
		DocumentID:   doc.ID,
		DocType:      doc.DocType,
		DeprecatedID: deprecated.ID,
		Attachments:  infos,
	}, nil
}

// copyAttachments copies every attachment of src onto dst. The xml is
// written from what GetXML returned, so a legacy inline payload lands in
// form.xml on the copy.
func (f *ReceiverFunction) copyAttachments(ctx context.Context, src *models.FormDocument, srcXML []byte, dst *models.FormDocument) error {
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)

	put := func(name, contentType string, data []byte) error {
		if err := f.xforms.store.PutAttachment(gctx, dst.ID, name, contentType, data); err != nil {
			return fmt.Errorf("attachment %s: %w", name, err)
		}
		mu.Lock()
		dst.SetAttachment(name, newStub(contentType, data))
		mu.Unlock()
		return nil
	}

	if srcXML != nil {
		eg.Go(func() error { return put(models.AttachmentName, xmlContentType, srcXML) })
	}
	for name, stub := range src.AttachmentsExcludingPrimary() {
		eg.Go(func() error {
			data, err := f.xforms.store.FetchAttachment(gctx, src.ID, name)
			if err != nil {
				return fmt.Errorf("attachment %s: %w", name, err)
			}
			return put(name, stub.ContentType, data)
		})
	}
	return eg.Wait()
}

func (f *ReceiverFunction) attach(ctx context.Context, logCtx *slog.Logger, doc *models.FormDocument, raw []byte, extras []models.SubmissionAttachment) ([]models.AttachmentInfo, error) {
	if err := f.xforms.PutXML(ctx, doc, raw); err != nil {
		logCtx.Error("Failed to attach form xml.", "error", err)
		return nil, err
	}
	infos := make([]models.AttachmentInfo, 0, len(extras))
	for _, extra := range extras {
		if extra.Name == "" || extra.Name == models.AttachmentName {
			logCtx.Warn("Skipping attachment with reserved or empty name.", "name", extra.Name)
			continue
		}
		if err := f.xforms.PutAttachment(ctx, doc, extra.Name, extra.ContentType, extra.Data); err != nil {
			logCtx.Error("Failed to store attachment.", "name", extra.Name, "error", err)
			return nil, err
		}
		info := models.AttachmentInfo{Name: extra.Name, ContentType: extra.ContentType, Length: int64(len(extra.Data))}
		if isPDF(extra) {
			pages, err := pageCount(extra.Data)
			if err != nil {
				logCtx.Warn("Could not read PDF page count.", "name", extra.Name, "error", err)
			} else {
				info.Pages = pages
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func isPDF(a models.SubmissionAttachment) bool {
	return strings.EqualFold(a.ContentType, "application/pdf") || strings.HasSuffix(strings.ToLower(a.Name), ".pdf")
}

func pageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}
