package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
)

type ArchiverFunction struct {
	xforms *XFormService
}

func NewArchiver(ctx context.Context) (*ArchiverFunction, error) {
	config, err := LoadXFormConfig()
	if err != nil {
		return nil, err
	}
	xforms, err := NewXFormServiceFromConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	slog.Info("Archiver logic initialized.")
	return NewArchiverWithService(xforms), nil
}

func NewArchiverWithService(xforms *XFormService) *ArchiverFunction {
	return &ArchiverFunction{xforms: xforms}
}

func (f *ArchiverFunction) Process(ctx context.Context, req *models.ArchiveRequest) (*models.ArchiveResponse, error) {
	id := strings.TrimSpace(req.DocumentID)
	if id == "" {
		return nil, fmt.Errorf("%w: documentId is required", docstore.ErrInvalidInput)
	}
	logCtx := f.xforms.logger.With("docId", id)
	logCtx.Info("Archiving form document.")

	doc, err := f.xforms.ArchiveByID(ctx, id)
	if err != nil {
		logCtx.Error("Failed to archive form document.", "error", err)
		return nil, err
	}
	logCtx.Info("Form document archived.", "revision", doc.Revision)
	return &models.ArchiveResponse{Status: models.StatusArchived, DocumentID: doc.ID, DocType: doc.DocType}, nil
}
