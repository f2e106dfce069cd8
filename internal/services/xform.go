package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
	"github.com/Lllllllleong/xformflow/internal/xmlform"
	"github.com/google/uuid"
)

const xmlContentType = "text/xml"

type XFormOptions struct {
	Sink   LifecycleSink
	Logger *slog.Logger
	Retry  RetryPolicy
	Now    func() time.Time
	NewID  func() string
	Sleep  func(ctx context.Context, d time.Duration) error
}

// XFormService loads, classifies and persists form documents against a
// docstore.Store. Every write goes through the retrying save path.
type XFormService struct {
	store  docstore.Store
	sink   LifecycleSink
	logger *slog.Logger
	retry  RetryPolicy
	now    func() time.Time
	newID  func() string
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewXFormService(store docstore.Store, opts XFormOptions) *XFormService {
	s := &XFormService{
		store:  store,
		sink:   opts.Sink,
		logger: opts.Logger,
		retry:  opts.Retry.withDefaults(),
		now:    opts.Now,
		newID:  opts.NewID,
		sleep:  opts.Sleep,
	}
	if s.sink == nil {
		s.sink = NopSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	return s
}

// Store exposes the backing store for callers that work with raw records.
func (s *XFormService) Store() docstore.Store { return s.store }

// variants is the doc_type dispatch table for form documents.
var variants = func() map[models.DocType]bool {
	table := map[models.DocType]bool{}
	for _, tag := range models.PrimaryDocTypes() {
		table[tag] = true
	}
	return table
}()

// Resolve builds the form document variant named by the record's doc_type.
// A missing or unknown tag is reported as not found.
func (s *XFormService) Resolve(rec docstore.Record) (*models.FormDocument, error) {
	tag := models.DocType(rec.DocType())
	if !variants[tag] {
		return nil, &docstore.NotFoundError{ID: rec.ID(), DocType: rec.DocType()}
	}
	doc, err := models.DocumentFromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", rec.ID(), err)
	}
	return doc, nil
}

// Get loads a form document by id and resolves its variant.
func (s *XFormService) Get(ctx context.Context, id string) (*models.FormDocument, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Resolve(rec)
}

// SaveAs persists doc under the given variant tag, whatever tag it carried
// before. The tag is forced onto the document before it is encoded, so the
// stored doc_type always matches the variant being saved. Documents without
// an id are assigned one.
func (s *XFormService) SaveAs(ctx context.Context, doc *models.FormDocument, tag models.DocType) error {
	if doc.ID == "" {
		doc.ID = s.newID()
	}
	if err := doc.Retag(tag, s.now()); err != nil {
		return err
	}
	rec, err := doc.ToRecord()
	if err != nil {
		return err
	}
	rev, err := s.saveRecord(ctx, rec)
	if err != nil {
		return err
	}
	doc.Revision = rev
	return nil
}

// Save persists doc under the variant it currently carries.
func (s *XFormService) Save(ctx context.Context, doc *models.FormDocument) error {
	return s.SaveAs(ctx, doc, doc.DocType)
}

// Archive moves doc to the archived variant and tells the lifecycle sink.
// Archiving an archived document saves it again and succeeds. Sink failures
// are logged only.
func (s *XFormService) Archive(ctx context.Context, doc *models.FormDocument) error {
	if err := s.SaveAs(ctx, doc, models.DocTypeArchived); err != nil {
		return err
	}
	s.notify(ctx, EventArchived, doc)
	return nil
}

// ArchiveByID loads and archives the document stored under id.
func (s *XFormService) ArchiveByID(ctx context.Context, id string) (*models.FormDocument, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Archive(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *XFormService) notify(ctx context.Context, event string, doc models.Document) {
	if err := s.sink.Notify(ctx, event, doc); err != nil {
		s.logger.Error("Lifecycle sink failed.", "event", event, "docId", doc.DocumentID(), "docType", doc.Tag(), "error", err)
	}
}

// GetXML returns the submitted xml. The form.xml attachment is authoritative;
// records from before attachments were used fall back to their inline xml.
func (s *XFormService) GetXML(ctx context.Context, doc *models.FormDocument) ([]byte, error) {
	data, err := s.store.FetchAttachment(ctx, doc.ID, models.AttachmentName)
	if err == nil {
		return data, nil
	}
	if !docstore.IsNotFound(err) {
		return nil, err
	}
	s.logger.Warn("No xml attachment found, trying legacy inline xml.", "docId", doc.ID)
	if doc.LegacyXML == "" {
		return nil, &docstore.NotFoundError{ID: doc.ID, Attachment: models.AttachmentName}
	}
	return []byte(doc.LegacyXML), nil
}

// XMLMD5 is the hex md5 of whatever GetXML returns.
func (s *XFormService) XMLMD5(ctx context.Context, doc *models.FormDocument) (string, error) {
	data, err := s.GetXML(ctx, doc)
	if err != nil {
		return "", err
	}
	return models.MD5Hex(data), nil
}

// TopLevelTags pairs each top level xml element with its value in the form.
func (s *XFormService) TopLevelTags(ctx context.Context, doc *models.FormDocument) (models.TopLevelTags, error) {
	data, err := s.GetXML(ctx, doc)
	if err != nil {
		return nil, err
	}
	names, err := xmlform.TopLevelNames(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read top level tags of %s: %w", doc.ID, err)
	}
	tags := make(models.TopLevelTags, 0, len(names))
	for _, name := range names {
		value, _ := doc.XPath(models.TagForm + "/" + name)
		tags = append(tags, models.TagValue{Name: name, Value: value})
	}
	return tags, nil
}

// PutAttachment stores data under name for a saved document and records the
// stub on doc.
func (s *XFormService) PutAttachment(ctx context.Context, doc *models.FormDocument, name, contentType string, data []byte) error {
	if err := s.store.PutAttachment(ctx, doc.ID, name, contentType, data); err != nil {
		return fmt.Errorf("failed to attach %s to %s: %w", name, doc.ID, err)
	}
	doc.SetAttachment(name, newStub(contentType, data))
	return nil
}

// DeleteAttachment removes an attachment from the document. A missing
// attachment is not an error.
func (s *XFormService) DeleteAttachment(ctx context.Context, doc *models.FormDocument, name string) error {
	if err := s.store.DeleteAttachment(ctx, doc.ID, name); err != nil && !docstore.IsNotFound(err) {
		return fmt.Errorf("failed to remove %s from %s: %w", name, doc.ID, err)
	}
	delete(doc.Attachments, name)
	return nil
}

// PutXML stores the submitted xml as the document's form.xml attachment.
func (s *XFormService) PutXML(ctx context.Context, doc *models.FormDocument, data []byte) error {
	return s.PutAttachment(ctx, doc, models.AttachmentName, xmlContentType, data)
}

func newStub(contentType string, data []byte) docstore.AttachmentStub {
	return docstore.AttachmentStub{
		ContentType: contentType,
		Length:      int64(len(data)),
		Digest:      docstore.Digest(data),
	}
}
