package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
)

// DocType is the doc_type discriminator persisted with every form record.
type DocType string

const (
	DocTypeInstance           DocType = "XFormInstance"
	DocTypeError              DocType = "XFormError"
	DocTypeDuplicate          DocType = "XFormDuplicate"
	DocTypeDeprecated         DocType = "XFormDeprecated"
	DocTypeArchived           DocType = "XFormArchived"
	DocTypeSubmissionErrorLog DocType = "SubmissionErrorLog"
)

// Well-known keys inside the form payload and on the record itself.
const (
	AttachmentName = "form.xml"

	TagForm      = "form"
	TagXML       = "xml"
	TagType      = "#type"
	TagName      = "@name"
	TagVersion   = "@version"
	TagUIVersion = "@uiVersion"
	TagNamespace = "@xmlns"
	TagMeta      = "meta"
)

var ErrInvalidDocument = errors.New("invalid document")

var primaryDocTypes = []DocType{
	DocTypeInstance,
	DocTypeError,
	DocTypeDuplicate,
	DocTypeDeprecated,
	DocTypeArchived,
}

// PrimaryDocTypes lists the tags a FormDocument may carry at rest.
func PrimaryDocTypes() []DocType {
	return append([]DocType(nil), primaryDocTypes...)
}

// IsPrimary reports whether t is one of the five FormDocument variants.
func (t DocType) IsPrimary() bool {
	for _, candidate := range primaryDocTypes {
		if t == candidate {
			return true
		}
	}
	return false
}

// Document is implemented by every record type this package persists.
type Document interface {
	fmt.Stringer
	DocumentID() string
	Tag() DocType
}

// FormDocument is a submitted form in one of its lifecycle variants. The
// variant is carried by DocType; the variant-only fields are meaningful for
// the variants that declare them (Problem for the error-like variants,
// DeprecatedDate for deprecated forms, ArchivedDate for archived forms).
type FormDocument struct {
	ID                string                             `json:"_id"`
	Revision          string                             `json:"_rev,omitempty"`
	DocType           DocType                            `json:"doc_type"`
	Xmlns             string                             `json:"xmlns"`
	ReceivedOn        time.Time                          `json:"received_on"`
	PartialSubmission bool                               `json:"partial_submission"`
	Form              map[string]any                     `json:"form"`
	Problem           string                             `json:"problem,omitempty"`
	DeprecatedDate    *time.Time                         `json:"deprecated_date,omitempty"`
	ArchivedDate      *time.Time                         `json:"archived_date,omitempty"`
	Attachments       map[string]docstore.AttachmentStub `json:"_attachments,omitempty"`

	// LegacyXML is the inline payload of records that predate form.xml
	// attachments. It is read as a fallback and never written.
	LegacyXML string `json:"xml,omitempty"`

	// Extra round-trips record keys this type does not model.
	Extra map[string]any `json:"-"`
}

var formDocumentKeys = map[string]bool{
	"_id": true, "_rev": true, "doc_type": true, "xmlns": true, "received_on": true,
	"partial_submission": true, "form": true, "problem": true, "deprecated_date": true,
	"archived_date": true, "_attachments": true, "xml": true,
}

// NewInstance returns an unsaved Instance for the given payload.
func NewInstance(id, xmlns string, form map[string]any, receivedOn time.Time) *FormDocument {
	if form == nil {
		form = map[string]any{}
	}
	return &FormDocument{
		ID:         id,
		DocType:    DocTypeInstance,
		Xmlns:      xmlns,
		ReceivedOn: receivedOn,
		Form:       form,
	}
}

func (d *FormDocument) DocumentID() string { return d.ID }

func (d *FormDocument) Tag() DocType { return d.DocType }

func (d *FormDocument) String() string {
	return fmt.Sprintf("%s (%s)", d.Type(), d.Xmlns)
}

// Retag sets the document's variant and fills the fields that variant
// requires. The previous tag does not matter: any FormDocument can be
// persisted as any primary variant.
func (d *FormDocument) Retag(tag DocType, now time.Time) error {
	if !tag.IsPrimary() {
		return fmt.Errorf("%w: %q is not a form document type", ErrInvalidDocument, tag)
	}
	d.DocType = tag
	switch tag {
	case DocTypeDeprecated:
		if d.DeprecatedDate == nil {
			t := now.UTC()
			d.DeprecatedDate = &t
		}
	case DocTypeArchived:
		if d.ArchivedDate == nil {
			t := now.UTC()
			d.ArchivedDate = &t
		}
	}
	return nil
}

// Validate checks that the tag and the variant fields agree.
func (d *FormDocument) Validate() error {
	if !d.DocType.IsPrimary() {
		return fmt.Errorf("%w: %q is not a form document type", ErrInvalidDocument, d.DocType)
	}
	if d.DocType == DocTypeDeprecated && d.DeprecatedDate == nil {
		return fmt.Errorf("%w: deprecated document %s has no deprecated_date", ErrInvalidDocument, d.ID)
	}
	if d.DocType == DocTypeArchived && d.ArchivedDate == nil {
		return fmt.Errorf("%w: archived document %s has no archived_date", ErrInvalidDocument, d.ID)
	}
	return nil
}

// Type is the form's root element name.
func (d *FormDocument) Type() string { return d.formString(TagType) }

func (d *FormDocument) Name() string { return d.formString(TagName) }

func (d *FormDocument) Version() string { return d.formString(TagVersion) }

func (d *FormDocument) UIVersion() string { return d.formString(TagUIVersion) }

func (d *FormDocument) formString(key string) string {
	v, ok := d.Form[key]
	if !ok || v == nil {
		return ""
	}
	return stringValue(v)
}

// Metadata returns the typed view of the form's meta block, or nil when the
// form has no meta block at all.
func (d *FormDocument) Metadata() *Metadata {
	block, ok := d.Form[TagMeta]
	if !ok {
		return nil
	}
	m, _ := block.(map[string]any)
	return NewMetadata(CleanMeta(m))
}

// AttachmentsExcludingPrimary returns the auxiliary attachments, i.e. every
// attachment except form.xml.
func (d *FormDocument) AttachmentsExcludingPrimary() map[string]docstore.AttachmentStub {
	out := make(map[string]docstore.AttachmentStub, len(d.Attachments))
	for name, stub := range d.Attachments {
		if name == AttachmentName {
			continue
		}
		out[name] = stub
	}
	return out
}

// HasAttachment reports whether the record lists an attachment under name.
func (d *FormDocument) HasAttachment(name string) bool {
	_, ok := d.Attachments[name]
	return ok
}

// SetAttachment records the stub for an attachment just written to the store.
func (d *FormDocument) SetAttachment(name string, stub docstore.AttachmentStub) {
	if d.Attachments == nil {
		d.Attachments = map[string]docstore.AttachmentStub{}
	}
	d.Attachments[name] = stub
}

// Clone returns a deep copy suitable for persisting under a different id.
func (d *FormDocument) Clone() (*FormDocument, error) {
	rec, err := encodeRecord(d, d.Extra)
	if err != nil {
		return nil, err
	}
	return decodeFormDocument(rec)
}

// ToRecord encodes the document into its persisted layout, rejecting a
// tag/shape mismatch.
func (d *FormDocument) ToRecord() (docstore.Record, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return encodeRecord(d, d.Extra)
}

// DocumentFromRecord decodes a raw record. It does not check the tag; that
// is the registry's job.
func DocumentFromRecord(rec docstore.Record) (*FormDocument, error) {
	return decodeFormDocument(rec)
}

func decodeFormDocument(rec docstore.Record) (*FormDocument, error) {
	var doc FormDocument
	extra, err := decodeRecord(rec, formDocumentKeys, &doc)
	if err != nil {
		return nil, err
	}
	if doc.Form == nil {
		doc.Form = map[string]any{}
	}
	doc.Extra = extra
	return &doc, nil
}
