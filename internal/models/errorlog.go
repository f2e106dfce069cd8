package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
)

// SubmissionErrorLog records a submission that could not be parsed far enough
// to become a FormDocument. It lives outside the FormDocument variants and
// always stores its payload as the form.xml attachment.
type SubmissionErrorLog struct {
	ID          string                             `json:"_id"`
	Revision    string                             `json:"_rev,omitempty"`
	DocType     DocType                            `json:"doc_type"`
	ReceivedOn  time.Time                          `json:"received_on"`
	MD5         string                             `json:"md5"`
	Problem     string                             `json:"problem"`
	Xmlns       string                             `json:"xmlns,omitempty"`
	Form        map[string]any                     `json:"form"`
	Attachments map[string]docstore.AttachmentStub `json:"_attachments,omitempty"`
	Extra       map[string]any                     `json:"-"`
}

var errorLogKeys = map[string]bool{
	"_id": true, "_rev": true, "doc_type": true, "received_on": true, "md5": true,
	"problem": true, "xmlns": true, "form": true, "_attachments": true,
}

// NewSubmissionErrorLog builds an unsaved log entry for raw.
func NewSubmissionErrorLog(id string, raw []byte, problem string, receivedOn time.Time) *SubmissionErrorLog {
	return &SubmissionErrorLog{
		ID:         id,
		DocType:    DocTypeSubmissionErrorLog,
		ReceivedOn: receivedOn,
		MD5:        MD5Hex(raw),
		Problem:    problem,
		Form:       map[string]any{},
	}
}

func (l *SubmissionErrorLog) DocumentID() string { return l.ID }

func (l *SubmissionErrorLog) Tag() DocType { return DocTypeSubmissionErrorLog }

func (l *SubmissionErrorLog) String() string {
	return fmt.Sprintf("Doc id: %s, Error %s", l.ID, l.Problem)
}

func (l *SubmissionErrorLog) SetAttachment(name string, stub docstore.AttachmentStub) {
	if l.Attachments == nil {
		l.Attachments = map[string]docstore.AttachmentStub{}
	}
	l.Attachments[name] = stub
}

func (l *SubmissionErrorLog) ToRecord() (docstore.Record, error) {
	l.DocType = DocTypeSubmissionErrorLog
	return encodeRecord(l, l.Extra)
}

// ErrorLogFromRecord decodes rec, refusing records of any other type.
func ErrorLogFromRecord(rec docstore.Record) (*SubmissionErrorLog, error) {
	if DocType(rec.DocType()) != DocTypeSubmissionErrorLog {
		return nil, &docstore.NotFoundError{ID: rec.ID(), DocType: rec.DocType()}
	}
	var l SubmissionErrorLog
	extra, err := decodeRecord(rec, errorLogKeys, &l)
	if err != nil {
		return nil, err
	}
	if l.Form == nil {
		l.Form = map[string]any{}
	}
	l.Extra = extra
	return &l, nil
}

// MD5Hex is the hex md5 digest used for payload comparison.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
