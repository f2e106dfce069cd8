package models

// These structs define the JSON payloads for HTTP requests and responses
// of the receiver and archiver Cloud Functions.

// Submission statuses reported by the receiver.
const (
	StatusReceived   = "received"
	StatusDuplicate  = "duplicate"
	StatusEdited     = "edited"
	StatusError      = "error"
	StatusArchived   = "archived"
	StatusDeprecated = "deprecated"
)

// SubmissionAttachment is an auxiliary file sent alongside the form xml.
type SubmissionAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// SubmissionRequest is the JSON form of a submission. The receiver also
// accepts a bare xml body.
type SubmissionRequest struct {
	XML         string                 `json:"xml"`
	Attachments []SubmissionAttachment `json:"attachments,omitempty"`
}

// AttachmentInfo describes an attachment stored for a submission. Pages is
// set for PDF attachments.
type AttachmentInfo struct {
	Name        string `json:"name" yaml:"name"`
	ContentType string `json:"contentType" yaml:"contentType"`
	Length      int64  `json:"length" yaml:"length"`
	Pages       int    `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// SubmissionResponse is the output of the receiver function.
type SubmissionResponse struct {
	Status       string           `json:"status"`
	DocumentID   string           `json:"documentId"`
	DocType      DocType          `json:"docType"`
	DeprecatedID string           `json:"deprecatedId,omitempty"`
	Attachments  []AttachmentInfo `json:"attachments,omitempty"`
}

// ArchiveRequest is the input for the archiver function.
type ArchiveRequest struct {
	DocumentID string `json:"documentId"`
}

// ArchiveResponse is the output of the archiver function.
type ArchiveResponse struct {
	Status     string  `json:"status"`
	DocumentID string  `json:"documentId"`
	DocType    DocType `json:"docType"`
}

// LifecycleEvent is the data of a published lifecycle CloudEvent.
type LifecycleEvent struct {
	Event      string  `json:"event"`
	DocumentID string  `json:"documentId"`
	DocType    DocType `json:"docType"`
	Summary    string  `json:"summary"`
}
