// Package docstore defines the revisioned document store that form documents are
// persisted against, together with the backends shipped in this repository.
package docstore

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Reserved record keys managed by the store rather than by callers.
const (
	KeyID          = "_id"
	KeyRevision    = "_rev"
	KeyAttachments = "_attachments"
	KeyDocType     = "doc_type"
)

// Record is the raw, loosely typed layout of a persisted document.
type Record map[string]any

// ID returns the record's identifier, or "" when unset.
func (r Record) ID() string {
	s, _ := r[KeyID].(string)
	return s
}

// Revision returns the revision the record was read at, or "" for a new record.
func (r Record) Revision() string {
	s, _ := r[KeyRevision].(string)
	return s
}

// DocType returns the record's type tag, or "" when absent.
func (r Record) DocType() string {
	s, _ := r[KeyDocType].(string)
	return s
}

// WithoutAttachments returns a shallow copy minus the store-managed attachment stubs.
func (r Record) WithoutAttachments() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if k == KeyAttachments {
			continue
		}
		out[k] = v
	}
	return out
}

// AttachmentStub describes an attachment without carrying its bytes.
type AttachmentStub struct {
	ContentType string `json:"content_type" firestore:"content_type"`
	Length      int64  `json:"length" firestore:"length"`
	Digest      string `json:"digest" firestore:"digest"`
}

// Store is the contract form documents are persisted against. Revisions give
// optimistic concurrency: Save with an empty revision creates the record and
// fails with a conflict if the id is taken; Save with a revision updates the
// record only if that revision is still current. Attachments live beside the
// record and survive a Save until deleted.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, rec Record) (string, error)
	PutAttachment(ctx context.Context, id, name, contentType string, data []byte) error
	FetchAttachment(ctx context.Context, id, name string) ([]byte, error)
	DeleteAttachment(ctx context.Context, id, name string) error
}

// Digest returns the couch-style "md5-<base64>" digest of an attachment body.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return "md5-" + base64.StdEncoding.EncodeToString(sum[:])
}

// NextRevision derives the revision that follows prev for the given body.
func NextRevision(prev string, body []byte) string {
	seq := 0
	if head, _, ok := strings.Cut(prev, "-"); ok {
		seq, _ = strconv.Atoi(head)
	}
	sum := md5.Sum(body)
	return fmt.Sprintf("%d-%s", seq+1, hex.EncodeToString(sum[:]))
}

// StubsValue renders attachment stubs the way Get reports them under _attachments.
func StubsValue(stubs map[string]AttachmentStub) map[string]any {
	out := make(map[string]any, len(stubs))
	for name, stub := range stubs {
		out[name] = map[string]any{
			"content_type": stub.ContentType,
			"length":       stub.Length,
			"digest":       stub.Digest,
		}
	}
	return out
}
