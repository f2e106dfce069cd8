package docstore

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("document update conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// NotFoundError reports a missing document, a missing attachment, or a
// document whose type tag is not one this package family knows how to build.
type NotFoundError struct {
	ID         string
	Attachment string
	DocType    string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Attachment != "":
		return fmt.Sprintf("attachment %q of document %s not found", e.Attachment, e.ID)
	case e.DocType != "":
		return fmt.Sprintf("document %s has unrecognized doc_type %q", e.ID, e.DocType)
	default:
		return fmt.Sprintf("document %s not found", e.ID)
	}
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError is returned when a save presents a revision that is no longer
// current, or tries to create a record whose id is already taken. It is the
// "write precondition failed" condition retried by the save protocol.
type ConflictError struct {
	ID              string
	Revision        string
	CurrentRevision string
}

func (e *ConflictError) Error() string {
	if e.Revision == "" {
		return fmt.Sprintf("document update conflict: %s already exists", e.ID)
	}
	return fmt.Sprintf("document update conflict: %s at revision %s (current %s)", e.ID, e.Revision, e.CurrentRevision)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConflict reports whether err is the store's transient conflict condition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err means the document or attachment is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
