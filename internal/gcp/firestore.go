package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/xformflow/internal/docstore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RecordStore keeps form records as Firestore documents. The revision lives
// in the document's _rev field and is checked inside a transaction.
type RecordStore struct {
	client     *firestore.Client
	collection string
}

func NewRecordStore(client *firestore.Client, collection string) *RecordStore {
	return &RecordStore{client: client, collection: collection}
}

func (s *RecordStore) Get(ctx context.Context, id string) (docstore.Record, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, translateFirestoreError(id, err)
	}
	rec := docstore.Record(snap.Data())
	rec[docstore.KeyID] = id
	return rec, nil
}

func (s *RecordStore) Save(ctx context.Context, rec docstore.Record) (string, error) {
	id := rec.ID()
	if id == "" {
		return "", docstore.ErrInvalidInput
	}
	body := rec.WithoutAttachments()
	delete(body, docstore.KeyID)
	delete(body, docstore.KeyRevision)
	hashed, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode record %s: %w", id, err)
	}

	ref := s.client.Collection(s.collection).Doc(id)
	var revision string
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current := ""
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			if rec.Revision() != "" {
				return &docstore.NotFoundError{ID: id}
			}
		case err != nil:
			return err
		default:
			current, _ = snap.Data()[docstore.KeyRevision].(string)
			if rec.Revision() != current {
				return &docstore.ConflictError{ID: id, Revision: rec.Revision(), CurrentRevision: current}
			}
		}
		revision = docstore.NextRevision(current, hashed)
		doc := make(map[string]any, len(body)+1)
		for k, v := range body {
			doc[k] = v
		}
		doc[docstore.KeyRevision] = revision
		return tx.Set(ref, doc)
	})
	if err != nil {
		return "", translateFirestoreError(id, err)
	}
	return revision, nil
}

// Exists reports whether a record is stored under id.
func (s *RecordStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, translateFirestoreError(id, err)
	}
	return true, nil
}

func translateFirestoreError(id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrConflict) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return &docstore.NotFoundError{ID: id}
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return &docstore.ConflictError{ID: id}
	}
	return fmt.Errorf("firestore operation on %s failed: %w", id, err)
}
