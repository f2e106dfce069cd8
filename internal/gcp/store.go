package gcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xformflow/internal/docstore"
)

func init() {
	docstore.Register("firestore", OpenStore)
}

// Store is the Google Cloud docstore backend: records in Firestore,
// attachments in a GCS bucket.
type Store struct {
	records     *RecordStore
	attachments *AttachmentStore
}

func NewStore(records *RecordStore, attachments *AttachmentStore) *Store {
	return &Store{records: records, attachments: attachments}
}

// OpenStore builds a Store from firestore://<project>/<collection>?bucket=<bucket>.
// Missing parts fall back to PROJECT_ID, FIRESTORE_COLLECTION and
// ATTACHMENT_BUCKET.
func OpenStore(dsn string) (docstore.Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid firestore dsn: %w", err)
	}
	projectID := parsed.Host
	if projectID == "" {
		projectID = GetEnv("PROJECT_ID", "")
	}
	collection := strings.Trim(parsed.Path, "/")
	if collection == "" {
		collection = GetEnv("FIRESTORE_COLLECTION", "xforms")
	}
	bucket := parsed.Query().Get("bucket")
	if bucket == "" {
		bucket = GetEnv("ATTACHMENT_BUCKET", "")
	}
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if bucket == "" {
		return nil, fmt.Errorf("ATTACHMENT_BUCKET environment variable must be set")
	}

	ctx := context.Background()
	firestoreClient, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return NewStore(
		NewRecordStore(firestoreClient, collection),
		NewAttachmentStore(storageClient.Bucket(bucket)),
	), nil
}

func (s *Store) Get(ctx context.Context, id string) (docstore.Record, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	stubs, err := s.attachments.Stubs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stubs) > 0 {
		rec[docstore.KeyAttachments] = docstore.StubsValue(stubs)
	}
	return rec, nil
}

func (s *Store) Save(ctx context.Context, rec docstore.Record) (string, error) {
	return s.records.Save(ctx, rec)
}

// PutAttachment requires the record to exist, like the other backends.
func (s *Store) PutAttachment(ctx context.Context, id, name, contentType string, data []byte) error {
	if id == "" || name == "" {
		return docstore.ErrInvalidInput
	}
	ok, err := s.records.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &docstore.NotFoundError{ID: id}
	}
	return s.attachments.Put(ctx, id, name, contentType, data)
}

func (s *Store) FetchAttachment(ctx context.Context, id, name string) ([]byte, error) {
	return s.attachments.Fetch(ctx, id, name)
}

func (s *Store) DeleteAttachment(ctx context.Context, id, name string) error {
	return s.attachments.Delete(ctx, id, name)
}
