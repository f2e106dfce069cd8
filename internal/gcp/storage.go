package gcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xformflow/internal/docstore"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// AttachmentStore keeps attachments as GCS objects named <docId>/<name>.
type AttachmentStore struct {
	bucket *storage.BucketHandle
}

func NewAttachmentStore(bucket *storage.BucketHandle) *AttachmentStore {
	return &AttachmentStore{bucket: bucket}
}

func objectName(docID, name string) string {
	return docID + "/" + name
}

// Put writes an attachment. The write is conditional on the generation read
// just before it, so two writers racing on one attachment surface as a
// conflict rather than a silent overwrite.
func (a *AttachmentStore) Put(ctx context.Context, docID, name, contentType string, data []byte) error {
	obj := a.bucket.Object(objectName(docID, name))
	cond := storage.Conditions{DoesNotExist: true}
	attrs, err := obj.Attrs(ctx)
	switch {
	case err == nil:
		cond = storage.Conditions{GenerationMatch: attrs.Generation}
	case errors.Is(err, storage.ErrObjectNotExist):
	default:
		return translateStorageError(docID, name, err)
	}

	writer := obj.If(cond).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return translateStorageError(docID, name, err)
	}
	if err := writer.Close(); err != nil {
		return translateStorageError(docID, name, err)
	}
	return nil
}

func (a *AttachmentStore) Fetch(ctx context.Context, docID, name string) ([]byte, error) {
	reader, err := a.bucket.Object(objectName(docID, name)).NewReader(ctx)
	if err != nil {
		return nil, translateStorageError(docID, name, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gcs attachment %s: %w", objectName(docID, name), err)
	}
	return data, nil
}

func (a *AttachmentStore) Delete(ctx context.Context, docID, name string) error {
	if err := a.bucket.Object(objectName(docID, name)).Delete(ctx); err != nil {
		return translateStorageError(docID, name, err)
	}
	return nil
}

// Stubs lists the attachments stored for docID. Digests come from the
// object's md5, which matches docstore.Digest.
func (a *AttachmentStore) Stubs(ctx context.Context, docID string) (map[string]docstore.AttachmentStub, error) {
	prefix := docID + "/"
	stubs := map[string]docstore.AttachmentStub{}
	it := a.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list attachments of %s: %w", docID, err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		stubs[name] = docstore.AttachmentStub{
			ContentType: attrs.ContentType,
			Length:      attrs.Size,
			Digest:      "md5-" + base64.StdEncoding.EncodeToString(attrs.MD5),
		}
	}
	return stubs, nil
}

func translateStorageError(docID, name string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return &docstore.NotFoundError{ID: docID, Attachment: name}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return &docstore.ConflictError{ID: docID}
	}
	return fmt.Errorf("gcs attachment %s failed: %w", objectName(docID, name), err)
}
