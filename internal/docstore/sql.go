package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	sqlDocsTableName        = "xform_docs"
	sqlAttachmentsTableName = "xform_attachments"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// SQLStore keeps records and attachments in two tables. It speaks to postgres
// through lib/pq and to sqlite through go-sqlite3.
type SQLStore struct {
	driver string
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewSQLStore returns a store for driver "postgres" or "sqlite3". The
// connection and schema are set up lazily on first use.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	driver = strings.TrimSpace(driver)
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("%w: sql driver %s", ErrNotImplemented, driver)
	}
	return &SQLStore{driver: driver, dsn: dsn, openDB: sql.Open}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) ensureReady(ctx context.Context) error {
	s.initOnce.Do(func() {
		db, err := s.openDB(s.driver, s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		blobType := "BYTEA"
		if s.driver == "sqlite3" {
			blobType = "BLOB"
		}
		statements := []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					revision TEXT NOT NULL,
					doc_type TEXT NOT NULL,
					body TEXT NOT NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`, sqlDocsTableName),
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					doc_id TEXT NOT NULL,
					name TEXT NOT NULL,
					content_type TEXT NOT NULL,
					length BIGINT NOT NULL,
					digest TEXT NOT NULL,
					data %s NOT NULL,
					PRIMARY KEY (doc_id, name)
				)`, sqlAttachmentsTableName, blobType),
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}

func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	var revision, body string
	query := fmt.Sprintf("SELECT revision, body FROM %s WHERE id = $1", sqlDocsTableName)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&revision, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	rec[KeyID] = id
	rec[KeyRevision] = revision

	stubs, err := s.attachmentStubs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(stubs) > 0 {
		rec[KeyAttachments] = StubsValue(stubs)
	}
	return rec, nil
}

func (s *SQLStore) attachmentStubs(ctx context.Context, id string) (map[string]AttachmentStub, error) {
	query := fmt.Sprintf("SELECT name, content_type, length, digest FROM %s WHERE doc_id = $1", sqlAttachmentsTableName)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stubs := map[string]AttachmentStub{}
	for rows.Next() {
		var name string
		var stub AttachmentStub
		if err := rows.Scan(&name, &stub.ContentType, &stub.Length, &stub.Digest); err != nil {
			return nil, err
		}
		stubs[name] = stub
	}
	return stubs, rows.Err()
}

func (s *SQLStore) Save(ctx context.Context, rec Record) (string, error) {
	id := strings.TrimSpace(rec.ID())
	if id == "" {
		return "", ErrInvalidInput
	}
	if err := s.ensureReady(ctx); err != nil {
		return "", err
	}
	body := rec.WithoutAttachments()
	delete(body, KeyID)
	delete(body, KeyRevision)
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	revision := NextRevision(rec.Revision(), data)

	if rec.Revision() == "" {
		query := fmt.Sprintf("INSERT INTO %s (id, revision, doc_type, body) VALUES ($1, $2, $3, $4)", sqlDocsTableName)
		if _, err := s.db.ExecContext(ctx, query, id, revision, rec.DocType(), string(data)); err != nil {
			if isUniqueViolation(err) {
				return "", &ConflictError{ID: id}
			}
			return "", err
		}
		return revision, nil
	}

	query := fmt.Sprintf(`
		UPDATE %s SET revision = $1, doc_type = $2, body = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND revision = $5`, sqlDocsTableName)
	result, err := s.db.ExecContext(ctx, query, revision, rec.DocType(), string(data), id, rec.Revision())
	if err != nil {
		return "", err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 1 {
		return revision, nil
	}

	var current string
	lookup := fmt.Sprintf("SELECT revision FROM %s WHERE id = $1", sqlDocsTableName)
	err = s.db.QueryRowContext(ctx, lookup, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &NotFoundError{ID: id}
	}
	if err != nil {
		return "", err
	}
	return "", &ConflictError{ID: id, Revision: rec.Revision(), CurrentRevision: current}
}

func (s *SQLStore) PutAttachment(ctx context.Context, id, name, contentType string, data []byte) error {
	if id == "" || name == "" {
		return ErrInvalidInput
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	var exists int
	lookup := fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1", sqlDocsTableName)
	err := s.db.QueryRowContext(ctx, lookup, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{ID: id}
	}
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (doc_id, name, content_type, length, digest, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id, name)
		DO UPDATE SET content_type = excluded.content_type, length = excluded.length,
			digest = excluded.digest, data = excluded.data`, sqlAttachmentsTableName)
	_, err = s.db.ExecContext(ctx, query, id, name, contentType, int64(len(data)), Digest(data), data)
	return err
}

func (s *SQLStore) FetchAttachment(ctx context.Context, id, name string) ([]byte, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	var data []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE doc_id = $1 AND name = $2", sqlAttachmentsTableName)
	err := s.db.QueryRowContext(ctx, query, id, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id, Attachment: name}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLStore) DeleteAttachment(ctx context.Context, id, name string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1 AND name = $2", sqlAttachmentsTableName)
	res, err := s.db.ExecContext(ctx, query, id, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{ID: id, Attachment: name}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
