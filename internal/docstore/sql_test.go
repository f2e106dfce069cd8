package docstore

import (
	"context"
	"path/filepath"
	"testing"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore("sqlite3", filepath.Join(t.TempDir(), "xforms.db"))
	if err != nil {
		t.Fatalf("new sql store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStoreRevisionedSave(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	rev1, err := store.Save(ctx, Record{KeyID: "doc-1", KeyDocType: "XFormInstance", "xmlns": "urn:a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Save(ctx, Record{KeyID: "doc-1", KeyDocType: "XFormInstance"}); !IsConflict(err) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	rec, err := store.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Revision() != rev1 || rec["xmlns"] != "urn:a" {
		t.Fatalf("unexpected record: %#v", rec)
	}

	rec[KeyDocType] = "XFormArchived"
	rev2, err := store.Save(ctx, rec)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rev2 == rev1 {
		t.Fatalf("revision did not advance")
	}

	rec[KeyRevision] = rev1
	if _, err := store.Save(ctx, rec); !IsConflict(err) {
		t.Fatalf("expected conflict on stale revision, got %v", err)
	}

	if _, err := store.Save(ctx, Record{KeyID: "missing", KeyRevision: "1-abc"}); !IsNotFound(err) {
		t.Fatalf("expected not found on update of missing doc, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLStoreAttachments(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	if _, err := store.Save(ctx, Record{KeyID: "doc-1", KeyDocType: "XFormInstance"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := []byte("<data/>")
	if err := store.PutAttachment(ctx, "doc-1", "form.xml", "text/xml", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutAttachment(ctx, "doc-1", "form.xml", "text/xml", []byte("<data>2</data>")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.FetchAttachment(ctx, "doc-1", "form.xml")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != "<data>2</data>" {
		t.Fatalf("unexpected attachment body %q", got)
	}

	rec, err := store.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stubs, _ := rec[KeyAttachments].(map[string]any)
	stub, _ := stubs["form.xml"].(map[string]any)
	if stub["digest"] != Digest([]byte("<data>2</data>")) {
		t.Fatalf("unexpected stub %#v", stub)
	}

	if err := store.PutAttachment(ctx, "nope", "form.xml", "text/xml", payload); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.FetchAttachment(ctx, "doc-1", "other.bin"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := store.DeleteAttachment(ctx, "doc-1", "form.xml"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.FetchAttachment(ctx, "doc-1", "form.xml"); !IsNotFound(err) {
		t.Fatalf("expected deleted attachment to be gone, got %v", err)
	}
	if err := store.DeleteAttachment(ctx, "doc-1", "form.xml"); !IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
