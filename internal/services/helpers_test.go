package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
)

// recordingHandler keeps every log record so tests can count them.
type recordingHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newRecordingLogger() (*slog.Logger, *recordingHandler) {
	h := &recordingHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(h), h
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range *h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

// conflictStore fails the next conflicts saves with a conflict, or every
// save when always is set.
type conflictStore struct {
	docstore.Store
	mu        sync.Mutex
	conflicts int
	always    bool
	saveErr   error
	saves     int
}

func (s *conflictStore) Save(ctx context.Context, rec docstore.Record) (string, error) {
	s.mu.Lock()
	s.saves++
	switch {
	case s.saveErr != nil:
		s.mu.Unlock()
		return "", s.saveErr
	case s.always || s.conflicts > 0:
		if s.conflicts > 0 {
			s.conflicts--
		}
		s.mu.Unlock()
		return "", &docstore.ConflictError{ID: rec.ID(), Revision: rec.Revision()}
	}
	s.mu.Unlock()
	return s.Store.Save(ctx, rec)
}

type recordedEvent struct {
	event string
	id    string
	tag   models.DocType
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (s *recordingSink) Notify(_ context.Context, event string, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{event: event, id: doc.DocumentID(), tag: doc.Tag()})
	return s.err
}

type fixture struct {
	store  docstore.Store
	svc    *XFormService
	sink   *recordingSink
	logs   *recordingHandler
	sleeps []time.Duration
}

func newFixture(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	if store == nil {
		store = docstore.NewMemoryStore()
	}
	logger, logs := newRecordingLogger()
	f := &fixture{store: store, sink: &recordingSink{}, logs: logs}
	ids := 0
	f.svc = NewXFormService(store, XFormOptions{
		Sink:   f.sink,
		Logger: logger,
		Now:    func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			ids++
			return fmt.Sprintf("gen-%d", ids)
		},
		Sleep: func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	})
	return f
}

const sampleXML = `<data xmlns="urn:reg" name="Registration"><Meta><instanceID>inst-1</instanceID><timeEnd>2020-01-01T00:00:00</timeEnd></Meta><name>Ada</name><reg/></data>`
