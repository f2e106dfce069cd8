package docstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

type memoryDoc struct {
	revision string
	body     []byte
}

type memoryAttachment struct {
	stub AttachmentStub
	data []byte
}

// MemoryStore is a process-local Store. Records are kept as JSON so callers
// never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]memoryDoc
	attachments map[string]map[string]memoryAttachment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        map[string]memoryDoc{},
		attachments: map[string]map[string]memoryAttachment{},
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	var rec Record
	if err := json.Unmarshal(doc.body, &rec); err != nil {
		return nil, err
	}
	rec[KeyID] = id
	rec[KeyRevision] = doc.revision
	if atts := s.attachments[id]; len(atts) > 0 {
		stubs := make(map[string]AttachmentStub, len(atts))
		for name, att := range atts {
			stubs[name] = att.stub
		}
		rec[KeyAttachments] = StubsValue(stubs)
	}
	return rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) (string, error) {
	id := strings.TrimSpace(rec.ID())
	if id == "" {
		return "", ErrInvalidInput
	}
	body := rec.WithoutAttachments()
	delete(body, KeyID)
	delete(body, KeyRevision)
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.docs[id]
	switch {
	case rec.Revision() == "" && exists:
		return "", &ConflictError{ID: id, CurrentRevision: existing.revision}
	case rec.Revision() != "" && !exists:
		return "", &NotFoundError{ID: id}
	case exists && rec.Revision() != existing.revision:
		return "", &ConflictError{ID: id, Revision: rec.Revision(), CurrentRevision: existing.revision}
	}
	revision := NextRevision(existing.revision, data)
	s.docs[id] = memoryDoc{revision: revision, body: data}
	return revision, nil
}

func (s *MemoryStore) PutAttachment(ctx context.Context, id, name, contentType string, data []byte) error {
	if id == "" || name == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return &NotFoundError{ID: id}
	}
	atts := s.attachments[id]
	if atts == nil {
		atts = map[string]memoryAttachment{}
		s.attachments[id] = atts
	}
	atts[name] = memoryAttachment{
		stub: AttachmentStub{ContentType: contentType, Length: int64(len(data)), Digest: Digest(data)},
		data: append([]byte(nil), data...),
	}
	return nil
}

func (s *MemoryStore) DeleteAttachment(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	atts := s.attachments[id]
	if _, ok := atts[name]; !ok {
		return &NotFoundError{ID: id, Attachment: name}
	}
	delete(atts, name)
	if len(atts) == 0 {
		delete(s.attachments, id)
	}
	return nil
}

func (s *MemoryStore) FetchAttachment(ctx context.Context, id, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	att, ok := s.attachments[id][name]
	if !ok {
		return nil, &NotFoundError{ID: id, Attachment: name}
	}
	return append([]byte(nil), att.data...), nil
}
