package gcp

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/Lllllllleong/xformflow/internal/models"
	"github.com/google/uuid"
)

const (
	EventSource     = "xformflow/xforms"
	EventTypePrefix = "org.xformflow.xform."
)

// EventSink publishes lifecycle events as CloudEvents.
type EventSink struct {
	client cloudevents.Client
	source string
}

// NewEventSink sends events over HTTP to target.
func NewEventSink(target string) (*EventSink, error) {
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	return NewEventSinkWithClient(client, EventSource), nil
}

func NewEventSinkWithClient(client cloudevents.Client, source string) *EventSink {
	if source == "" {
		source = EventSource
	}
	return &EventSink{client: client, source: source}
}

func (s *EventSink) Notify(ctx context.Context, event string, doc models.Document) error {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(s.source)
	e.SetType(EventTypePrefix + event)
	e.SetSubject(doc.DocumentID())
	e.SetTime(time.Now().UTC())
	payload := models.LifecycleEvent{
		Event:      event,
		DocumentID: doc.DocumentID(),
		DocType:    doc.Tag(),
		Summary:    doc.String(),
	}
	if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return fmt.Errorf("failed to encode %s event for %s: %w", event, doc.DocumentID(), err)
	}
	if result := s.client.Send(ctx, e); !cloudevents.IsACK(result) {
		return fmt.Errorf("failed to deliver %s event for %s: %w", event, doc.DocumentID(), result)
	}
	return nil
}
