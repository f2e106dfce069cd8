package services

import (
	"context"

	"github.com/Lllllllleong/xformflow/internal/models"
)

// Lifecycle event names delivered to a LifecycleSink.
const (
	EventArchived   = "archived"
	EventDeprecated = "deprecated"
)

// LifecycleSink observes document lifecycle transitions. Delivery is the
// sink's concern; a failing sink never fails the transition itself.
type LifecycleSink interface {
	Notify(ctx context.Context, event string, doc models.Document) error
}

// SinkFunc adapts a plain function to LifecycleSink.
type SinkFunc func(ctx context.Context, event string, doc models.Document) error

func (f SinkFunc) Notify(ctx context.Context, event string, doc models.Document) error {
	return f(ctx, event, doc)
}

type nopSink struct{}

func (nopSink) Notify(context.Context, string, models.Document) error { return nil }

// NopSink discards every event.
func NopSink() LifecycleSink { return nopSink{} }
