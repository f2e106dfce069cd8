package services

import (
	"context"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
)

const (
	DefaultSaveAttempts   = 10
	DefaultSaveRetryDelay = 500 * time.Millisecond

	// NoRetryDelay resubmits a conflicting save without pausing.
	NoRetryDelay time.Duration = -1
)

// RetryPolicy bounds how often a conflicting save is resubmitted.
// MaxAttempts counts every call to the store, the first one included.
// A zero Delay means DefaultSaveRetryDelay; use NoRetryDelay to skip the pause.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultSaveAttempts
	}
	switch {
	case p.Delay == 0:
		p.Delay = DefaultSaveRetryDelay
	case p.Delay < 0:
		p.Delay = 0
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// saveRecord is the only path to Store.Save. Conflicts are resubmitted with
// the same record and revision up to the policy bound; any other error is
// returned at once. Once the bound is spent the store's conflict error is
// returned as is.
func (s *XFormService) saveRecord(ctx context.Context, rec docstore.Record) (string, error) {
	logCtx := s.logger.With("docId", rec.ID(), "docType", rec.DocType())
	for attempt := 1; ; attempt++ {
		rev, err := s.store.Save(ctx, rec)
		if err == nil {
			return rev, nil
		}
		if !docstore.IsConflict(err) {
			return "", err
		}
		if attempt == 1 {
			logCtx.Error("Document save got a precondition failed.", "error", err)
		}
		if attempt >= s.retry.MaxAttempts {
			return "", err
		}
		logCtx.Debug("Retrying document save.", "attempt", attempt+1, "maxAttempts", s.retry.MaxAttempts, "delay", s.retry.Delay.String())
		if err := s.sleep(ctx, s.retry.Delay); err != nil {
			logCtx.Error("Context cancelled during save retry. Aborting retries.", "error", err)
			return "", err
		}
	}
}
