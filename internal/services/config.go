package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/gcp"
)

type XFormConfig struct {
	StoreDSN     string
	EventSinkURL string
	Retry        RetryPolicy
}

// LoadXFormConfig reads the service configuration from the environment.
func LoadXFormConfig() (XFormConfig, error) {
	config := XFormConfig{
		StoreDSN:     gcp.GetEnv("STORE_DSN", "firestore://"),
		EventSinkURL: gcp.GetEnv("EVENT_SINK_URL", ""),
		Retry:        RetryPolicy{MaxAttempts: DefaultSaveAttempts, Delay: DefaultSaveRetryDelay},
	}
	if raw := gcp.GetEnv("SAVE_MAX_ATTEMPTS", ""); raw != "" {
		attempts, err := strconv.Atoi(raw)
		if err != nil || attempts < 1 {
			return XFormConfig{}, fmt.Errorf("SAVE_MAX_ATTEMPTS must be a positive integer, got %q", raw)
		}
		config.Retry.MaxAttempts = attempts
	}
	if raw := gcp.GetEnv("SAVE_RETRY_DELAY", ""); raw != "" {
		delay, err := time.ParseDuration(raw)
		if err != nil || delay < 0 {
			return XFormConfig{}, fmt.Errorf("SAVE_RETRY_DELAY must be a non-negative duration, got %q", raw)
		}
		if delay == 0 {
			delay = NoRetryDelay
		}
		config.Retry.Delay = delay
	}
	return config, nil
}

// NewXFormServiceFromConfig opens the configured store and lifecycle sink.
func NewXFormServiceFromConfig(ctx context.Context, config XFormConfig) (*XFormService, error) {
	store, err := docstore.Open(config.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	var sink LifecycleSink = NopSink()
	if config.EventSinkURL != "" {
		eventSink, err := gcp.NewEventSink(config.EventSinkURL)
		if err != nil {
			return nil, err
		}
		sink = eventSink
	}
	slog.Info("XForm service initialized.",
		"store", storeScheme(config.StoreDSN),
		"eventSink", config.EventSinkURL != "",
		"saveMaxAttempts", config.Retry.MaxAttempts,
		"saveRetryDelay", config.Retry.Delay.String(),
	)
	return NewXFormService(store, XFormOptions{Sink: sink, Retry: config.Retry}), nil
}

// storeScheme keeps credentials in the dsn out of the logs.
func storeScheme(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "invalid"
	}
	return parsed.Scheme
}
