package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/Lllllllleong/xformflow/internal/docstore"
	"github.com/Lllllllleong/xformflow/internal/models"
	"github.com/Lllllllleong/xformflow/internal/services"
)

var (
	archiverInstance *services.ArchiverFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleArchive", handleArchive)
	functions.CloudEvent("ArchiveOnEvent", archiveOnEvent)
}

func main() {}

func initArchiver() error {
	once.Do(func() {
		archiverInstance, initErr = services.NewArchiver(context.Background())
	})
	return initErr
}

// handleArchive is the HTTP handler for archiving a single document.
func handleArchive(w http.ResponseWriter, r *http.Request) {
	if err := initArchiver(); err != nil {
		slog.Error("Critical: Archiver initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := archiverInstance.Process(r.Context(), &req)
	switch {
	case errors.Is(err, docstore.ErrInvalidInput):
		http.Error(w, "Bad Request: documentId is required", http.StatusBadRequest)
		return
	case docstore.IsNotFound(err):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	case docstore.IsConflict(err):
		http.Error(w, "Conflict: document is being modified, try again", http.StatusConflict)
		return
	case err != nil:
		// Error is already logged with context in the Process method.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "documentId", req.DocumentID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}

// archiveOnEvent archives the document named in the event's data.
func archiveOnEvent(ctx context.Context, e cloudevents.Event) error {
	if err := initArchiver(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var req models.ArchiveRequest
	if len(e.Data()) > 0 {
		if err := json.Unmarshal(e.Data(), &req); err != nil {
			slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
			return fmt.Errorf("json.Unmarshal: %w", err)
		}
	}
	if req.DocumentID == "" {
		req.DocumentID = e.Subject()
	}

	_, err := archiverInstance.Process(ctx, &req)
	if docstore.IsNotFound(err) {
		// Not retryable; acknowledge the event.
		slog.Warn("Archive event for unknown document dropped", "documentId", req.DocumentID, "eventId", e.ID())
		return nil
	}
	return err
}
