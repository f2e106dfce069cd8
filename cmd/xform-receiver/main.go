package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/xformflow/internal/models"
	"github.com/Lllllllleong/xformflow/internal/services"
)

// maxSubmissionBytes caps a single submission body, attachments included.
const maxSubmissionBytes = 32 << 20

var (
	receiverInstance *services.ReceiverFunction
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleSubmission", handleSubmission)
}

func main() {}

// handleSubmission accepts either a bare xml body or a JSON SubmissionRequest
// carrying the xml and its attachments.
func handleSubmission(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		receiverInstance, initErr = services.NewReceiver(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Receiver initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	if err != nil {
		slog.Warn("Could not read request body", "error", err)
		http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
		return
	}

	var req models.SubmissionRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.Unmarshal(body, &req); err != nil {
			slog.Warn("Could not decode request body", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
	} else {
		req.XML = string(body)
	}

	res, err := receiverInstance.Process(r.Context(), &req)
	if err != nil {
		// Error is already logged with context in the Process method.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if res.Status == models.StatusError {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "documentId", res.DocumentID)
	}
}
