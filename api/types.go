package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/hiyocord/hiyocord-nexus/tasks"
)

// MaxBodyBytes bounds request bodies read by the handlers.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PermissionDeniedResponse is returned when a proxied Discord call is
// outside the worker's grants.
type PermissionDeniedResponse struct {
	Error         string `json:"error"`
	RequiredScope string `json:"required_scope"`
	ManifestID    string `json:"manifest_id"`
}

// PublicKeyResponse publishes the key workers verify forwarded interactions with.
type PublicKeyResponse struct {
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
}

// CommandSyncStatus reports the command re-registration following a manifest change.
type CommandSyncStatus struct {
	TaskID string `json:"task_id,omitempty"`
	// Status is one of "pending", "completed", "failed" or "skipped".
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ManifestChangeResponse answers manifest registration and deletion.
type ManifestChangeResponse struct {
	ID          string            `json:"id"`
	CommandSync CommandSyncStatus `json:"command_sync"`
}

// CommandSyncQueueResponse reports the command sync queue to the dashboard.
type CommandSyncQueueResponse struct {
	Enabled     bool               `json:"enabled"`
	Stats       *tasks.Stats       `json:"stats,omitempty"`
	DeadLetters []tasks.DeadLetter `json:"dead_letters,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its status and writes a JSON error body. Details
// of authentication and internal failures are logged, never returned.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := gateway.StatusCode(err)

	var permErr *gateway.PermissionError
	if errors.As(err, &permErr) {
		WriteJSON(w, status, PermissionDeniedResponse{
			Error:         "Permission denied",
			RequiredScope: permErr.RequiredScope,
			ManifestID:    permErr.ManifestID,
		})
		return
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "err", err, slog.Int("status", status))
	}
	WriteJSON(w, status, ErrorResponse{Error: gateway.PublicMessage(err)})
}

// ReadBody reads at most MaxBodyBytes of the request body.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, &gateway.RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("%w: failed to read request body: %v", gateway.ErrValidation, err)}
	}
	return body, nil
}
