package manifesthandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/metrics"
	"github.com/hiyocord/hiyocord-nexus/tasks"
)

// ManifestService is the subset of gateway.ManifestService the worker API uses.
type ManifestService interface {
	AuthenticateRegistration(ctx context.Context, m *interfaces.Manifest, headers http.Header, body []byte) error
	AuthenticateDeletion(ctx context.Context, id string, headers http.Header, body []byte) error
	Register(ctx context.Context, m *interfaces.Manifest) (*tasks.Task, error)
	Delete(ctx context.Context, id string) (*tasks.Task, error)
}

// Handler serves the worker-facing manifest API. Command re-registration
// is handed off and not awaited.
type Handler struct {
	manifests ManifestService
	keyring   interfaces.Keyring
	log       *slog.Logger
}

func NewHandler(manifests ManifestService, keyring interfaces.Keyring, log *slog.Logger) *Handler {
	return &Handler{
		manifests: manifests,
		keyring:   keyring,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/manifest", h.HandleRegister)
	r.Delete("/manifest/{id}", h.HandleDelete)
	r.Get("/.well-known/nexus-public-key", h.HandlePublicKey)
}

// HandleRegister creates or replaces a manifest.
//
// URL format: POST /manifest
// The request must be signed with the manifest's own key when the id is
// new, and with the stored manifest's key when it replaces one.
//
// Response: ManifestChangeResponse with a pending command sync
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	manifest, err := DecodeManifest(body)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.manifests.AuthenticateRegistration(r.Context(), manifest, r.Header, body); err != nil {
		h.writeAuthError(w, err)
		return
	}

	task, err := h.manifests.Register(r.Context(), manifest)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.ManifestChangeResponse{ID: manifest.ID, CommandSync: PendingSync(task)})
}

// HandleDelete removes a manifest.
//
// URL format: DELETE /manifest/{id}
// The request must be signed with the stored manifest's key.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	if err := h.manifests.AuthenticateDeletion(r.Context(), id, r.Header, body); err != nil {
		h.writeAuthError(w, err)
		return
	}

	task, err := h.manifests.Delete(r.Context(), id)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.ManifestChangeResponse{ID: id, CommandSync: PendingSync(task)})
}

// HandlePublicKey publishes the gateway verification key.
//
// URL format: GET /.well-known/nexus-public-key
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	publicKey, err := h.keyring.PublicKey()
	if err != nil {
		api.WriteError(w, h.log, &gateway.RequestError{StatusCode: http.StatusInternalServerError, Err: errors.Join(gateway.ErrConfiguration, err)})
		return
	}
	api.WriteJSON(w, http.StatusOK, api.PublicKeyResponse{
		Algorithm: h.keyring.Algorithm(),
		PublicKey: publicKey,
	})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	if gateway.StatusCode(err) == http.StatusUnauthorized {
		metrics.RecordAuthFailure("manifest")
	}
	api.WriteError(w, h.log, err)
}

// DecodeManifest parses a manifest request body.
func DecodeManifest(body []byte) (*interfaces.Manifest, error) {
	var manifest interfaces.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, &gateway.RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("%w: manifest is not valid JSON: %v", gateway.ErrValidation, err)}
	}
	return &manifest, nil
}

// PendingSync describes a sync task that is not awaited.
func PendingSync(task *tasks.Task) api.CommandSyncStatus {
	if task == nil {
		return api.CommandSyncStatus{Status: "skipped"}
	}
	return api.CommandSyncStatus{TaskID: task.ID, Status: "pending"}
}
