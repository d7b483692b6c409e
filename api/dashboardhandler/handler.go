package dashboardhandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/hiyocord/hiyocord-nexus/api/manifesthandler"
	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/metrics"
	"github.com/hiyocord/hiyocord-nexus/sessions"
	"github.com/hiyocord/hiyocord-nexus/tasks"
)

type ManifestService interface {
	List(ctx context.Context) ([]*interfaces.Manifest, error)
	Get(ctx context.Context, id string) (*interfaces.Manifest, error)
	Register(ctx context.Context, m *interfaces.Manifest) (*tasks.Task, error)
	Delete(ctx context.Context, id string) (*tasks.Task, error)
}

type SessionVerifier interface {
	Verify(token string) (*sessions.Claims, error)
}

// SyncStatus reports the command sync queue state.
type SyncStatus interface {
	Stats() tasks.Stats
	DeadLetters() []tasks.DeadLetter
}

type ctxKey struct{}

// Handler serves the dashboard API. Every route requires a session cookie.
// Manifest changes wait for the command sync to finish.
type Handler struct {
	manifests      ManifestService
	sessions       SessionVerifier
	allowedOrigins []string
	syncStatus     SyncStatus
	log            *slog.Logger
}

func NewHandler(manifests ManifestService, sessions SessionVerifier, log *slog.Logger) *Handler {
	return &Handler{
		manifests: manifests,
		sessions:  sessions,
		log:       log,
	}
}

// WithAllowedOrigins lets a dashboard served from one of origins call the
// API with credentials. Without origins no CORS headers are sent.
func (h *Handler) WithAllowedOrigins(origins ...string) *Handler {
	h.allowedOrigins = origins
	return h
}

// WithSyncStatus exposes the command sync queue at /api/command-sync.
func (h *Handler) WithSyncStatus(status SyncStatus) *Handler {
	h.syncStatus = status
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		if len(h.allowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   h.allowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
				AllowedHeaders:   []string{"Accept", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Get("/auth/me", h.HandleMe)
			r.Get("/manifests", h.HandleList)
			r.Get("/manifests/{id}", h.HandleGet)
			r.Post("/manifest", h.HandleRegister)
			r.Delete("/manifest/{id}", h.HandleDelete)
			r.Get("/command-sync", h.HandleCommandSync)
		})
		r.Post("/auth/logout", h.HandleLogout)
	})
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessions.CookieName)
		if err != nil {
			api.WriteJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: gateway.ErrAuthentication.Error()})
			return
		}
		claims, err := h.sessions.Verify(cookie.Value)
		if err != nil {
			metrics.RecordAuthFailure("dashboard")
			h.log.Info("Rejected dashboard session", "err", err)
			api.WriteJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: gateway.ErrAuthentication.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

// SessionFrom returns the session attached by the auth middleware.
func SessionFrom(ctx context.Context) (*sessions.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*sessions.Claims)
	return claims, ok
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := SessionFrom(r.Context())
	api.WriteJSON(w, http.StatusOK, map[string]any{"user": map[string]string{"id": claims.UserID}})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessions.ClearCookie())
	api.WriteJSON(w, http.StatusOK, struct{}{})
}

// HandleCommandSync reports pending, completed and dead-lettered command
// syncs. "enabled" is false when no Discord application is configured.
func (h *Handler) HandleCommandSync(w http.ResponseWriter, r *http.Request) {
	if h.syncStatus == nil {
		api.WriteJSON(w, http.StatusOK, api.CommandSyncQueueResponse{Enabled: false})
		return
	}
	stats := h.syncStatus.Stats()
	deadLetters := h.syncStatus.DeadLetters()
	if deadLetters == nil {
		deadLetters = []tasks.DeadLetter{}
	}
	api.WriteJSON(w, http.StatusOK, api.CommandSyncQueueResponse{
		Enabled:     true,
		Stats:       &stats,
		DeadLetters: deadLetters,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	manifests, err := h.manifests.List(r.Context())
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, manifests)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.manifests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, manifest)
}

// HandleRegister stores a manifest and waits for command re-registration,
// bounded by the request context.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	manifest, err := manifesthandler.DecodeManifest(body)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	task, err := h.manifests.Register(r.Context(), manifest)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	claims, _ := SessionFrom(r.Context())
	h.log.Info("Manifest registered from dashboard", slog.String("manifestID", manifest.ID), slog.String("userID", claims.UserID))
	api.WriteJSON(w, http.StatusOK, api.ManifestChangeResponse{ID: manifest.ID, CommandSync: h.awaitSync(r.Context(), task)})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.manifests.Delete(r.Context(), id)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	claims, _ := SessionFrom(r.Context())
	h.log.Info("Manifest deleted from dashboard", slog.String("manifestID", id), slog.String("userID", claims.UserID))
	api.WriteJSON(w, http.StatusOK, api.ManifestChangeResponse{ID: id, CommandSync: h.awaitSync(r.Context(), task)})
}

func (h *Handler) awaitSync(ctx context.Context, task *tasks.Task) api.CommandSyncStatus {
	if task == nil {
		return api.CommandSyncStatus{Status: "skipped"}
	}
	err := task.Wait(ctx)
	switch {
	case err == nil:
		return api.CommandSyncStatus{TaskID: task.ID, Status: "completed"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return api.CommandSyncStatus{TaskID: task.ID, Status: "pending"}
	default:
		h.log.Warn("Command sync failed", "err", err, slog.String("taskID", task.ID))
		return api.CommandSyncStatus{TaskID: task.ID, Status: "failed", Error: "command registration failed"}
	}
}
