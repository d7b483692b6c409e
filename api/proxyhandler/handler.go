package proxyhandler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/hiyocord/hiyocord-nexus/gateway"
)

// PathPrefix is stripped from proxied paths; the rest is the Discord API path.
const PathPrefix = "/proxy/discord/api/v10"

type Proxy interface {
	Forward(ctx context.Context, req *gateway.ProxyRequest) (*http.Response, error)
}

// responseHeaderDrops are not copied from Discord's response.
var responseHeaderDrops = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
	"Set-Cookie":        true,
}

type Handler struct {
	proxy Proxy
	log   *slog.Logger
}

func NewHandler(proxy Proxy, log *slog.Logger) *Handler {
	return &Handler{
		proxy: proxy,
		log:   log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.HandleFunc(PathPrefix+"/*", h.HandleProxy)
}

// HandleProxy relays a signed worker request to the Discord API.
//
// URL format: ANY /proxy/discord/api/v10/{discord api path}
// Required headers:
//   - X-Hiyocord-Timestamp, X-Hiyocord-Algorithm, X-Hiyocord-Signature
//   - X-Hiyocord-Manifest-Id and/or Authorization: Bot <provenance token>
//
// Response: Discord's response for statuses below 500, else 502.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	path := strings.TrimPrefix(r.URL.EscapedPath(), PathPrefix)
	if path == "" {
		path = "/"
	}

	resp, err := h.proxy.Forward(r.Context(), &gateway.ProxyRequest{
		Method:   r.Method,
		Path:     path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header,
		Body:     body,
	})
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		if responseHeaderDrops[name] {
			continue
		}
		w.Header()[name] = values
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Warn("Failed to relay Discord response", "err", err)
	}
}
