package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/metrics"
	"github.com/hiyocord/hiyocord-nexus/permissions"
	"github.com/hiyocord/hiyocord-nexus/provenance"
)

// DiscordForwarder sends a request to the Discord API with the bot token.
type DiscordForwarder interface {
	Forward(ctx context.Context, method, apiPath, rawQuery string, headers http.Header, body io.Reader) (*http.Response, error)
}

// ProxyRequest is a worker call to the Discord API proxy.
type ProxyRequest struct {
	Method string
	// Path is the escaped Discord API path below the version root, e.g. "/channels/1/messages".
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// DiscordProxy forwards authorized worker calls to the Discord API.
type DiscordProxy struct {
	repo    interfaces.ManifestRepository
	auth    *WorkerAuthenticator
	tokens  *provenance.Issuer
	discord DiscordForwarder
	log     *slog.Logger
}

func NewDiscordProxy(repo interfaces.ManifestRepository, auth *WorkerAuthenticator, tokens *provenance.Issuer, discord DiscordForwarder, log *slog.Logger) *DiscordProxy {
	return &DiscordProxy{
		repo:    repo,
		auth:    auth,
		tokens:  tokens,
		discord: discord,
		log:     log,
	}
}

// Forward authenticates the calling worker, checks its grants and relays
// the call to Discord. req.Path must pass permissions.ValidatePath; it is
// matched and forwarded verbatim. The returned response is Discord's, with a status
// below 500; the caller must close its body. Discord 5xx answers and
// transport failures are reported as ErrUpstream.
func (p *DiscordProxy) Forward(ctx context.Context, req *ProxyRequest) (*http.Response, error) {
	manifest, err := p.authenticate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			metrics.RecordAuthFailure("proxy")
			var authErr *AuthError
			if errors.As(err, &authErr) {
				p.log.Warn("Proxy authentication failed", "err", authErr.Reason, slog.String("path", req.Path))
			}
		}
		metrics.RecordProxyRequest(metrics.OutcomeFailed)
		return nil, err
	}

	if err := permissions.ValidatePath(req.Path); err != nil {
		metrics.RecordProxyRequest(metrics.OutcomeFailed)
		p.log.Warn("Proxy request path rejected", "err", err, slog.String("manifestID", manifest.ID), slog.String("path", req.Path))
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("%w: %v", ErrValidation, err)}
	}

	if !permissions.IsAllowed(manifest, req.Method, req.Path) {
		metrics.RecordProxyRequest(metrics.OutcomeDenied)
		scope := permissions.RequiredScope(req.Method, req.Path)
		p.log.Info("Proxy request denied", slog.String("manifestID", manifest.ID), slog.String("scope", scope))
		return nil, &PermissionError{ManifestID: manifest.ID, RequiredScope: scope}
	}

	resp, err := p.discord.Forward(ctx, req.Method, req.Path, req.RawQuery, upstreamHeaders(req.Header), bytes.NewReader(req.Body))
	if errors.Is(err, interfaces.ErrKeyNotConfigured) {
		metrics.RecordProxyRequest(metrics.OutcomeFailed)
		p.log.Error("Discord bot token is not configured", "err", err)
		return nil, configuration(err)
	}
	if err != nil {
		metrics.RecordProxyRequest(metrics.OutcomeFailed)
		p.log.Error("Discord request failed", "err", err, slog.String("manifestID", manifest.ID))
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		metrics.RecordProxyRequest(metrics.OutcomeFailed)
		p.log.Warn("Discord returned server error", slog.Int("status", resp.StatusCode), slog.String("path", req.Path))
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: discord returned status %d", ErrUpstream, resp.StatusCode)}
	}

	metrics.RecordProxyRequest(metrics.OutcomeForwarded)
	p.log.Debug("Proxied Discord request",
		slog.String("manifestID", manifest.ID),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode))
	return resp, nil
}

// authenticate resolves the calling manifest from the manifest id header
// and/or a provenance token in "Authorization: Bot <token>", then checks
// the request signature against that manifest's key.
func (p *DiscordProxy) authenticate(ctx context.Context, req *ProxyRequest) (*interfaces.Manifest, error) {
	manifestID := req.Header.Get(HeaderManifestID)

	if token, ok := botToken(req.Header.Get("Authorization")); ok {
		claims, err := p.tokens.Verify(token)
		if err != nil {
			return nil, unauthorized(err)
		}
		if manifestID != "" && manifestID != claims.ManifestID {
			return nil, unauthorized(fmt.Errorf("manifest id header %q does not match token manifest %q", manifestID, claims.ManifestID))
		}
		manifestID = claims.ManifestID
	}
	if manifestID == "" {
		return nil, unauthorized(errors.New("no manifest id presented"))
	}

	manifest, err := p.repo.FindByID(ctx, manifestID)
	if errors.Is(err, interfaces.ErrManifestNotFound) {
		return nil, unauthorized(fmt.Errorf("manifest %s not found", manifestID))
	}
	if err != nil {
		return nil, err
	}

	if err := p.auth.Authenticate(manifest, req.Header, req.Body); err != nil {
		return nil, err
	}
	return manifest, nil
}

func botToken(authorization string) (string, bool) {
	const prefix = "Bot "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(authorization[len(prefix):]), true
}

// upstreamHeaders drops caller credentials, signature material and
// headers the HTTP client manages itself.
func upstreamHeaders(h http.Header) http.Header {
	out := ForwardableHeaders(h)
	out.Del("Authorization")
	out.Del("Accept-Encoding")
	out.Del("Cookie")
	for name := range out {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "cf-") || strings.HasPrefix(lower, "x-forwarded-") {
			delete(out, name)
		}
	}
	return out
}
