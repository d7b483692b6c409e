package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hiyocord/hiyocord-nexus/common"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/hiyocord/hiyocord-nexus/metrics"
	"github.com/hiyocord/hiyocord-nexus/provenance"
)

// NotRegisteredMessage is shown to Discord users when no worker owns an interaction.
const NotRegisteredMessage = "This interaction is not registered in Hiyocord Nexus."

// maxWorkerResponse bounds the interaction response read from a worker.
const maxWorkerResponse = 4 << 20

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Connection", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

type TransferConfig struct {
	TokenTTL time.Duration
	Timeout  time.Duration
}

// TransferResult is the interaction response to return to Discord.
type TransferResult struct {
	Outcome     string
	ManifestID  string
	StatusCode  int
	ContentType string
	Body        []byte
}

// InteractionTransfer routes verified Discord interactions to workers.
type InteractionTransfer struct {
	repo       interfaces.ManifestRepository
	keyring    interfaces.Keyring
	tokens     *provenance.Issuer
	httpClient *http.Client
	cfg        TransferConfig
	log        *slog.Logger
}

func NewInteractionTransfer(repo interfaces.ManifestRepository, keyring interfaces.Keyring, tokens *provenance.Issuer, cfg TransferConfig, log *slog.Logger) *InteractionTransfer {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = provenance.DefaultTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &InteractionTransfer{
		repo:       repo,
		keyring:    keyring,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}
}

// Transfer answers PINGs, returns the not-registered response for
// unrouted interactions, and otherwise forwards the interaction to the
// owning worker's /interactions endpoint and returns the worker's reply.
// headers and body are the request as received from Discord.
func (t *InteractionTransfer) Transfer(ctx context.Context, headers http.Header, body []byte) (*TransferResult, error) {
	interaction, err := interfaces.ParseInteraction(body)
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: errors.Join(ErrValidation, err)}
	}

	if interaction.Type == interfaces.InteractionPing {
		metrics.RecordInteraction(metrics.OutcomePing)
		return jsonResult(metrics.OutcomePing, "", map[string]int{"type": 1})
	}

	manifest, err := t.repo.FindByInteraction(ctx, interaction)
	if errors.Is(err, interfaces.ErrManifestNotFound) {
		metrics.RecordInteraction(metrics.OutcomeNotRegistered)
		t.log.Info("Interaction not registered",
			slog.String("interactionID", interaction.ID),
			slog.Int("type", int(interaction.Type)),
			slog.String("command", interaction.CommandName()),
			slog.String("customID", interaction.CustomID()))
		return NotRegisteredResult()
	}
	if err != nil {
		metrics.RecordInteraction(metrics.OutcomeFailed)
		return nil, err
	}

	result, err := t.forward(ctx, manifest, interaction, headers, body)
	if err != nil {
		metrics.RecordInteraction(metrics.OutcomeFailed)
		t.log.Error("Interaction transfer failed", "err", err,
			slog.String("manifestID", manifest.ID),
			slog.String("interactionID", interaction.ID))
		return nil, err
	}
	metrics.RecordInteraction(metrics.OutcomeForwarded)
	return result, nil
}

func (t *InteractionTransfer) forward(ctx context.Context, manifest *interfaces.Manifest, interaction *interfaces.Interaction, incoming http.Header, body []byte) (*TransferResult, error) {
	if interaction.ID == "" {
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("%w: interaction id is missing", ErrValidation)}
	}

	target, err := url.Parse(strings.TrimSuffix(manifest.BaseURL, "/") + "/interactions")
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: bad worker base_url: %v", ErrUpstream, err)}
	}

	token, err := t.tokens.Issue(manifest.ID, interaction.ID, t.cfg.TokenTTL)
	if err != nil {
		return nil, configuration(err)
	}

	headers := ForwardableHeaders(incoming)
	headers.Set(provenance.Header, token)
	headers.Set("User-Agent", common.PackageName+"/"+common.Version)
	// Explicit so the transport adds nothing after signing.
	headers.Set("Accept-Encoding", "identity")
	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}

	signed, err := t.keyring.SignRequest(headers, body)
	if err != nil {
		return nil, configuration(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}
	req.Header = signed
	req.Host = target.Host

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: %v", ErrUpstream, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWorkerResponse))
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: reading worker response: %v", ErrUpstream, err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("%w: worker %s returned status %d", ErrUpstream, manifest.ID, resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &TransferResult{
		Outcome:     metrics.OutcomeForwarded,
		ManifestID:  manifest.ID,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        respBody,
	}, nil
}

// ForwardableHeaders copies h without connection-scoped headers, Host,
// Content-Length and any X-Hiyocord-* header.
func ForwardableHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, name := range hopHeaders {
		out.Del(name)
	}
	out.Del("Host")
	out.Del("Content-Length")
	for name := range out {
		if strings.HasPrefix(strings.ToLower(name), "x-hiyocord-") {
			delete(out, name)
		}
	}
	return out
}

// NotRegisteredResult is the channel message returned for unrouted interactions.
func NotRegisteredResult() (*TransferResult, error) {
	return jsonResult(metrics.OutcomeNotRegistered, "", map[string]any{
		"type": 4,
		"data": map[string]string{"content": NotRegisteredMessage},
	})
}

func jsonResult(outcome, manifestID string, v any) (*TransferResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &TransferResult{
		Outcome:     outcome,
		ManifestID:  manifestID,
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
	}, nil
}
