package interactionhandler

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hiyocord/hiyocord-nexus/api"
	"github.com/hiyocord/hiyocord-nexus/discord"
	"github.com/hiyocord/hiyocord-nexus/gateway"
	"github.com/hiyocord/hiyocord-nexus/metrics"
)

// Transferer routes a verified interaction.
type Transferer interface {
	Transfer(ctx context.Context, headers http.Header, body []byte) (*gateway.TransferResult, error)
}

// Handler receives Discord's interaction callbacks.
type Handler struct {
	transfer  Transferer
	publicKey ed25519.PublicKey
	log       *slog.Logger
}

// NewHandler creates the interaction endpoint handler. publicKey is the
// Discord application public key that signs every callback.
func NewHandler(transfer Transferer, publicKey ed25519.PublicKey, log *slog.Logger) *Handler {
	return &Handler{
		transfer:  transfer,
		publicKey: publicKey,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/interactions", h.HandleInteraction)
}

// HandleInteraction verifies Discord's signature and answers with the
// owning worker's interaction response.
//
// URL format: POST /interactions
// Required headers:
//   - X-Signature-Ed25519: hex signature over timestamp||body
//   - X-Signature-Timestamp: timestamp string signed by Discord
//
// Response: the interaction response JSON; {"type":1} for PINGs.
func (h *Handler) HandleInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := api.ReadBody(w, r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	err = discord.VerifyInteraction(h.publicKey, r.Header.Get(discord.HeaderSignature), r.Header.Get(discord.HeaderTimestamp), body)
	if err != nil {
		metrics.RecordAuthFailure("interactions")
		h.log.Warn("Rejected interaction signature", "err", err)
		api.WriteJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: gateway.ErrAuthentication.Error()})
		return
	}

	result, err := h.transfer.Transfer(r.Context(), r.Header, body)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(result.StatusCode)
	if _, err := w.Write(result.Body); err != nil {
		h.log.Debug("Failed to write interaction response", "err", err)
	}
}
