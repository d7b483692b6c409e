package interfaces

import (
	"errors"
	"net/http"
)

// ErrKeyNotConfigured is returned when a required gateway secret is absent.
var ErrKeyNotConfigured = errors.New("gateway key not configured")

// Keyring holds the gateway's own credentials.
type Keyring interface {
	// Algorithm is the name of the gateway signature algorithm.
	Algorithm() string

	// PublicKey returns the base64 SPKI public key workers verify against.
	PublicKey() (string, error)

	// SignRequest returns headers augmented with the gateway signature.
	SignRequest(headers http.Header, body []byte) (http.Header, error)

	// ProvenanceSecret is the HMAC key for provenance tokens.
	ProvenanceSecret() ([]byte, error)

	// SessionSecret is the HMAC key for dashboard sessions.
	SessionSecret() ([]byte, error)

	// BotToken is the Discord bot credential injected into proxied calls.
	BotToken() (string, error)
}
