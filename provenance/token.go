// Package provenance issues and verifies the short-lived tokens that bind a
// forwarded interaction to the manifest receiving it.
package provenance

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the lifetime of tokens attached to forwarded interactions.
	DefaultTTL = 5 * time.Minute

	MinTTL = time.Second
	MaxTTL = 5 * time.Minute

	// Header carries the token on requests forwarded to a worker.
	Header = "X-Hiyocord-Discord-Token"
)

var (
	// ErrVerificationFailed is the only error Verify returns to callers.
	ErrVerificationFailed = errors.New("JWT verification failed")

	ErrInvalidTTL    = errors.New("token lifetime out of range")
	ErrMissingSecret = errors.New("token secret not configured")
)

// Claims bind one manifest to one interaction until the expiry.
type Claims struct {
	ManifestID    string `json:"manifest_id"`
	InteractionID string `json:"interaction_id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies provenance tokens with a symmetric secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret []byte) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	return &Issuer{secret: secret, now: time.Now}, nil
}

// Issue returns an HS256 token valid for ttl.
func (i *Issuer) Issue(manifestID, interactionID string, ttl time.Duration) (string, error) {
	if ttl < MinTTL || ttl > MaxTTL {
		return "", fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}
	if manifestID == "" || interactionID == "" {
		return "", errors.New("manifest id and interaction id are required")
	}

	now := i.now()
	claims := Claims{
		ManifestID:    manifestID,
		InteractionID: interactionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign provenance token: %w", err)
	}
	return token, nil
}

// VerificationError reports a rejected token. It matches
// ErrVerificationFailed and prints only the generic message; Reason is for
// server-side logs.
type VerificationError struct {
	Reason error
}

func (e *VerificationError) Error() string { return ErrVerificationFailed.Error() }

func (e *VerificationError) Unwrap() error { return ErrVerificationFailed }

func failed(reason error) error { return &VerificationError{Reason: reason} }

// Verify parses token and returns its claims. Expired, tampered, malformed
// or incomplete tokens all fail with a *VerificationError.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, failed(err)
	}
	if !parsed.Valid {
		return nil, failed(errors.New("token invalid"))
	}
	if claims.ManifestID == "" || claims.InteractionID == "" || claims.ExpiresAt == nil {
		return nil, failed(errors.New("missing required claims"))
	}
	if !claims.ExpiresAt.After(i.now()) {
		return nil, failed(errors.New("token expired"))
	}
	return claims, nil
}
