package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// HeaderManifestID names the calling worker's manifest.
const HeaderManifestID = "X-Hiyocord-Manifest-Id"

// WorkerAuthenticator checks requests signed by a worker's manifest key.
type WorkerAuthenticator struct {
	Codec  *cryptoutils.Codec
	Replay cryptoutils.ReplayGuard
	Now    func() time.Time
}

func NewWorkerAuthenticator(window time.Duration) *WorkerAuthenticator {
	return &WorkerAuthenticator{
		Codec:  cryptoutils.DefaultCodec,
		Replay: cryptoutils.ReplayGuard{Window: window},
		Now:    time.Now,
	}
}

// Authenticate verifies headers and body against the manifest's key. The
// algorithm header must name the manifest's declared algorithm and the
// timestamp must be inside the replay window. Every failure is an
// *AuthError.
func (a *WorkerAuthenticator) Authenticate(m *interfaces.Manifest, headers http.Header, body []byte) error {
	if m.PublicKey == "" || m.SignatureAlgorithm == "" {
		return unauthorized(fmt.Errorf("manifest %s has no verification key", m.ID))
	}
	if alg := headers.Get(cryptoutils.HeaderAlgorithm); alg != "" && alg != m.SignatureAlgorithm {
		return unauthorized(fmt.Errorf("algorithm %q does not match manifest algorithm %q", alg, m.SignatureAlgorithm))
	}

	ok, reason := a.Codec.VerifyRequest(m.PublicKey, headers, body)
	if !ok {
		if reason == nil {
			reason = errors.New("signature rejected")
		}
		return unauthorized(reason)
	}

	if !a.Replay.IsFresh(headers.Get(cryptoutils.HeaderTimestamp), a.Now()) {
		return unauthorized(errors.New("timestamp outside replay window"))
	}
	return nil
}
