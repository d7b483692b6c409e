package kms

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hiyocord/hiyocord-nexus/cryptoutils"
	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"golang.org/x/crypto/hkdf"
)

// MinMasterSecretLength is the minimum length of the configured token secret.
const MinMasterSecretLength = 32

const (
	provenancePurpose = "hiyocord-nexus/provenance/v1"
	sessionPurpose    = "hiyocord-nexus/session/v1"
)

// SimpleKeyring holds the gateway signing key, the Discord bot token and a
// master secret from which per-purpose HMAC keys are derived.
//
// Every credential is optional at construction time. Accessors return
// interfaces.ErrKeyNotConfigured for missing material so that callers can
// surface a configuration error for the request that needed it.
type SimpleKeyring struct {
	mu sync.RWMutex

	algorithm    cryptoutils.AlgorithmName
	privateKey   string
	publicKey    string
	masterSecret []byte
	botToken     string

	derived map[string][]byte
}

var _ interfaces.Keyring = (*SimpleKeyring)(nil)

// NewSimpleKeyring creates a keyring with the provided master secret.
// The master secret must be at least 32 bytes long.
func NewSimpleKeyring(masterSecret []byte) (*SimpleKeyring, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, fmt.Errorf("master secret must be at least %d bytes", MinMasterSecretLength)
	}
	secret := make([]byte, len(masterSecret))
	copy(secret, masterSecret)

	return &SimpleKeyring{
		algorithm:    cryptoutils.Ed25519,
		masterSecret: secret,
		derived:      make(map[string][]byte),
	}, nil
}

// WithSigningKey creates a new keyring signing with the given private key.
// The key is checked against the algorithm before it is accepted.
func (k *SimpleKeyring) WithSigningKey(algorithm cryptoutils.AlgorithmName, privateKey string) (*SimpleKeyring, error) {
	alg, err := cryptoutils.LookupAlgorithm(string(algorithm))
	if err != nil {
		return nil, err
	}
	publicKey, err := cryptoutils.PublicKeyFor(privateKey)
	if err != nil {
		return nil, err
	}
	if err := cryptoutils.ValidatePublicKey(string(alg.Name()), publicKey); err != nil {
		return nil, fmt.Errorf("private key does not match algorithm %s: %w", algorithm, err)
	}

	newkr := k.clone()
	newkr.algorithm = alg.Name()
	newkr.privateKey = privateKey
	newkr.publicKey = publicKey
	return newkr, nil
}

// WithBotToken creates a new keyring carrying the Discord bot credential.
func (k *SimpleKeyring) WithBotToken(token string) *SimpleKeyring {
	newkr := k.clone()
	newkr.botToken = token
	return newkr
}

func (k *SimpleKeyring) clone() *SimpleKeyring {
	k.mu.RLock()
	defer k.mu.RUnlock()

	secret := make([]byte, len(k.masterSecret))
	copy(secret, k.masterSecret)
	return &SimpleKeyring{
		algorithm:    k.algorithm,
		privateKey:   k.privateKey,
		publicKey:    k.publicKey,
		masterSecret: secret,
		botToken:     k.botToken,
		derived:      make(map[string][]byte),
	}
}

func (k *SimpleKeyring) Algorithm() string {
	return string(k.algorithm)
}

func (k *SimpleKeyring) PublicKey() (string, error) {
	if k.publicKey == "" {
		return "", fmt.Errorf("%w: signing key", interfaces.ErrKeyNotConfigured)
	}
	return k.publicKey, nil
}

// SignRequest signs headers and body with the gateway key, adding the
// timestamp, algorithm and signature headers.
func (k *SimpleKeyring) SignRequest(headers http.Header, body []byte) (http.Header, error) {
	if k.privateKey == "" {
		return nil, fmt.Errorf("%w: signing key", interfaces.ErrKeyNotConfigured)
	}
	return cryptoutils.SignRequest(k.algorithm, k.privateKey, headers, body)
}

func (k *SimpleKeyring) ProvenanceSecret() ([]byte, error) {
	return k.derive(provenancePurpose)
}

func (k *SimpleKeyring) SessionSecret() ([]byte, error) {
	return k.derive(sessionPurpose)
}

func (k *SimpleKeyring) BotToken() (string, error) {
	if k.botToken == "" {
		return "", fmt.Errorf("%w: discord bot token", interfaces.ErrKeyNotConfigured)
	}
	return k.botToken, nil
}

// derive returns a 32-byte HKDF-SHA256 key for purpose, cached after the
// first call.
func (k *SimpleKeyring) derive(purpose string) ([]byte, error) {
	k.mu.RLock()
	key, ok := k.derived[purpose]
	k.mu.RUnlock()
	if ok {
		return key, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if key, ok := k.derived[purpose]; ok {
		return key, nil
	}

	if len(k.masterSecret) == 0 {
		return nil, fmt.Errorf("%w: token secret", interfaces.ErrKeyNotConfigured)
	}

	key = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.masterSecret, nil, []byte(purpose)), key); err != nil {
		return nil, errors.New("failed to derive key")
	}
	k.derived[purpose] = key
	return key, nil
}
