package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

// AlgorithmName identifies a request signature algorithm on the wire.
type AlgorithmName string

const (
	Ed25519   AlgorithmName = "ed25519"
	ECDSAP256 AlgorithmName = "ecdsa-p256"
)

var (
	// ErrUnsupportedAlgorithm is returned for algorithm names outside the registry.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

	// ErrInvalidKey is returned when key material cannot be decoded for the algorithm.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrInvalidSignature is returned when a signature does not match the payload.
	ErrInvalidSignature = errors.New("invalid signature")
)

// KeyPair holds base64 encoded key material: SPKI for the public key and
// PKCS#8 for the private key.
type KeyPair struct {
	Algorithm  AlgorithmName `json:"algorithm"`
	PublicKey  string        `json:"public_key"`
	PrivateKey string        `json:"private_key"`
}

// Algorithm is one variant of the closed set of signature algorithms.
type Algorithm interface {
	Name() AlgorithmName
	GenerateKeyPair() (*KeyPair, error)
	Sign(privateKey string, payload []byte) ([]byte, error)
	Verify(publicKey string, signature, payload []byte) error
}

// LookupAlgorithm resolves an algorithm name. Unknown names fail closed.
func LookupAlgorithm(name string) (Algorithm, error) {
	switch AlgorithmName(name) {
	case Ed25519:
		return ed25519Algorithm{}, nil
	case ECDSAP256:
		return ecdsaP256Algorithm{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// SupportedAlgorithms lists the registered algorithm names.
func SupportedAlgorithms() []AlgorithmName {
	return []AlgorithmName{Ed25519, ECDSAP256}
}

// ValidatePublicKey checks that publicKey decodes for the named algorithm.
func ValidatePublicKey(name, publicKey string) error {
	switch AlgorithmName(name) {
	case Ed25519:
		_, err := parseEd25519PublicKey(publicKey)
		return err
	case ECDSAP256:
		_, err := parseECDSAPublicKey(publicKey)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

type ed25519Algorithm struct{}

func (ed25519Algorithm) Name() AlgorithmName { return Ed25519 }

func (ed25519Algorithm) GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return encodeKeyPair(Ed25519, pub, priv)
}

func (ed25519Algorithm) Sign(privateKey string, payload []byte) ([]byte, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 private key", ErrInvalidKey)
	}
	return ed25519.Sign(edKey, payload), nil
}

func (ed25519Algorithm) Verify(publicKey string, signature, payload []byte) error {
	key, err := parseEd25519PublicKey(publicKey)
	if err != nil {
		return err
	}
	if len(signature) != ed25519.SignatureSize || !ed25519.Verify(key, payload, signature) {
		return ErrInvalidSignature
	}
	return nil
}

type ecdsaP256Algorithm struct{}

func (ecdsaP256Algorithm) Name() AlgorithmName { return ECDSAP256 }

func (ecdsaP256Algorithm) GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
	}
	return encodeKeyPair(ECDSAP256, &priv.PublicKey, priv)
}

func (ecdsaP256Algorithm) Sign(privateKey string, payload []byte) ([]byte, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok || ecKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: not a P-256 private key", ErrInvalidKey)
	}
	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(rand.Reader, ecKey, digest[:])
}

func (ecdsaP256Algorithm) Verify(publicKey string, signature, payload []byte) error {
	key, err := parseECDSAPublicKey(publicKey)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(payload)
	if !ecdsa.VerifyASN1(key, digest[:], signature) {
		return ErrInvalidSignature
	}
	return nil
}

func encodeKeyPair(name AlgorithmName, pub, priv any) (*KeyPair, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	return &KeyPair{
		Algorithm:  name,
		PublicKey:  base64.StdEncoding.EncodeToString(pubDER),
		PrivateKey: base64.StdEncoding.EncodeToString(privDER),
	}, nil
}

func parsePrivateKey(encoded string) (any, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

func parsePublicKey(encoded string) (any, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

func parseEd25519PublicKey(encoded string) (ed25519.PublicKey, error) {
	key, err := parsePublicKey(encoded)
	if err != nil {
		return nil, err
	}
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 public key", ErrInvalidKey)
	}
	return edKey, nil
}

func parseECDSAPublicKey(encoded string) (*ecdsa.PublicKey, error) {
	key, err := parsePublicKey(encoded)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok || ecKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: not a P-256 public key", ErrInvalidKey)
	}
	return ecKey, nil
}

// PublicKeyFor derives the base64 SPKI public key from a base64 PKCS#8 private key.
func PublicKeyFor(privateKey string) (string, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	var pub any
	switch k := key.(type) {
	case ed25519.PrivateKey:
		pub = k.Public()
	case *ecdsa.PrivateKey:
		pub = &k.PublicKey
	default:
		return "", fmt.Errorf("%w: unsupported private key type %T", ErrInvalidKey, key)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
