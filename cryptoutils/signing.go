package cryptoutils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrMissingSignatureHeaders = errors.New("missing signature headers")
	ErrMalformedSignature      = errors.New("malformed signature encoding")
)

// SignRequest returns a copy of headers carrying the timestamp, algorithm
// and signature headers. The timestamp is added before canonicalization and
// is covered by the signature; the algorithm header is not.
func (c *Codec) SignRequest(algorithm AlgorithmName, privateKey string, headers http.Header, body []byte, now time.Time) (http.Header, error) {
	algo, err := LookupAlgorithm(string(algorithm))
	if err != nil {
		return nil, err
	}

	signed := headers.Clone()
	if signed == nil {
		signed = http.Header{}
	}
	signed.Del(HeaderSignature)
	signed.Set(HeaderTimestamp, strconv.FormatInt(now.UnixMilli(), 10))
	signed.Set(HeaderAlgorithm, string(algorithm))

	signature, err := algo.Sign(privateKey, c.Canonicalize(signed, body))
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	signed.Set(HeaderSignature, base64.StdEncoding.EncodeToString(signature))
	return signed, nil
}

// VerifyRequest checks the signature headers against publicKey using the
// algorithm named in the request. It never panics: every failure, including
// malformed key material, yields ok == false with the reason for logging.
// Freshness of the timestamp is checked separately by a ReplayGuard.
func (c *Codec) VerifyRequest(publicKey string, headers http.Header, body []byte) (ok bool, reason error) {
	defer func() {
		if r := recover(); r != nil {
			ok, reason = false, fmt.Errorf("signature verification panicked: %v", r)
		}
	}()

	signatureB64 := headers.Get(HeaderSignature)
	algorithmName := headers.Get(HeaderAlgorithm)
	timestamp := headers.Get(HeaderTimestamp)
	if signatureB64 == "" || algorithmName == "" || timestamp == "" {
		return false, ErrMissingSignatureHeaders
	}

	algo, err := LookupAlgorithm(algorithmName)
	if err != nil {
		return false, err
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	if err := algo.Verify(publicKey, signature, c.Canonicalize(headers, body)); err != nil {
		return false, err
	}
	return true, nil
}

// SignRequest uses DefaultCodec and the current time.
func SignRequest(algorithm AlgorithmName, privateKey string, headers http.Header, body []byte) (http.Header, error) {
	return DefaultCodec.SignRequest(algorithm, privateKey, headers, body, time.Now())
}

// VerifyRequest uses DefaultCodec.
func VerifyRequest(publicKey string, headers http.Header, body []byte) (bool, error) {
	return DefaultCodec.VerifyRequest(publicKey, headers, body)
}
