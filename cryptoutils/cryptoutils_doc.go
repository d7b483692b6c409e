// Package cryptoutils implements the request signing protocol shared by the
// gateway and its workers.
//
// A signed request carries three headers:
//
//	X-Hiyocord-Timestamp  epoch milliseconds, decimal
//	X-Hiyocord-Algorithm  algorithm name, e.g. "ed25519"
//	X-Hiyocord-Signature  base64 signature over the canonical payload
//
// The canonical payload is every header except host, content-length, the
// signature header and edge-proxy prefixes (cf-, x-forwarded-), lower-cased,
// sorted by name, rendered as "name:value" lines joined with "\n" and
// followed by the raw body bytes. The timestamp and algorithm headers are
// covered by the signature.
//
// Keys travel as base64: SPKI DER for public keys, PKCS#8 DER for private
// keys. Algorithms form a closed set resolved by LookupAlgorithm; an
// unknown name fails closed.
//
// # Usage
//
//	signed, err := cryptoutils.SignRequest(cryptoutils.Ed25519, priv, req.Header, body)
//	...
//	ok, reason := cryptoutils.VerifyRequest(pub, r.Header, body)
//	if !ok || !cryptoutils.IsFresh(r.Header.Get(cryptoutils.HeaderTimestamp), time.Now()) {
//	    // reject with 401, log reason
//	}
package cryptoutils
