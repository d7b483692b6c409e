package cryptoutils

import (
	"net/http"
	"sort"
	"strings"
)

// Signed request headers.
const (
	HeaderTimestamp = "X-Hiyocord-Timestamp"
	HeaderAlgorithm = "X-Hiyocord-Algorithm"
	HeaderSignature = "X-Hiyocord-Signature"
)

// DefaultExcludedPrefixes are header name prefixes injected by edge proxies
// along the path between signer and verifier.
var DefaultExcludedPrefixes = []string{"cf-", "x-forwarded-"}

// excludedHeaders never take part in the canonical payload. The signature
// header cannot sign itself; host and content-length are rewritten in
// transit. The algorithm header is left out to stay wire compatible with
// worker SDKs; verifiers bind the algorithm to the key instead.
var excludedHeaders = map[string]struct{}{
	"host":                 {},
	"content-length":       {},
	"x-hiyocord-signature": {},
	"x-hiyocord-algorithm": {},
}

// Codec canonicalizes, signs and verifies HTTP requests.
type Codec struct {
	// ExcludedPrefixes lists lower-cased header name prefixes dropped
	// from the canonical payload.
	ExcludedPrefixes []string
}

// DefaultCodec excludes DefaultExcludedPrefixes.
var DefaultCodec = &Codec{ExcludedPrefixes: DefaultExcludedPrefixes}

// Canonicalize builds the payload covered by a request signature: every
// retained header as a lower-cased "name:value" line, sorted by name and
// joined with "\n", immediately followed by the raw body.
func (c *Codec) Canonicalize(headers http.Header, body []byte) []byte {
	type line struct{ name, value string }
	lines := make([]line, 0, len(headers))
	for name, values := range headers {
		lower := strings.ToLower(name)
		if c.excluded(lower) {
			continue
		}
		lines = append(lines, line{lower, strings.Join(values, ", ")})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].name == lines[j].name {
			return lines[i].value < lines[j].value
		}
		return lines[i].name < lines[j].name
	})

	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.name)
		sb.WriteByte(':')
		sb.WriteString(l.value)
	}

	payload := make([]byte, 0, sb.Len()+len(body))
	payload = append(payload, sb.String()...)
	return append(payload, body...)
}

func (c *Codec) excluded(lowerName string) bool {
	if _, ok := excludedHeaders[lowerName]; ok {
		return true
	}
	for _, prefix := range c.ExcludedPrefixes {
		if strings.HasPrefix(lowerName, prefix) {
			return true
		}
	}
	return false
}

// Canonicalize uses DefaultCodec.
func Canonicalize(headers http.Header, body []byte) []byte {
	return DefaultCodec.Canonicalize(headers, body)
}
