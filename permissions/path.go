package permissions

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPath is a Discord API path that could address another
// endpoint once a server or proxy normalizes it.
var ErrInvalidPath = errors.New("invalid discord api path")

// ValidatePath checks an escaped Discord API path, e.g.
// "/channels/1/messages", before it is matched against grants or
// forwarded. It rejects empty segments, "." and ".." segments, and any
// segment that carries a separator or dot in percent-encoded form. The
// checks run on both the escaped and the decoded segment.
func ValidatePath(escapedPath string) error {
	if !strings.HasPrefix(escapedPath, "/") || len(escapedPath) == 1 {
		return fmt.Errorf("%w: path must name an endpoint", ErrInvalidPath)
	}
	if strings.ContainsAny(escapedPath, "?#\\") {
		return fmt.Errorf("%w: unexpected character in path", ErrInvalidPath)
	}

	for _, seg := range strings.Split(escapedPath[1:], "/") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment", ErrInvalidPath)
		}
		lower := strings.ToLower(seg)
		for _, encoded := range []string{"%2f", "%5c", "%2e"} {
			if strings.Contains(lower, encoded) {
				return fmt.Errorf("%w: encoded %q in segment", ErrInvalidPath, encoded)
			}
		}
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if decoded == "." || decoded == ".." {
			return fmt.Errorf("%w: dot segment", ErrInvalidPath)
		}
		if strings.ContainsAny(decoded, "/\\") {
			return fmt.Errorf("%w: separator in segment", ErrInvalidPath)
		}
	}
	return nil
}
