// Package permissions decides whether a manifest may call a Discord API
// endpoint through the gateway proxy.
package permissions

import (
	"strings"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
)

// IsAllowed reports whether any of the manifest's grants permits method on
// path. A DISCORD_BOT grant allows everything. A DISCORD_API_SCOPE grant
// allows a request when one of its path templates has the same number of
// segments as path, every template segment matches literally or is a
// "{name}" wildcard, and method is listed for that template.
//
// path is the escaped Discord API path relative to the API version root,
// e.g. "/channels/123/messages". Any query string is ignored. A path that
// fails ValidatePath is never allowed, not even for DISCORD_BOT.
func IsAllowed(manifest *interfaces.Manifest, method, path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if manifest == nil || ValidatePath(path) != nil {
		return false
	}
	for _, p := range manifest.Permissions {
		if p.Type == interfaces.PermissionDiscordBot {
			return true
		}
	}

	requested := strings.Split(path[1:], "/")
	for _, p := range manifest.Permissions {
		if p.Type != interfaces.PermissionDiscordAPIScope {
			continue
		}
		for template, methods := range p.Scopes {
			if matchPath(segments(template), requested) && containsMethod(methods, method) {
				return true
			}
		}
	}
	return false
}

// RequiredScope renders the scope a denied request would need, for error
// responses.
func RequiredScope(method, path string) string {
	return strings.ToUpper(method) + " /" + strings.Join(segments(path), "/")
}

// segments splits leniently, for templates and error text.
func segments(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func matchPath(template, requested []string) bool {
	if len(template) != len(requested) {
		return false
	}
	for i, seg := range template {
		if isWildcard(seg) {
			continue
		}
		if seg != requested[i] {
			return false
		}
	}
	return true
}

func isWildcard(segment string) bool {
	return len(segment) > 2 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
