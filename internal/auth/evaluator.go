package auth

import "strings"

// NormalizePath strips the API prefix and version segment from a route
// pattern so permissions stay stable across API versions:
//
//	NormalizePath("/api/v1/devices", "api") == "/devices"
//	NormalizePath("/api/v2/users/{id}", "api") == "/users/{id}"
//
// Express-style ":id" parameter segments are rewritten to chi's "{id}"
// form so permission rows written either way match the same route. Paths
// that do not start with the prefix keep their segments with only a
// trailing slash trimmed. The root path is always "/".
func NormalizePath(path, prefix string) string {
	p := strings.TrimSuffix(path, "/")
	if p == "" {
		return "/"
	}

	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(segments) > 0 && prefix != "" && segments[0] == prefix {
		segments = segments[1:]
		if len(segments) > 0 && isVersionSegment(segments[0]) {
			segments = segments[1:]
		}
	}

	if len(segments) == 0 {
		return "/"
	}
	for i, s := range segments {
		segments[i] = paramSegment(s)
	}
	return "/" + strings.Join(segments, "/")
}

// paramSegment rewrites an Express-style ":id" segment to chi's "{id}".
func paramSegment(s string) string {
	if len(s) > 1 && s[0] == ':' {
		return "{" + s[1:] + "}"
	}
	return s
}

// isVersionSegment reports whether a path segment looks like "v1", "v12".
func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Allowed reports whether the user may perform method on the normalised
// route pattern. System roles bypass permission matching entirely;
// otherwise the user needs a permission whose method and path match
// exactly. Stored permission paths are normalised before comparison so a
// row written as "/users/:id" guards the "/users/{id}" route.
func Allowed(user *User, method, normalizedPath string) bool {
	if user == nil {
		return false
	}

	method = strings.ToUpper(method)
	for _, role := range user.Roles {
		if role.IsSystem {
			return true
		}
		for _, perm := range role.Permissions {
			if strings.EqualFold(perm.Method, method) && NormalizePath(perm.Path, "") == normalizedPath {
				return true
			}
		}
	}
	return false
}
