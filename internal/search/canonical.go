package search

import (
	"net/url"
	"strings"
)

// CanonicalURL normalises a result URL into the identity used for
// deduplication. A bare host like "x.com/1" is read as http. Only http and
// https URLs with a host are accepted.
func CanonicalURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		if parsed, err := url.Parse(raw); err == nil && parsed.Opaque != "" && !looksLikeHostPort(parsed.Scheme, parsed.Opaque) {
			// mailto:, javascript: and friends
			return "", false
		}
		raw = "http://" + strings.TrimPrefix(raw, "//")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", false
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := parsed.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	} else if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	var b strings.Builder
	b.Grow(len(raw))
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if parsed.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(parsed.RawQuery)
	}
	return b.String(), true
}

// looksLikeHostPort reports whether a scheme-less "a.b:8080/x" was parsed
// as scheme "a.b" with opaque "8080/x".
func looksLikeHostPort(scheme, opaque string) bool {
	return strings.Contains(scheme, ".") || (opaque[0] >= '0' && opaque[0] <= '9')
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
