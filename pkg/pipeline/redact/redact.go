package redact

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" and "Basic <credentials>" authorization values.
	authHeaderRe = regexp.MustCompile(`(?i)\b(Bearer|Basic)\s+[^\s"']+`)

	// Matches scheme://user:password@ and scheme://user@ inside free text.
	userinfoRe = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s@"']+@`)

	// Common key=value formats that sometimes leak in error strings.
	secretKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|password|passwd)\b\s*[:=]\s*[^\s"'&]+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = authHeaderRe.ReplaceAllString(out, "$1 <redacted>")
	out = userinfoRe.ReplaceAllString(out, "${1}<redacted>@")
	out = secretKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}

// URL strips userinfo from a URL so it can be shown to the user or logged.
// Unparseable input falls back to Secrets.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Secrets(raw)
	}
	u.User = nil
	return u.String()
}
