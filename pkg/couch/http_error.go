package couch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
)

// errorEnvelope is the error body CouchDB and Cloudant return.
type errorEnvelope struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// HTTPError is a sanitized summary of a non-200 response from a discovery call.
//
// Important: do not include raw response bodies here (can leak data).
type HTTPError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string
	ErrorName  string
	Reason     string

	// Snippet is a redacted, truncated hint for bodies without an error envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "couch http error"
	}
	parts := []string{
		fmt.Sprintf("couch api error: op=%s url=%s status=%s", strings.TrimSpace(e.Op), e.URL, strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.ErrorName) != "" {
		parts = append(parts, "error="+strings.TrimSpace(e.ErrorName))
	}
	if strings.TrimSpace(e.Reason) != "" {
		parts = append(parts, "reason="+strconv.Quote(strings.TrimSpace(e.Reason)))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op, rawURL string, statusCode int, status string, body []byte) error {
	h := &HTTPError{
		Op:         op,
		URL:        redact.URL(rawURL),
		StatusCode: statusCode,
		Status:     status,
	}
	if h.Status == "" {
		h.Status = strconv.Itoa(statusCode)
	}

	// Best effort: parse the CouchDB error envelope.
	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.ErrorName = strings.TrimSpace(env.Error)
		h.Reason = redact.Secrets(strings.TrimSpace(env.Reason))
		if h.ErrorName != "" || h.Reason != "" {
			return h
		}
	}

	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
