package gitlab

import (
	"fmt"
	"net/http"
	"unicode/utf8"
)

// maxErrorBody bounds how much of a response body is kept on a StatusError.
const maxErrorBody = 200

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GitLab API error %d on %s %s", e.StatusCode, e.Method, e.URL)
	}
	return fmt.Sprintf("GitLab API error %d on %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// Transient reports whether the request may succeed if repeated.
func (e *StatusError) Transient() bool {
	return IsTransient(e.StatusCode)
}

// IsTransient reports whether status signals server overload rather than a
// problem with the request itself.
func IsTransient(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func newStatusError(method, url string, status int, body []byte) *StatusError {
	s := string(body)
	if len(s) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	return &StatusError{Method: method, URL: url, StatusCode: status, Body: s}
}
