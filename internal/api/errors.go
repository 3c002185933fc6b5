package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Error is a normalized backend failure with the HTTP context attached.
type Error struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Method     string `json:"method"`
	Path       string `json:"path"`
}

// Error formats backend failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("backend %s %s: %s (status %d)", e.Method, e.Path, e.Message, e.StatusCode)
}

// NotFound reports whether the failure was a 404.
func (e *Error) NotFound() bool {
	return e != nil && e.StatusCode == http.StatusNotFound
}

// errorMessage extracts a user-facing message from a backend error payload.
// Precedence: structured detail message > detail string > top-level message >
// HTTP status text > fallback. The order is fixed so the UI shows predictable
// text regardless of payload shape.
func errorMessage(statusCode int, body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := detailMessage(payload.Detail); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return "request failed"
}

// detailMessage unpacks FastAPI's detail field, which may be a plain string
// or a nested object carrying its own message.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var nested struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		if msg := strings.TrimSpace(nested.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(nested.Detail); msg != "" {
			return msg
		}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return ""
}
