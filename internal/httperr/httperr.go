// Package httperr describes non-2xx responses from the external HTTP services
// the assistant calls.
package httperr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxBody caps how much of an unstructured error body is kept.
const maxBody = 512

// Error is a non-2xx response from an external service.
type Error struct {
	Service    string
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s error (%d)", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s error (%d): %s", e.Service, e.StatusCode, e.Detail)
}

// New builds an Error, extracting a readable detail from the body.
func New(service string, status int, body []byte) *Error {
	return &Error{Service: service, StatusCode: status, Detail: Detail(body)}
}

// Detail pulls the message out of a JSON error body. It looks at the "error",
// "detail" and "message" keys, descending into nested objects, and falls back
// to the trimmed raw body.
func Detail(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if s := detailFrom(obj); s != "" {
			return s
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxBody {
		s = s[:maxBody] + "..."
	}
	return s
}

func detailFrom(obj map[string]any) string {
	for _, key := range []string{"error", "detail", "message"} {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if s := detailFrom(v); s != "" {
				return s
			}
		}
	}
	return ""
}
