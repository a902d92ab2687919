package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrNetwork marks transport-level failures: DNS, connect, TLS, and the
// request timeout. Callers test with errors.Is; the cause stays attached for
// logging.
var ErrNetwork = errors.New("network failure")

// RemoteError is a non-2xx response decoded once at the transport boundary.
// The API reports failures either as {"detail": "..."} or as a map of
// field name to message list; both shapes are captured here so no caller
// re-parses the body.
type RemoteError struct {
	Status int
	Detail string
	Fields map[string][]string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %d %s", e.Status, e.Message())
}

// Message returns the most specific human-readable description available:
// the detail field, then formatted field errors, then the HTTP status text.
func (e *RemoteError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if msg := e.fieldMessage(); msg != "" {
		return msg
	}
	return http.StatusText(e.Status)
}

func (e *RemoteError) fieldMessage() string {
	if len(e.Fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", formatFieldName(name), strings.Join(e.Fields[name], ", ")))
	}
	return strings.Join(lines, "\n")
}

// formatFieldName turns a payload field name into a display label:
// "email" becomes "Email", "confirm_password" becomes "Confirm Password".
func formatFieldName(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// IsStatus reports whether err is a RemoteError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Status == status
}

// decodeRemoteError builds a RemoteError from a non-2xx body. Bodies that are
// not JSON objects still produce a usable error via the status code.
func decodeRemoteError(status int, body []byte) *RemoteError {
	remote := &RemoteError{Status: status}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return remote
	}

	if raw, ok := payload["detail"]; ok {
		_ = json.Unmarshal(raw, &remote.Detail)
		delete(payload, "detail")
	}

	for field, raw := range payload {
		var messages []string
		if err := json.Unmarshal(raw, &messages); err == nil {
			remote.addField(field, messages...)
			continue
		}
		var message string
		if err := json.Unmarshal(raw, &message); err == nil {
			remote.addField(field, message)
		}
	}
	return remote
}

func (e *RemoteError) addField(field string, messages ...string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], messages...)
}
