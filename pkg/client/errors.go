package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NetworkError wraps transport-level failures: connection refused, DNS,
// timeouts, aborted streams. The backend was never (fully) reached.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Message carries the backend's own
// error string when the body was the usual {"error": ...} shape.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (%d)", e.Status)
}

// MalformedResponseError is a 2xx response whose body failed to decode.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed backend response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func serverError(status int, body []byte) *ServerError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return &ServerError{Status: status, Message: msg}
}
