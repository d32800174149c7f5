package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/perfectpic/perfectpic/sdk/go/headers"
)

// APIError is an error reported by the Perfect Pic API. The API reports
// failures as {"error": "message"}, sometimes with a 2xx status.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

// Error implements the error interface.
func (e APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Status == 0 {
		return "api error: " + msg
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, msg)
}

// IsUnauthorized reports whether err is an API 401.
func IsUnauthorized(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// ConfigError reports invalid client configuration or arguments.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string { return "sdk: " + e.Reason }

// TransportErrorKind classifies transport failures.
type TransportErrorKind string

const (
	TransportErrorTimeout       TransportErrorKind = "timeout"
	TransportErrorConnection    TransportErrorKind = "connection"
	TransportErrorEmptyResponse TransportErrorKind = "empty_response"
	TransportErrorOther         TransportErrorKind = "other"
)

// TransportError wraps failures below the HTTP status layer.
type TransportError struct {
	Kind    TransportErrorKind
	Message string
	Cause   error
	Retries *RetryMetadata
}

func (e TransportError) Error() string {
	var b strings.Builder
	b.WriteString("transport error")
	if e.Kind != "" {
		b.WriteString(" (" + string(e.Kind) + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	if e.Retries != nil && e.Retries.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Retries.Attempts)
	}
	return b.String()
}

func (e TransportError) Unwrap() error { return e.Cause }

func classifyTransportErrorKind(err error) TransportErrorKind {
	if err == nil {
		return TransportErrorOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TransportErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportErrorTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TransportErrorConnection
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return TransportErrorConnection
	}
	return TransportErrorOther
}

type errorBody struct {
	Error json.RawMessage `json:"error"`
}

// errorMessage extracts the message from an "error" field. Falsy values
// (null, false, 0, "") carry no error.
func errorMessage(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case bool:
		if !e {
			return ""
		}
	case float64:
		if e == 0 {
			return ""
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return string(raw)
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	apiErr := APIError{Status: resp.StatusCode, RequestID: resp.Header.Get(headers.RequestID)}
	if len(bytes.TrimSpace(data)) == 0 {
		apiErr.Message = resp.Status
		return apiErr
	}
	var payload errorBody
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = errorMessage(payload.Error)
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

// embeddedAPIError reports an "error" field inside a successful response.
func embeddedAPIError(resp *http.Response, data []byte) (APIError, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return APIError{}, false
	}
	var payload errorBody
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return APIError{}, false
	}
	msg := errorMessage(payload.Error)
	if msg == "" {
		return APIError{}, false
	}
	return APIError{Status: resp.StatusCode, Message: msg, RequestID: resp.Header.Get(headers.RequestID)}, true
}
