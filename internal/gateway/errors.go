// ABOUTME: Error taxonomy for gateway API failures
// ABOUTME: Maps HTTP status classes to retryable and permanent errors

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrChannelNotFound is returned when the gateway no longer knows the
// channel (HTTP 404). Callers treat this as the remote-gone signal and
// self-heal by resetting local channel state.
var ErrChannelNotFound = errors.New("gateway: channel not found")

// APIError represents a non-2xx response from the gateway API.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the error description from the gateway, if it sent one.
	Message string

	// Transient marks errors worth retrying: rate limits and server-side
	// failures. Permanent errors (other 4xx) mean the request itself is bad.
	Transient bool
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: HTTP %d: %s", e.StatusCode, e.Message)
}

// errorFromResponse maps a non-2xx gateway response to an error.
// 404 means the channel is gone; 429 and 5xx are transient; everything
// else is a permanent request failure.
func errorFromResponse(statusCode int, body []byte) error {
	if statusCode == http.StatusNotFound {
		return ErrChannelNotFound
	}

	// Gateways commonly wrap errors as {"error": {"message": "..."}} or
	// {"message": "..."}; take whichever is present.
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &envelope); err == nil {
		message = envelope.Message
		if envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  statusCode == http.StatusTooManyRequests || statusCode >= 500,
	}
}

// IsTransient reports whether err is worth retrying: a transient API
// error or a transport-level failure. Channel-gone and permanent API
// errors are not retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChannelNotFound) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	// Transport errors (timeouts, refused connections) have no status
	// code; the next attempt may succeed.
	return true
}

// classify labels an error for metrics.
func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrChannelNotFound):
		return "not_found"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
