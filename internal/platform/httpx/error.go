package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/commerce/internal/platform/requestctx"
)

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
	// RetryAfter is emitted as a Retry-After header (seconds) when positive.
	RetryAfter int
	RequestID  string
	TraceID    string
	Details    map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// AsRetryable marks the error as safe for the client to retry.
func (e Error) AsRetryable() Error {
	e.Retryable = true
	return e
}

// WithRetryAfter marks the error retryable after the supplied number of seconds.
func (e Error) WithRetryAfter(seconds int) Error {
	if seconds > 0 {
		e.Retryable = true
		e.RetryAfter = seconds
	}
	return e
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details))
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

type errorEnvelope struct {
	Error             string         `json:"error"`
	Message           string         `json:"message"`
	Status            int            `json:"status"`
	Retryable         bool           `json:"retryable,omitempty"`
	RetryAfterSeconds int            `json:"retryAfterSeconds,omitempty"`
	RequestID         string         `json:"request_id,omitempty"`
	TraceID           string         `json:"trace_id,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = sanitize(requestctx.TraceID(ctx), 64)
	}

	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:             err.Code,
		Message:           err.Message,
		Status:            status,
		Retryable:         err.Retryable,
		RetryAfterSeconds: err.RetryAfter,
		RequestID:         requestID,
		TraceID:           traceID,
		Details:           err.Details,
	})
}

func sanitize(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
