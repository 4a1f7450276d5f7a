package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Tyrowin/relay/internal/broadcast"
	"github.com/Tyrowin/relay/internal/logger"
)

// Boundary errors returned while decoding a publish request.
var (
	// ErrUnsupportedMediaType indicates a Content-Type the publish endpoint
	// cannot decode.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrMissingContentType indicates the request has a body but no
	// Content-Type header.
	ErrMissingContentType = errors.New("missing content type")

	// ErrMalformedBody indicates the body could not be parsed as the declared
	// media type.
	ErrMalformedBody = errors.New("malformed request body")

	// ErrRateLimited is returned when a client publishes faster than allowed.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrShuttingDown is returned for publishes that arrive after shutdown began.
	ErrShuttingDown = errors.New("server is shutting down")
)

// FieldError describes one invalid field of a publish request.
type FieldError struct {
	Field   string
	Message string
}

// ValidationErrors collects every field that failed validation.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the errors keyed by field name.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, fe := range v {
		out[fe.Field] = fe.Message
	}
	return out
}

func tooLong(limit int) string {
	return fmt.Sprintf("must be at most %d characters", limit)
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error from the publish path to its HTTP status.
func statusFor(err error) int {
	var (
		verrs  ValidationErrors
		maxErr *http.MaxBytesError
	)

	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMediaType), errors.Is(err, ErrMissingContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrShuttingDown), errors.Is(err, broadcast.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body with the matching status.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(err)

	resp := errorResponse{Error: err.Error()}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "validation failed"
		resp.Fields = verrs.Fields()
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", logger.Error(err))
		resp.Error = http.StatusText(status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Debug("failed to write error response", logger.Error(encErr))
	}
}
