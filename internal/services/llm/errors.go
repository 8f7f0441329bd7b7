package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"imdata/internal/services"
)

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, summarizePayloadSnippet(e.Body))
}

// Unwrap maps the status onto the shared failure markers.
func (e *httpStatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return services.ErrUnauthorized
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity:
		return services.ErrValidation
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError:
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}

type emptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	if e.FinishReason == "" && e.Refusal == "" {
		return fmt.Sprintf("llm request: empty choices (response_snippet=%s)", e.Snippet)
	}
	return fmt.Sprintf(
		"llm request: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.FinishReason,
		e.Refusal,
		e.Snippet,
	)
}

type invalidJSONError struct {
	Mode string
	Err  error
}

func (e *invalidJSONError) Error() string {
	return fmt.Sprintf("llm %s: invalid JSON: %v", strings.TrimSpace(e.Mode), e.Err)
}

func (e *invalidJSONError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is an HTTP 401 from the API.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsInvalidJSON reports whether the model content failed to decode.
func IsInvalidJSON(err error) bool {
	var invalid *invalidJSONError
	return errors.As(err, &invalid)
}
