package transport

import (
	"fmt"
	"strings"
)

// User-facing messages for failed exchanges.
const (
	MsgValidationFallback = "The request was invalid."
	MsgUpstreamFailure    = "An error occurred while communicating with the AI service."
	MsgUnexpected         = "An unexpected error occurred."
)

// ValidationError is returned for HTTP 400. Details holds the server's
// validation messages when the body was a JSON array of strings.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return MsgValidationFallback
	}
	return strings.Join(e.Details, ", ")
}

// UpstreamServiceError is returned for HTTP 502: the backend could not reach
// the AI service.
type UpstreamServiceError struct {
	StatusCode int
}

func (e *UpstreamServiceError) Error() string {
	return MsgUpstreamFailure
}

// UnexpectedError covers every other non-success status, transport failures
// and undecodable success bodies. StatusCode is 0 when no response arrived.
type UnexpectedError struct {
	StatusCode int
	Err        error
}

func (e *UnexpectedError) Error() string {
	return MsgUnexpected
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Detail returns a diagnostic description for logs. Error() stays fixed for users.
func (e *UnexpectedError) Detail() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("status %d", e.StatusCode)
	}
}
