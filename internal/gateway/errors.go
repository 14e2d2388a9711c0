package gateway

import "errors"

// Error codes carried by scoped error events. Exactly one reaches the sender
// of a failed action; none of them is ever broadcast.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUpstreamFailure = "UPSTREAM_FAILURE"
)

var (
	// ErrConnectionClosed is returned by a Sender whose transport is gone.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a slow consumer's outbound queue
	// overflows. The dispatcher treats it like any other delivery failure.
	ErrSendBufferFull = errors.New("send buffer full")
)
