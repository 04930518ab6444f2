package agents

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind categorizes agent failures for retry and reporting
// decisions. The orchestrator maps all of them to its error transition;
// the kind decides logging detail and whether a retry was worthwhile.
type ErrorKind int

const (
	// ErrorKindTimeout marks an external call that exceeded its deadline.
	ErrorKindTimeout ErrorKind = iota

	// ErrorKindUnavailable marks a collaborator that refused or dropped
	// the connection.
	ErrorKindUnavailable

	// ErrorKindBadInput marks input the agent cannot act on. Not retryable.
	ErrorKindBadInput

	// ErrorKindInternal marks everything else.
	ErrorKindInternal
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindUnavailable:
		return "unavailable"
	case ErrorKindBadInput:
		return "bad_input"
	default:
		return "internal"
	}
}

// Error is the typed failure every agent surfaces. The message is for
// the operational log only and must never reach the response body.
type Error struct {
	Agent    string
	Kind     ErrorKind
	Original error
}

func (e *Error) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("agent %s: %s", e.Agent, e.Kind)
	}
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Kind, e.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Original
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *Error) Retryable() bool {
	return e.Kind == ErrorKindTimeout || e.Kind == ErrorKindUnavailable
}

// NewError wraps err with the agent name and a kind inferred from the
// error chain when kind is ErrorKindInternal.
func NewError(agent string, kind ErrorKind, err error) *Error {
	if kind == ErrorKindInternal {
		kind = classifyKind(err)
	}
	return &Error{Agent: agent, Kind: kind, Original: err}
}

// AsAgentError extracts a typed agent error from the chain, wrapping
// untyped errors so callers always see one shape.
func AsAgentError(agent string, err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return NewError(agent, ErrorKindInternal, err)
}

func classifyKind(err error) ErrorKind {
	if err == nil {
		return ErrorKindInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	// A canceled caller is not a collaborator failure; retrying or
	// counting it as a timeout would misstate what happened.
	if errors.Is(err, context.Canceled) {
		return ErrorKindInternal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrorKindTimeout
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "eof"):
		return ErrorKindUnavailable
	}
	return ErrorKindInternal
}
