package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type (
	// ErrorKind classifies an expected failure
	ErrorKind string

	// Failure is the error half of an ExecutionResult
	Failure struct {
		Kind       ErrorKind `json:"kind"`
		Message    string    `json:"message"`
		StatusCode int       `json:"status_code,omitempty"`
	}

	// ExecutionResult is the outcome of one call to the agent. Exactly one
	// of Payload or Failure is meaningful, selected by Success
	ExecutionResult struct {
		Timestamp  time.Time       `json:"timestamp"`
		Payload    json.RawMessage `json:"payload,omitempty"`
		Failure    *Failure        `json:"failure,omitempty"`
		MessageID  string          `json:"message_id,omitempty"`
		Latency    time.Duration   `json:"latency"`
		StatusCode int             `json:"status_code,omitempty"`
		Attempts   int             `json:"attempts"`
		Success    bool            `json:"success"`
	}
)

const (
	ErrorAuthentication ErrorKind = "authentication"
	ErrorRateLimit      ErrorKind = "rate_limit"
	ErrorServer         ErrorKind = "server"
	ErrorNetwork        ErrorKind = "network"
	ErrorValidation     ErrorKind = "validation"
	ErrorUnknownEvent   ErrorKind = "unknown_event"
)

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrRateLimit      = errors.New("rate limit exceeded")
	ErrServer         = errors.New("agent server error")
	ErrNetwork        = errors.New("network error")
	ErrValidation     = errors.New("validation failed")
	ErrUnknownEvent   = errors.New("unknown event")
)

var kindErrors = map[ErrorKind]error{
	ErrorAuthentication: ErrAuthentication,
	ErrorRateLimit:      ErrRateLimit,
	ErrorServer:         ErrServer,
	ErrorNetwork:        ErrNetwork,
	ErrorValidation:     ErrValidation,
	ErrorUnknownEvent:   ErrUnknownEvent,
}

// NewFailure constructs a Failure of the given kind
func NewFailure(kind ErrorKind, status int, format string, args ...any) *Failure {
	return &Failure{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: status,
	}
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", f.Kind, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Is matches the sentinel error for the failure's kind
func (f *Failure) Is(target error) bool {
	return kindErrors[f.Kind] == target
}

// IsTransient reports whether a later attempt may succeed
func (f *Failure) IsTransient() bool {
	switch f.Kind {
	case ErrorNetwork, ErrorServer, ErrorRateLimit:
		return true
	default:
		return false
	}
}

// Err returns the failure as an error, or nil on success
func (r *ExecutionResult) Err() error {
	if r.Success || r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Kind returns the failure kind, or empty on success
func (r *ExecutionResult) Kind() ErrorKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}
