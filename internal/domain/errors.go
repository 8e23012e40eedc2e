package domain

import (
	"errors"
	"fmt"
)

// AuthReason is why a connection attempt was rejected.
type AuthReason string

const (
	ReasonInvalidProjectID  AuthReason = "InvalidProjectId"
	ReasonProjectNotFound   AuthReason = "ProjectNotFound"
	ReasonMissingCredential AuthReason = "MissingCredential"
	ReasonInvalidCredential AuthReason = "InvalidCredential"
)

// Code returns the wire code sent to the client.
func (r AuthReason) Code() string {
	switch r {
	case ReasonInvalidProjectID:
		return "INVALID_PROJECT_ID"
	case ReasonProjectNotFound:
		return "PROJECT_NOT_FOUND"
	case ReasonMissingCredential:
		return "MISSING_CREDENTIAL"
	case ReasonInvalidCredential:
		return "INVALID_CREDENTIAL"
	default:
		return "UNAUTHORIZED"
	}
}

// Message returns the human readable rejection text.
func (r AuthReason) Message() string {
	switch r {
	case ReasonInvalidProjectID:
		return "invalid project id"
	case ReasonProjectNotFound:
		return "project not found"
	case ReasonMissingCredential:
		return "authentication token required"
	case ReasonInvalidCredential:
		return "invalid or expired token"
	default:
		return "unauthorized"
	}
}

// AuthError rejects a connection attempt before it joins any room.
type AuthError struct {
	Reason AuthReason
	Err    error
}

// NewAuthError creates an AuthError. err may be nil.
func NewAuthError(reason AuthReason, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AuthReasonOf returns the reason carried by err, if any.
func AuthReasonOf(err error) (AuthReason, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}

// ErrStoreUnavailable marks a project store outage during the handshake.
var ErrStoreUnavailable = errors.New("project store unavailable")

// MessageHandlingError is a failure while processing one inbound frame. It is
// logged and never closes the connection.
type MessageHandlingError struct {
	ConnectionID string
	Event        string
	Err          error
}

func (e *MessageHandlingError) Error() string {
	return fmt.Sprintf("handle %q from connection %s: %v", e.Event, e.ConnectionID, e.Err)
}

func (e *MessageHandlingError) Unwrap() error { return e.Err }

// AIInvocationError is a failed assistant completion.
type AIInvocationError struct {
	InvocationID string
	RoomID       string
	Err          error
}

func (e *AIInvocationError) Error() string {
	return fmt.Sprintf("ai invocation %s for room %s: %v", e.InvocationID, e.RoomID, e.Err)
}

func (e *AIInvocationError) Unwrap() error { return e.Err }

// SupervisionFailure is a panic recovered by a supervised task.
type SupervisionFailure struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *SupervisionFailure) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *SupervisionFailure) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
