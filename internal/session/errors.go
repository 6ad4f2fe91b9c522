package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error codes attached to failure stops and returned by ErrorCode.
const (
	CodeSessionConflict     = "session_conflict"
	CodeSourceUnavailable   = "source_unavailable"
	CodeMissingCollaborator = "missing_collaborator"
	CodeAcquisitionTimeout  = "acquisition_timeout"
	CodeTrialAckTimeout     = "trial_ack_timeout"
	CodeActuatorTimeout     = "actuator_timeout"
	CodeActuatorFailed      = "actuator_failed"
	CodeActuatorThrottled   = "actuator_throttled"
	CodeSessionFailed       = "session_failed"
)

// configurationError is returned synchronously when an operation is not
// allowed in the current configuration; session state is left unchanged.
type configurationError struct {
	code string
	msg  string
}

func (e configurationError) Error() string { return e.msg }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var ce configurationError
	return errors.As(err, &ce)
}

// IsConflict reports whether err rejects a start because the other session
// is active.
func IsConflict(err error) bool {
	var ce configurationError
	return errors.As(err, &ce) && ce.code == CodeSessionConflict
}

func errConflict(running string) error {
	return configurationError{code: CodeSessionConflict, msg: running + " session is active"}
}

func errSourceUnavailable(name string) error {
	return configurationError{code: CodeSourceUnavailable, msg: "signal source not available: " + name}
}

func errMissingCollaborator(what string) error {
	return configurationError{code: CodeMissingCollaborator, msg: "missing collaborator: " + what}
}

// collaboratorTimeoutError signals a collaborator that did not respond in
// time. The affected session is stopped.
type collaboratorTimeoutError struct {
	code         string
	collaborator string
	after        time.Duration
}

func (e collaboratorTimeoutError) Error() string {
	return fmt.Sprintf("%s did not respond within %s", e.collaborator, e.after)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) hold.
func (e collaboratorTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsCollaboratorTimeout reports whether err is a collaborator timeout.
func IsCollaboratorTimeout(err error) bool {
	var te collaboratorTimeoutError
	return errors.As(err, &te)
}

// ErrorCode maps err to the code published with a failure stop. Unknown
// errors map to CodeSessionFailed; nil maps to "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ce configurationError
	if errors.As(err, &ce) {
		return ce.code
	}
	var te collaboratorTimeoutError
	if errors.As(err, &te) {
		return te.code
	}
	if errors.Is(err, errThrottled) {
		return CodeActuatorThrottled
	}
	return CodeSessionFailed
}
