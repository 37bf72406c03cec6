package aggregate

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrValidation marks commands refused because of their content.
	ErrValidation = errors.New("validation failed")
	// ErrInternal marks unexpected failures while routing or applying.
	ErrInternal = errors.New("internal error")
)

// CommandError is the failure delivered to a command sender. It matches
// ErrValidation or ErrInternal with errors.Is, and any wrapped cause.
type CommandError struct {
	Kind       error
	Instrument string
	CommandID  uuid.UUID
	Reason     string
	Err        error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Instrument, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(instrument string, id uuid.UUID, reason string) *CommandError {
	return &CommandError{Kind: ErrValidation, Instrument: instrument, CommandID: id, Reason: reason}
}

// InternalError wraps cause as an ErrInternal command failure.
func InternalError(instrument string, id uuid.UUID, reason string, cause error) *CommandError {
	return &CommandError{Kind: ErrInternal, Instrument: instrument, CommandID: id, Reason: reason, Err: cause}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
