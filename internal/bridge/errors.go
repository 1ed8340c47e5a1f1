package bridge

import (
	"errors"
	"fmt"
)

// Domain errors for the bridge package.
var (
	// ErrMalformedPayload is returned when a command payload is not JSON.
	ErrMalformedPayload = errors.New("bridge: malformed payload")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("bridge: command validation failed")

	// ErrInvalidTopic is returned when a control topic has a bad device id
	// or station.
	ErrInvalidTopic = errors.New("bridge: invalid topic")
)

// ValidationError names the field and the constraint a command violated.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Constraint)
	}
	return fmt.Sprintf("%v: %s %s", ErrValidation, e.Field, e.Constraint)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
