package bookmark

import (
	"errors"
	"fmt"
)

// Outcomes the request layer can translate into client-facing responses.
var (
	// ErrDuplicate signals a (user, url) or (user, name) uniqueness violation.
	ErrDuplicate = errors.New("already exists")
	// ErrNotFound signals that the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized signals that the caller does not own the entity.
	ErrUnauthorized = errors.New("user not authorized")
	// ErrValidation signals a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
)

// PersistenceError wraps any storage failure that is not one of the outcomes above.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the storage error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// storageErr passes domain outcomes through and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized), errors.Is(err, ErrValidation):
		return fmt.Errorf("%s: %w", op, err)
	}
	return &PersistenceError{Op: op, Err: err}
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
