package model

import (
	"errors"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
)

var (
	// ErrInvalidWindow covers zero/negative windows and malformed recurring rules
	ErrInvalidWindow = window.ErrInvalidWindow
	// ErrNotFound is returned when a referenced entity is absent from the snapshot
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a hard conflict blocks confirmation
	ErrConflict = errors.New("conflict")
	// ErrInvalidState is returned for operations on cancelled or already confirmed rehearsals
	ErrInvalidState = errors.New("invalid state")
	// ErrUnauthorized is returned when the actor is not an admin of the group
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorKind maps sentinel errors to a stable label for logs and CLI output
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidWindow):
		return "invalid_window"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	}
	return "unexpected"
}
