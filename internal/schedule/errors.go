package schedule

import (
	"errors"
	"fmt"

	"clinic-scheduling-api/internal/model"
)

var (
	ErrDoctorNotFound = errors.New("doctor not found")
	ErrNotFound       = errors.New("appointment not found")
	ErrForbidden      = errors.New("forbidden")
	ErrPastStart      = errors.New("startAt must be in the future")
	ErrSlotConflict   = errors.New("time slot conflict")
	ErrInvalidAction  = errors.New("invalid action")
)

// ValidationError is a malformed or out-of-range input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// CancelWindowError is a patient cancellation inside the cutoff window.
type CancelWindowError struct {
	CutoffMinutes int
}

func (e *CancelWindowError) Error() string {
	return fmt.Sprintf("cannot cancel within %d minutes of the appointment", e.CutoffMinutes)
}

// TransitionError is a status change that is not on the transition graph.
type TransitionError struct {
	From, To model.Status
}

func (e *TransitionError) Error() string {
	allowed := transitions[e.From]
	if len(allowed) == 0 {
		return fmt.Sprintf("cannot change status of a %s appointment", e.From)
	}
	return fmt.Sprintf("cannot change status from %s to %s (allowed: %v)", e.From, e.To, allowed)
}
