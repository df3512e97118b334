// Package schedule holds the booking decision logic: slot validation,
// conflict detection and the appointment status state machine. It is
// independent of the HTTP surface and of the storage technology; stores
// are consumed through the UserDirectory and AppointmentStore interfaces.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clinic-scheduling-api/internal/model"
)

// UserDirectory resolves user records. An absent user is (nil, nil).
type UserDirectory interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
}

// AppointmentStore is the persistence contract for appointments.
// An absent appointment is (nil, nil). Insert and Update return
// ErrSlotConflict when a store-level exclusion constraint rejects the
// slot; that is what closes the check-then-insert race.
type AppointmentStore interface {
	Insert(ctx context.Context, a *model.Appointment) error
	ByID(ctx context.Context, id string) (*model.Appointment, error)
	Update(ctx context.Context, a *model.Appointment) error
	HasOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error)
	ListForUser(ctx context.Context, userID string, role model.Role, f ListFilter) ([]model.Appointment, error)
}

// Caller is an already-authenticated identity. The core never parses
// credentials.
type Caller struct {
	ID   string
	Role model.Role
}

type BookingRequest struct {
	PatientID       string
	DoctorID        string
	StartAt         time.Time
	DurationMinutes int
	Reason          string
}

// UpdateRequest is role-polymorphic: doctors use Status/Notes, patients
// use Action ("cancel" is the only accepted value).
type UpdateRequest struct {
	Status *model.Status
	Notes  *string
	Action string
}

// ListFilter matches on startAt only; duration is irrelevant to the filter.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status *model.Status
}

type Service struct {
	users  UserDirectory
	appts  AppointmentStore
	cutoff time.Duration
	now    func() time.Time
}

func NewService(users UserDirectory, appts AppointmentStore, cutoffMinutes int) *Service {
	return &Service{
		users:  users,
		appts:  appts,
		cutoff: time.Duration(cutoffMinutes) * time.Minute,
		now:    time.Now,
	}
}

// Book runs the admission sequence for a new appointment. Steps 1-4 are
// pure reads; the only write is the final insert, so a failure leaves no
// partial state.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*model.Appointment, error) {
	doc, err := s.users.UserByID(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	if doc == nil || doc.Role != model.RoleDoctor {
		return nil, ErrDoctorNotFound
	}

	if req.DurationMinutes < MinDurationMinutes || req.DurationMinutes > MaxDurationMinutes {
		return nil, &ValidationError{Msg: fmt.Sprintf(
			"durationMinutes must be between %d and %d", MinDurationMinutes, MaxDurationMinutes)}
	}
	if len(req.Reason) > MaxReasonLength {
		return nil, &ValidationError{Msg: fmt.Sprintf("reason is too long (max %d characters)", MaxReasonLength)}
	}

	if !req.StartAt.After(s.now()) {
		return nil, ErrPastStart
	}
	end := ComputeEndAt(req.StartAt, req.DurationMinutes)

	dup, err := s.appts.HasOverlap(ctx, req.DoctorID, req.StartAt, end, "")
	if err != nil {
		return nil, fmt.Errorf("overlap check: %w", err)
	}
	if dup {
		return nil, ErrSlotConflict
	}

	a := &model.Appointment{
		ID:              uuid.New().String(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		StartAt:         req.StartAt,
		EndAt:           end,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusPending,
		Reason:          req.Reason,
	}
	if err := s.appts.Insert(ctx, a); err != nil {
		// exclusion constraint caught a concurrent booking
		return nil, err
	}
	return a, nil
}

// Update applies a role-dependent mutation. Authorization against the
// target record comes before any change.
func (s *Service) Update(ctx context.Context, id string, caller Caller, req UpdateRequest) (*model.Appointment, error) {
	a, err := s.appts.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if a == nil {
		return nil, ErrNotFound
	}

	switch caller.Role {
	case model.RoleDoctor:
		if a.DoctorID != caller.ID {
			return nil, ErrForbidden
		}
		if req.Status != nil {
			if !req.Status.Valid() {
				return nil, &ValidationError{Msg: fmt.Sprintf("invalid status %q", *req.Status)}
			}
			if !CanTransition(a.Status, *req.Status) {
				return nil, &TransitionError{From: a.Status, To: *req.Status}
			}
			a.Status = *req.Status
		}
		if req.Notes != nil {
			a.Notes = *req.Notes
		}

	case model.RolePatient:
		if a.PatientID != caller.ID {
			return nil, ErrForbidden
		}
		if req.Action != "cancel" {
			return nil, ErrInvalidAction
		}
		if !CanTransition(a.Status, model.StatusCancelled) {
			return nil, &TransitionError{From: a.Status, To: model.StatusCancelled}
		}
		// the cutoff instant itself is still allowed; rejection needs
		// now strictly past startAt-cutoff
		if s.now().After(a.StartAt.Add(-s.cutoff)) {
			return nil, &CancelWindowError{CutoffMinutes: int(s.cutoff / time.Minute)}
		}
		a.Status = model.StatusCancelled

	default:
		return nil, ErrForbidden
	}

	if err := s.appts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string, caller Caller) (*model.Appointment, error) {
	a, err := s.appts.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.DoctorID != caller.ID && a.PatientID != caller.ID {
		return nil, ErrForbidden
	}
	return a, nil
}

// List returns the caller's appointments, ascending by startAt.
func (s *Service) List(ctx context.Context, caller Caller, f ListFilter) ([]model.Appointment, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid status %q", *f.Status)}
	}
	return s.appts.ListForUser(ctx, caller.ID, caller.Role, f)
}
