package model

import "time"

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether the status occupies a slot for conflict purposes.
// Cancelled frees the calendar, completed is historical.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	Role           Role
	Phone          string
	Specialization string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Appointment struct {
	ID              string
	PatientID       string
	DoctorID        string
	StartAt         time.Time
	EndAt           time.Time
	DurationMinutes int
	Status          Status
	Reason          string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}
