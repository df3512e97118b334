package handler

import (
	"context"
	"time"

	"clinic-scheduling-api/internal/model"
)

type userResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           string(u.Role),
		Phone:          u.Phone,
		Specialization: u.Specialization,
	}
}

// participant is the embedded doctor/patient summary on appointment reads.
type participant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

type appointmentResponse struct {
	ID              string       `json:"id"`
	PatientID       string       `json:"patientId"`
	DoctorID        string       `json:"doctorId"`
	StartAt         time.Time    `json:"startAt"`
	EndAt           time.Time    `json:"endAt"`
	DurationMinutes int          `json:"durationMinutes"`
	Status          string       `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	Patient         *participant `json:"patient,omitempty"`
	Doctor          *participant `json:"doctor,omitempty"`
}

// toAppointmentResponse shapes an appointment for the wire, resolving
// participant summaries through the cache so a listing does one lookup
// per distinct user. Lookup failures just omit the summary.
func (h *Handler) toAppointmentResponse(ctx context.Context, a *model.Appointment, cache map[string]*model.User) appointmentResponse {
	resp := appointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		StartAt:         a.StartAt,
		EndAt:           a.EndAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if p := h.lookup(ctx, a.PatientID, cache); p != nil {
		resp.Patient = &participant{ID: p.ID, Name: p.Name, Email: p.Email}
	}
	if d := h.lookup(ctx, a.DoctorID, cache); d != nil {
		resp.Doctor = &participant{ID: d.ID, Name: d.Name, Specialization: d.Specialization}
	}
	return resp
}

func (h *Handler) lookup(ctx context.Context, id string, cache map[string]*model.User) *model.User {
	if u, ok := cache[id]; ok {
		return u
	}
	u, err := h.users.UserByID(ctx, id)
	if err != nil {
		h.log.Warn().Err(err).Str("user", id).Msg("participant lookup failed")
		u = nil
	}
	cache[id] = u
	return u
}
