package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"clinic-scheduling-api/internal/events"
	"clinic-scheduling-api/internal/middleware"
	"clinic-scheduling-api/internal/model"
	"clinic-scheduling-api/internal/schedule"
)

// POST /appointments lets a patient book a slot with a doctor.
func (h *Handler) CreateAppointment(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no token provided"})
		return
	}

	var req struct {
		DoctorID        string    `json:"doctorId" binding:"required"`
		StartAt         time.Time `json:"startAt" binding:"required"`
		DurationMinutes int       `json:"durationMinutes" binding:"required"`
		Reason          string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing or invalid fields"})
		return
	}
	if _, err := uuid.Parse(req.DoctorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid doctor id"})
		return
	}

	a, err := h.sched.Book(c.Request.Context(), schedule.BookingRequest{
		PatientID:       caller.ID,
		DoctorID:        req.DoctorID,
		StartAt:         req.StartAt,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}

	h.publish(c.Request.Context(), events.KeyAppointmentCreated, a)

	cache := map[string]*model.User{}
	c.JSON(http.StatusCreated, gin.H{
		"status":      "success",
		"appointment": h.toAppointmentResponse(c.Request.Context(), a, cache),
	})
}

// GET /appointments lists for the current user, filtered by from/to/status.
func (h *Handler) ListAppointments(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no token provided"})
		return
	}

	var f schedule.ListFilter
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid from (expected RFC 3339)"})
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid to (expected RFC 3339)"})
			return
		}
		f.To = &t
	}
	if v := c.Query("status"); v != "" {
		st := model.Status(v)
		f.Status = &st
	}

	appts, err := h.sched.List(c.Request.Context(), caller, f)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	cache := map[string]*model.User{}
	out := make([]appointmentResponse, len(appts))
	for i := range appts {
		out[i] = h.toAppointmentResponse(c.Request.Context(), &appts[i], cache)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(out), "appointments": out})
}

// GET /appointments/:id
func (h *Handler) GetAppointment(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no token provided"})
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid appointment id"})
		return
	}

	a, err := h.sched.Get(c.Request.Context(), id, caller)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	cache := map[string]*model.User{}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"appointment": h.toAppointmentResponse(c.Request.Context(), a, cache),
	})
}

// PATCH /appointments/:id. Doctors set status and notes, patients cancel.
func (h *Handler) UpdateAppointment(c *gin.Context) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "no token provided"})
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid appointment id"})
		return
	}

	var req struct {
		Status *string `json:"status"`
		Notes  *string `json:"notes"`
		Action string  `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	upd := schedule.UpdateRequest{Notes: req.Notes, Action: req.Action}
	if req.Status != nil {
		st := model.Status(*req.Status)
		upd.Status = &st
	}

	a, err := h.sched.Update(c.Request.Context(), id, caller, upd)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	key := events.KeyAppointmentUpdated
	if a.Status == model.StatusCancelled {
		key = events.KeyAppointmentCancelled
	}
	h.publish(c.Request.Context(), key, a)

	cache := map[string]*model.User{}
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"appointment": h.toAppointmentResponse(c.Request.Context(), a, cache),
	})
}
