package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"clinic-scheduling-api/internal/config"
	"clinic-scheduling-api/internal/events"
	"clinic-scheduling-api/internal/model"
	"clinic-scheduling-api/internal/schedule"
	"clinic-scheduling-api/internal/store"
)

// UserStore is the identity persistence the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)
	ListDoctors(ctx context.Context) ([]model.User, error)
}

type TokenStore interface {
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	RefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

type Handler struct {
	users      UserStore
	tokens     TokenStore
	sched      *schedule.Service
	secret     string
	jwtTTL     time.Duration
	refreshTTL time.Duration
	events     *events.Publisher
	log        zerolog.Logger
}

func New(users UserStore, tokens TokenStore, sched *schedule.Service, cfg config.Config, pub *events.Publisher, log zerolog.Logger) *Handler {
	return &Handler{
		users:      users,
		tokens:     tokens,
		sched:      sched,
		secret:     cfg.JWTSecret,
		jwtTTL:     cfg.JWTExpiry,
		refreshTTL: cfg.RefreshExpiry,
		events:     pub,
		log:        log,
	}
}

// respondErr maps core errors onto the HTTP taxonomy. Unexpected errors
// are logged and returned as a generic 500; internal detail never leaks.
func (h *Handler) respondErr(c *gin.Context, err error) {
	var ve *schedule.ValidationError
	var cw *schedule.CancelWindowError
	var te *schedule.TransitionError

	switch {
	case errors.Is(err, schedule.ErrDoctorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "doctor not found"})
	case errors.Is(err, schedule.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	case errors.Is(err, schedule.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "forbidden"})
	case errors.Is(err, schedule.ErrPastStart):
		c.JSON(http.StatusBadRequest, gin.H{"message": "startAt must be in the future"})
	case errors.Is(err, schedule.ErrSlotConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "time slot conflict"})
	case errors.Is(err, schedule.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid action"})
	case errors.Is(err, store.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"message": "email already registered"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"message": ve.Msg})
	case errors.As(err, &cw):
		c.JSON(http.StatusBadRequest, gin.H{"message": cw.Error()})
	case errors.As(err, &te):
		c.JSON(http.StatusBadRequest, gin.H{"message": te.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "server error"})
	}
}

// publish fires an appointment event; failures are logged, never surfaced.
func (h *Handler) publish(ctx context.Context, key string, a *model.Appointment) {
	ev := events.AppointmentEvent{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		StartAt:   a.StartAt,
		EndAt:     a.EndAt,
		Status:    string(a.Status),
	}
	if err := h.events.Publish(ctx, key, ev); err != nil {
		h.log.Warn().Err(err).Str("key", key).Str("appointment", a.ID).Msg("event publish failed")
	}
}
