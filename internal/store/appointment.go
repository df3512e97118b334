package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clinic-scheduling-api/internal/model"
	"clinic-scheduling-api/internal/schedule"
)

const apptCols = `id, patient_id, doctor_id, start_at, end_at, duration_minutes,
	status, COALESCE(reason,''), COALESCE(notes,''), created_at, updated_at`

func (s *Store) Insert(ctx context.Context, a *model.Appointment) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO appointments
		   (id, patient_id, doctor_id, start_at, end_at, duration_minutes, status, reason)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.StartAt, a.EndAt, a.DurationMinutes, a.Status, a.Reason,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isPgErr(err, pgExclusionViolation) {
		// a concurrent booking won the slot between check and insert
		return schedule.ErrSlotConflict
	}
	return err
}

func (s *Store) ByID(ctx context.Context, id string) (*model.Appointment, error) {
	a := &model.Appointment{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`, id,
	).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartAt, &a.EndAt, &a.DurationMinutes,
		&a.Status, &a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) Update(ctx context.Context, a *model.Appointment) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE appointments SET status=$1, notes=$2, updated_at=NOW()
		 WHERE id=$3
		 RETURNING updated_at`,
		a.Status, a.Notes, a.ID,
	).Scan(&a.UpdatedAt)
	if isPgErr(err, pgExclusionViolation) {
		// confirming into a slot another active appointment now holds
		return schedule.ErrSlotConflict
	}
	return err
}

func (s *Store) HasOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	q := `SELECT EXISTS(
		SELECT 1 FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('pending','confirmed')
		  AND start_at < $3
		  AND end_at > $2`

	args := []any{doctorID, start, end}

	if excludeID != "" {
		q += ` AND id != $4`
		args = append(args, excludeID)
	}
	q += `)`

	var exists bool
	err := s.pool.QueryRow(ctx, q, args...).Scan(&exists)
	return exists, err
}

func (s *Store) ListForUser(ctx context.Context, userID string, role model.Role, f schedule.ListFilter) ([]model.Appointment, error) {
	col := "patient_id"
	if role == model.RoleDoctor {
		col = "doctor_id"
	}
	q := `SELECT ` + apptCols + ` FROM appointments WHERE ` + col + ` = $1`
	args := []any{userID}

	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(` AND start_at >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += fmt.Sprintf(` AND start_at <= $%d`, len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	q += ` ORDER BY start_at`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.StartAt, &a.EndAt,
			&a.DurationMinutes, &a.Status, &a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
