// Package storage is the Postgres implementation of the booking stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, business_id, service_id, client_name, COALESCE(client_phone, ''), COALESCE(client_email, ''),
	start_time, end_time, status, source, COALESCE(cancellation_reason, ''), cancelled_at, created_at, updated_at`

// AppointmentRepository serializes calendar writers of one business with a transaction
// scoped advisory lock. The appointments_no_overlap exclusion constraint backs it up.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ booking.AppointmentStore = (*AppointmentRepository)(nil)

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

func (r *AppointmentRepository) InsertIfFree(ctx context.Context, appt model.Appointment, idempotencyKey string) (model.Appointment, error) {
	var out model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, appt.BusinessID); err != nil {
			return fmt.Errorf("lock business calendar: %w", err)
		}

		if idempotencyKey != "" {
			existingID, err := lockIdempotencyKey(ctx, tx, appt.BusinessID, idempotencyKey)
			if err != nil {
				return fmt.Errorf("idempotency key: %w", err)
			}
			if existingID != "" {
				out, err = scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, existingID))
				return err
			}
		}

		var takenStart, takenEnd time.Time
		err := tx.QueryRow(ctx, `
			SELECT start_time, end_time
			FROM appointments
			WHERE business_id = $1
				AND status IN ('pending', 'confirmed')
				AND start_time < $3
				AND end_time > $2
			ORDER BY start_time
			LIMIT 1
		`, appt.BusinessID, appt.StartTime, appt.EndTime).Scan(&takenStart, &takenEnd)
		if err == nil {
			return apperror.SlotTaken(takenStart, takenEnd)
		}
		if !IsNotFound(err) {
			return err
		}

		out, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments
				(business_id, service_id, client_name, client_phone, client_email, start_time, end_time, status, source, created_at, updated_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $10)
			RETURNING `+appointmentColumns,
			appt.BusinessID, appt.ServiceID, appt.Client.Name, appt.Client.Phone, appt.Client.Email,
			appt.StartTime, appt.EndTime, string(appt.Status), string(appt.Source), appt.CreatedAt))
		if err != nil {
			return err
		}

		if idempotencyKey != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE booking_idempotency_keys
				SET appointment_id = $3, updated_at = now()
				WHERE business_id = $1 AND idempotency_key = $2
			`, appt.BusinessID, idempotencyKey, out.ID); err != nil {
				return err
			}
		}
		return r.emit(ctx, tx, outbox.EventAppointmentBooked, out)
	})
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, apperror.SlotTaken(appt.StartTime, appt.EndTime)
		}
		return model.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return model.Appointment{}, apperror.NotFound("appointment")
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND ($2 = '' OR business_id = $2)
	`, appointmentID, businessID))
	if IsNotFound(err) {
		return model.Appointment{}, apperror.NotFound("appointment")
	}
	return appt, err
}

func (r *AppointmentRepository) Transition(ctx context.Context, businessID, appointmentID string, fn booking.TransitionFunc) (model.Appointment, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return model.Appointment{}, apperror.NotFound("appointment")
	}
	var out model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1 AND ($2 = '' OR business_id = $2)
			FOR UPDATE
		`, appointmentID, businessID))
		if IsNotFound(err) {
			return apperror.NotFound("appointment")
		}
		if err != nil {
			return err
		}

		next, changed, err := fn(current)
		if err != nil {
			return err
		}
		out = next
		if !changed {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = $2,
				cancellation_reason = NULLIF($3, ''),
				cancelled_at = $4,
				updated_at = $5
			WHERE id = $1
		`, next.ID, string(next.Status), next.CancelReason, next.CancelledAt, next.UpdatedAt); err != nil {
			return err
		}
		if eventType, ok := outbox.EventTypeForStatus(next.Status); ok && next.Status != current.Status {
			return r.emit(ctx, tx, eventType, next)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepository) ListRange(ctx context.Context, businessID string, from, to time.Time, activeOnly bool) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND start_time < $3
			AND end_time > $2
			AND (NOT $4 OR status IN ('pending', 'confirmed'))
		ORDER BY start_time ASC
	`, businessID, from, to, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) emit(ctx context.Context, tx pgx.Tx, eventType string, appt model.Appointment) error {
	if r.outbox == nil {
		return nil
	}
	evt, err := outbox.AppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

// lockIdempotencyKey claims key for the current transaction and returns the appointment
// a previous request created with it, if any.
func lockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key); err != nil {
		return "", err
	}
	var appointmentID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(&appointmentID)
	return appointmentID, err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt   model.Appointment
		status string
		source string
	)
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.ServiceID,
		&appt.Client.Name,
		&appt.Client.Phone,
		&appt.Client.Email,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&source,
		&appt.CancelReason,
		&appt.CancelledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.Source = model.Source(source)
	return appt, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
