package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type HoursRepository struct {
	pool *db.Pool
}

var _ calendar.Store = (*HoursRepository)(nil)

func NewHoursRepository(pool *db.Pool) *HoursRepository {
	return &HoursRepository{pool: pool}
}

func (r *HoursRepository) GetWeek(ctx context.Context, businessID string) ([]model.BusinessHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_minutes, close_minutes
		FROM business_hours
		WHERE business_id = $1
		ORDER BY weekday
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BusinessHours
	for rows.Next() {
		var (
			weekday int16
			h       model.BusinessHours
		)
		if err := rows.Scan(&weekday, &h.OpenMinutes, &h.CloseMinutes); err != nil {
			return nil, err
		}
		h.Weekday = time.Weekday(weekday)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReplaceWeek rewrites all seven rows in one transaction. An unknown business is NotFound.
func (r *HoursRepository) ReplaceWeek(ctx context.Context, businessID string, week calendar.Week) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM business_hours WHERE business_id = $1`, businessID)
		for _, h := range week.Entries() {
			batch.Queue(`
				INSERT INTO business_hours (business_id, weekday, open_minutes, close_minutes)
				VALUES ($1, $2, $3, $4)
			`, businessID, int16(h.Weekday), h.OpenMinutes, h.CloseMinutes)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if IsForeignKeyViolation(err) {
		return apperror.NotFound("business")
	}
	return err
}
