package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/redisx"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
	"github.com/redis/go-redis/v9"
)

// backends holds the stores chosen from settings: Postgres when DATABASE_URL is set,
// process memory otherwise; Redis or memory for holds.
type backends struct {
	pool  *db.Pool
	rdb   *redis.Client
	inbox *storage.InboxRepository
	out   *outbox.Repository

	catalog      booking.Catalog
	appointments booking.AppointmentStore
	hours        *calendar.Service
	holds        holds.Store
	ready        []runtime.ReadyCheck
}

func openBackends(ctx context.Context, s settings, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if s.RedisAddr != "" {
		rdb, err := redisx.Open(ctx, redisx.Options{Addr: s.RedisAddr, Password: s.RedisPassword, DB: s.RedisDB})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.rdb = rdb
		b.ready = append(b.ready, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	if s.DatabaseURL != "" {
		pool, err := db.Open(ctx, s.DatabaseURL, db.Options{MaxConns: int32(s.DBMaxConns), AppName: s.Service, StatementTimeout: s.DBStatementTimeout})
		if err != nil {
			b.close()
			return nil, fmt.Errorf("db: %w", err)
		}
		b.pool = pool
		b.out = outbox.NewRepository(pool)
		b.inbox = storage.NewInboxRepository(pool)
		b.catalog = storage.NewCatalogRepository(pool)
		b.appointments = storage.NewAppointmentRepository(pool, b.out)
		b.hours = calendar.NewService(storage.NewHoursRepository(pool))
		b.ready = append(b.ready, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in process memory")
		mem := memstore.New()
		b.catalog = mem
		b.appointments = mem
		b.hours = calendar.NewService(mem)
		if s.SeedFile != "" {
			if err := loadSeed(ctx, s.SeedFile, mem, b.hours); err != nil {
				return nil, fmt.Errorf("seed: %w", err)
			}
			logger.Info("catalog seeded", "file", s.SeedFile)
		}
	}

	if s.HoldStore == "redis" {
		b.holds = holds.NewRedisStore(b.rdb, holds.RedisOptions{Logger: logger})
	} else {
		b.holds = holds.NewMemoryStore()
	}
	return b, nil
}

func (b *backends) close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
}

type seedFile struct {
	Businesses []model.Business `json:"businesses"`
	Services   []struct {
		ID              string `json:"id"`
		BusinessID      string `json:"business_id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		Price           string `json:"price"`
		IsActive        *bool  `json:"is_active"`
	} `json:"services"`
	Hours map[string][]struct {
		Weekday      int  `json:"weekday"`
		OpenMinutes  *int `json:"open_minutes"`
		CloseMinutes *int `json:"close_minutes"`
	} `json:"hours"`
}

func loadSeed(ctx context.Context, path string, mem *memstore.Store, hours *calendar.Service) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return err
	}
	for _, biz := range seed.Businesses {
		mem.PutBusiness(biz)
	}
	for _, svc := range seed.Services {
		active := svc.IsActive == nil || *svc.IsActive
		mem.PutService(model.Service{
			ID:              svc.ID,
			BusinessID:      svc.BusinessID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			Price:           svc.Price,
			IsActive:        active,
		})
	}
	for businessID, days := range seed.Hours {
		// Weekdays missing from the seed are closed.
		week := calendar.ClosedWeek()
		for _, d := range days {
			if d.Weekday < 0 || d.Weekday > 6 {
				return fmt.Errorf("hours for %s: weekday %d out of range", businessID, d.Weekday)
			}
			week[d.Weekday] = model.BusinessHours{Weekday: time.Weekday(d.Weekday), OpenMinutes: d.OpenMinutes, CloseMinutes: d.CloseMinutes}
		}
		if _, err := hours.ReplaceAll(ctx, businessID, week[:]); err != nil {
			return fmt.Errorf("hours for %s: %w", businessID, err)
		}
	}
	return nil
}
