package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/redisx"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			databaseURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			logger := runtime.NewLoggerWithLevel(s.Service, s.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			pool, err := db.Open(ctx, databaseURL, db.Options{MaxConns: 1, AppName: s.Service + "-migrate"})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := storage.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

// newSweepHoldsCmd trims the shared Redis hold indexes once, for use from cron.
func newSweepHoldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-holds",
		Short: "Purge expired tentative holds from the shared hold store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			addr, err := config.RequiredString("REDIS_ADDR")
			if err != nil {
				return fmt.Errorf("%w; in-memory holds are swept by the running server", err)
			}
			logger := runtime.NewLoggerWithLevel(s.Service, s.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rdb, err := redisx.Open(ctx, redisx.Options{Addr: addr, Password: s.RedisPassword, DB: s.RedisDB})
			if err != nil {
				return err
			}
			defer rdb.Close()

			sweeper := holds.NewSweeper(holds.NewRedisStore(rdb, holds.RedisOptions{Logger: logger}), logger, holds.SweeperConfig{})
			n, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			logger.Info("hold sweep finished", "purged", n)
			return nil
		},
	}
}
