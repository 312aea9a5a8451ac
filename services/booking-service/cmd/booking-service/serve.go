package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), s)
		},
	}
}

func serve(parent context.Context, s settings) error {
	logger := runtime.NewLoggerWithLevel(s.Service, s.LogLevel)

	ctx, stop := runtime.SignalContext(parent)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(s.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	b, err := openBackends(ctx, s, logger)
	if err != nil {
		return err
	}
	defer b.close()

	coord := booking.NewCoordinator(b.catalog, b.appointments, b.hours, b.holds, logger, booking.Config{
		Location:     s.Location,
		MaxRangeDays: s.MaxRangeDays,
	})
	manager := holds.NewManager(b.holds, coord, logger, holds.Config{TTL: s.HoldTTL})

	ready := b.ready
	if s.KafkaBrokers != "" {
		ready = append(ready, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(s.KafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(ready...)
	handlers.Routes{
		Booking:       handlers.NewBookingHandler(coord, logger),
		Conversations: handlers.NewConversationHandler(manager, logger),
		Public:        []httpx.Middleware{publicRateLimit(s, b, logger)},
	}.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: s.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id", "X-Business-Id"},
			ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(s.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", s.Location.String(), "hold_store", s.HoldStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	// Redis expires holds on its own.
	if s.HoldStore == "memory" {
		sweeper := holds.NewSweeper(b.holds, logger, holds.SweeperConfig{Interval: s.HoldSweepEvery})
		g.Go(func() error { sweeper.Run(gctx); return nil })
	}

	if b.pool != nil {
		publisher := outbox.NewPublisher(b.pool, b.out, logger, outbox.PublisherConfig{Brokers: s.KafkaBrokers})
		g.Go(func() error { publisher.Run(gctx); return nil })
	}

	if s.KafkaBrokers != "" && s.SuggestionTopic != "" {
		var inbox consumer.Inbox
		if b.inbox != nil {
			inbox = b.inbox
		}
		suggestions := consumer.New(logger, inbox, consumer.Config{
			Brokers: s.KafkaBrokers,
			GroupID: s.KafkaGroupID,
			Topic:   s.SuggestionTopic,
		}, consumer.SlotSuggestedHandler(manager, logger))
		g.Go(func() error { suggestions.Run(gctx); return nil })
	}

	return g.Wait()
}

func publicRateLimit(s settings, b *backends, logger *slog.Logger) httpx.Middleware {
	if b.rdb != nil {
		return httpx.NewRedisRateLimiter(b.rdb, s.PublicRateLimit, s.PublicRateWindow, "slotbook:rl:public").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(s.PublicRateLimit, s.PublicRateWindow).Middleware()
}
