package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
)

type settings struct {
	Service  string
	Port     string
	LogLevel string

	Location     *time.Location
	MaxRangeDays int

	DatabaseURL string
	DBMaxConns  int

	DBStatementTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HoldStore      string
	HoldTTL        time.Duration
	HoldSweepEvery time.Duration

	KafkaBrokers    string
	KafkaGroupID    string
	SuggestionTopic string

	PublicRateLimit  int
	PublicRateWindow time.Duration
	RequestTimeout   time.Duration
	CORSOrigins      []string

	// SeedFile preloads the in-memory catalog when no database is configured.
	SeedFile string
}

func loadSettings() (settings, error) {
	s := settings{
		Service:          config.String("SERVICE_NAME", "booking-service"),
		LogLevel:         config.String("LOG_LEVEL", "info"),
		MaxRangeDays:     config.Int("AVAILABILITY_MAX_DAYS", 31),
		DatabaseURL:      config.String("DATABASE_URL", ""),
		DBMaxConns:       config.Int("DB_MAX_CONNS", 10),
		RedisAddr:        config.String("REDIS_ADDR", ""),
		RedisPassword:    config.String("REDIS_PASSWORD", ""),
		RedisDB:          config.Int("REDIS_DB", 0),
		HoldStore:        strings.ToLower(config.String("HOLD_STORE", "memory")),
		HoldTTL:          config.Duration("HOLD_TTL", 20*time.Minute),
		HoldSweepEvery:   config.Duration("HOLD_SWEEP_INTERVAL", time.Minute),
		KafkaBrokers:     config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:     config.String("KAFKA_GROUP_ID", "booking-service"),
		SuggestionTopic:  config.String("KAFKA_SUGGESTION_TOPIC", consumer.TopicSlotSuggested),
		PublicRateLimit:  config.Int("PUBLIC_RATE_LIMIT", 60),
		PublicRateWindow: config.Duration("PUBLIC_RATE_WINDOW", time.Minute),
		RequestTimeout:   config.Duration("REQUEST_TIMEOUT", 10*time.Second),
		CORSOrigins:      config.List("CORS_ALLOWED_ORIGINS", ""),
		SeedFile:         config.String("BOOKING_SEED_FILE", ""),
	}

	s.DBStatementTimeout = config.Duration("DB_STATEMENT_TIMEOUT", 5*time.Second)

	port, err := config.Port("PORT", "8083")
	if err != nil {
		return settings{}, err
	}
	s.Port = port

	tz := config.String("BOOKING_TIMEZONE", "UTC")
	s.Location, err = time.LoadLocation(tz)
	if err != nil {
		return settings{}, fmt.Errorf("BOOKING_TIMEZONE: %w", err)
	}

	switch s.HoldStore {
	case "memory":
	case "redis":
		if s.RedisAddr == "" {
			return settings{}, fmt.Errorf("HOLD_STORE=redis requires REDIS_ADDR")
		}
	default:
		return settings{}, fmt.Errorf("HOLD_STORE must be memory or redis (got %q)", s.HoldStore)
	}
	if s.HoldTTL <= 0 {
		return settings{}, fmt.Errorf("HOLD_TTL must be positive")
	}
	if s.MaxRangeDays <= 0 {
		return settings{}, fmt.Errorf("AVAILABILITY_MAX_DAYS must be positive")
	}
	return s, nil
}
