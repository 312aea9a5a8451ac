package holds

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const DefaultTTL = 20 * time.Minute

// Booker is the part of the booking coordinator a hold needs.
type Booker interface {
	CheckSlot(ctx context.Context, businessID, serviceID string, start time.Time, holderKey string) (model.Service, error)
	CreateAppointment(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
}

type Config struct {
	TTL time.Duration
	Now func() time.Time
}

type Manager struct {
	store  Store
	booker Booker
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store Store, booker Booker, logger *slog.Logger, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, booker: booker, logger: logger, ttl: cfg.TTL, now: cfg.Now}
}

type SuggestRequest struct {
	ConversationKey string
	BusinessID      string
	ServiceID       string
	StartTime       time.Time
}

// SuggestSlot replaces whatever the conversation was holding. The slot is pre-checked
// against hours and committed appointments; the coordinator re-checks on confirmation.
func (m *Manager) SuggestSlot(ctx context.Context, req SuggestRequest) (model.Hold, error) {
	key := strings.TrimSpace(req.ConversationKey)
	switch {
	case key == "":
		return model.Hold{}, apperror.Validation("conversation_key", "conversation_key is required")
	case strings.TrimSpace(req.BusinessID) == "":
		return model.Hold{}, apperror.Validation("business_id", "business_id is required")
	case strings.TrimSpace(req.ServiceID) == "":
		return model.Hold{}, apperror.Validation("service_id", "service_id is required")
	case req.StartTime.IsZero():
		return model.Hold{}, apperror.Validation("scheduled_at", "scheduled_at is required")
	}

	svc, err := m.booker.CheckSlot(ctx, strings.TrimSpace(req.BusinessID), strings.TrimSpace(req.ServiceID), req.StartTime, key)
	if err != nil {
		return model.Hold{}, err
	}

	now := m.now().UTC()
	start := req.StartTime.UTC()
	hold := model.Hold{
		ConversationKey: key,
		BusinessID:      svc.BusinessID,
		ServiceID:       svc.ID,
		StartTime:       start,
		EndTime:         start.Add(svc.Duration()),
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, hold); err != nil {
		return model.Hold{}, err
	}
	m.logger.Info("slot held",
		"conversation_key", key,
		"business_id", hold.BusinessID,
		"start_time", start.Format(time.RFC3339),
		"expires_at", hold.ExpiresAt.Format(time.RFC3339),
	)
	return hold, nil
}

// ConfirmSlot consumes the hold and books it. The hold is gone afterwards whatever the
// outcome, so a rejected confirmation needs a fresh suggestion.
func (m *Manager) ConfirmSlot(ctx context.Context, conversationKey string, client model.Client) (model.Appointment, error) {
	key := strings.TrimSpace(conversationKey)
	if key == "" {
		return model.Appointment{}, apperror.Validation("conversation_key", "conversation_key is required")
	}

	hold, ok, err := m.store.Take(ctx, key)
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, apperror.NotFound("hold")
	}
	if hold.Expired(m.now().UTC()) {
		return model.Appointment{}, apperror.Expired("hold expired; ask for a new suggestion")
	}

	appt, err := m.booker.CreateAppointment(ctx, booking.CreateRequest{
		BusinessID: hold.BusinessID,
		ServiceID:  hold.ServiceID,
		Client:     client,
		StartTime:  hold.StartTime,
		Status:     model.StatusPending,
		Source:     model.SourceAssistant,
	})
	if err != nil {
		m.logger.Info("hold confirmation rejected", "conversation_key", key, "err", err)
		return model.Appointment{}, err
	}
	return appt, nil
}

// ActiveHold returns the conversation's unexpired hold.
func (m *Manager) ActiveHold(ctx context.Context, conversationKey string) (model.Hold, error) {
	h, ok, err := m.store.Get(ctx, strings.TrimSpace(conversationKey), m.now().UTC())
	if err != nil {
		return model.Hold{}, err
	}
	if !ok {
		return model.Hold{}, apperror.NotFound("hold")
	}
	return h, nil
}
