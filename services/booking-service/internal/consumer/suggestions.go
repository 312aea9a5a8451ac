package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const TopicSlotSuggested = "assistant.slot.suggested.v1"

type slotSuggested struct {
	ConversationKey string `json:"conversation_key"`
	BusinessID      string `json:"business_id"`
	ServiceID       string `json:"service_id"`
	ScheduledAt     string `json:"scheduled_at"`
}

// Suggester is implemented by *holds.Manager.
type Suggester interface {
	SuggestSlot(ctx context.Context, req holds.SuggestRequest) (model.Hold, error)
}

// SlotSuggestedHandler turns assistant suggestions into holds. Rejected suggestions are
// logged and dropped; only infrastructure failures are returned.
func SlotSuggestedHandler(suggester Suggester, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt slotSuggested
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Warn("malformed slot suggestion dropped", "err", err)
			return nil
		}
		start, err := time.Parse(time.RFC3339, evt.ScheduledAt)
		if err != nil {
			logger.Warn("slot suggestion with bad scheduled_at dropped", "scheduled_at", evt.ScheduledAt)
			return nil
		}

		_, err = suggester.SuggestSlot(ctx, holds.SuggestRequest{
			ConversationKey: evt.ConversationKey,
			BusinessID:      evt.BusinessID,
			ServiceID:       evt.ServiceID,
			StartTime:       start,
		})
		if err == nil {
			return nil
		}
		if kind := apperror.KindOf(err); kind != "" {
			logger.Info("slot suggestion rejected", "conversation_key", evt.ConversationKey, "kind", string(kind), "err", err)
			return nil
		}
		return fmt.Errorf("suggest slot: %w", err)
	}
}
