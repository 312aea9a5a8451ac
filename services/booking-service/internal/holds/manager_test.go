package holds_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
)

var brt = time.FixedZone("BRT", -3*60*60)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, brt).UTC()
}

type env struct {
	now     time.Time
	store   *holds.MemoryStore
	coord   *booking.Coordinator
	manager *holds.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := memstore.New()
	db.PutBusiness(model.Business{ID: "b1", Slug: "studio", Name: "Studio"})
	db.PutService(model.Service{ID: "cut", BusinessID: "b1", Name: "Haircut", DurationMinutes: 30, IsActive: true})

	hours := calendar.NewService(db)
	entries := make([]model.BusinessHours, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		h := model.BusinessHours{Weekday: d}
		if d != time.Sunday {
			openMin, closeMin := 9*60, 12*60
			h.OpenMinutes, h.CloseMinutes = &openMin, &closeMin
		}
		entries = append(entries, h)
	}
	if _, err := hours.ReplaceAll(context.Background(), "b1", entries); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	e := &env{now: at(8, 0), store: holds.NewMemoryStore()}
	clock := func() time.Time { return e.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.coord = booking.NewCoordinator(db, db, hours, e.store, logger, booking.Config{Location: brt, Now: clock})
	e.manager = holds.NewManager(e.store, e.coord, logger, holds.Config{Now: clock})
	return e
}

func (e *env) suggest(t *testing.T, key string, start time.Time) model.Hold {
	t.Helper()
	h, err := e.manager.SuggestSlot(context.Background(), holds.SuggestRequest{
		ConversationKey: key, BusinessID: "b1", ServiceID: "cut", StartTime: start,
	})
	if err != nil {
		t.Fatalf("SuggestSlot failed: %v", err)
	}
	return h
}

func TestSuggestSlot_OverwritesPreviousHold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.suggest(t, "+5511", at(9, 0))
	h := e.suggest(t, "+5511", at(10, 0))

	if !h.ExpiresAt.Equal(e.now.Add(holds.DefaultTTL)) || !h.EndTime.Equal(at(10, 30)) {
		t.Fatalf("unexpected hold: %+v", h)
	}
	active, err := e.manager.ActiveHold(ctx, "+5511")
	if err != nil || !active.StartTime.Equal(at(10, 0)) {
		t.Fatalf("expected 10:00 hold, got %+v err=%v", active, err)
	}
	list, _ := e.store.ListActive(ctx, "b1", e.now)
	if len(list) != 1 {
		t.Fatalf("expected exactly one hold, got %d", len(list))
	}
}

func TestSuggestSlot_Rejects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.manager.SuggestSlot(ctx, holds.SuggestRequest{BusinessID: "b1", ServiceID: "cut", StartTime: at(9, 0)}); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected missing key rejected, got %v", err)
	}
	if _, err := e.manager.SuggestSlot(ctx, holds.SuggestRequest{ConversationKey: "k", BusinessID: "b1", ServiceID: "cut", StartTime: at(12, 0)}); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected outside hours rejected, got %v", err)
	}
	if _, err := e.manager.SuggestSlot(ctx, holds.SuggestRequest{ConversationKey: "k", BusinessID: "b1", ServiceID: "nope", StartTime: at(9, 0)}); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected unknown service rejected, got %v", err)
	}

	if _, err := e.coord.CreateAppointment(ctx, booking.CreateRequest{BusinessID: "b1", ServiceID: "cut", Client: model.Client{Name: "Ana"}, StartTime: at(9, 0)}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := e.manager.SuggestSlot(ctx, holds.SuggestRequest{ConversationKey: "k", BusinessID: "b1", ServiceID: "cut", StartTime: at(9, 0)}); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected taken slot rejected, got %v", err)
	}
}

func TestSuggestSlot_HeldByAnotherConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.suggest(t, "+5511", at(10, 0))

	for _, start := range []time.Time{at(10, 0), at(9, 45)} {
		_, err := e.manager.SuggestSlot(ctx, holds.SuggestRequest{ConversationKey: "+5522", BusinessID: "b1", ServiceID: "cut", StartTime: start})
		if !errors.Is(err, apperror.ErrConflict) {
			t.Fatalf("%s: expected conflict with the other conversation's hold, got %v", start.In(brt).Format("15:04"), err)
		}
	}
	if _, err := e.manager.ActiveHold(ctx, "+5522"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected no hold for the second conversation, got %v", err)
	}
	active, err := e.store.ListActive(ctx, "b1", e.now)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected a single active hold, got %d err=%v", len(active), err)
	}

	// Adjacent slots and the holder's own re-suggestion still pass.
	e.suggest(t, "+5522", at(10, 30))
	e.suggest(t, "+5511", at(10, 0))

	// Once the first hold lapses the slot is free again.
	e.now = e.now.Add(holds.DefaultTTL + time.Minute)
	e.suggest(t, "+5533", at(10, 0))
}

func TestConfirmSlot_BooksAndClears(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.suggest(t, "+5511", at(10, 0))

	appt, err := e.manager.ConfirmSlot(ctx, "+5511", model.Client{Name: "Ana", Phone: "+5511"})
	if err != nil {
		t.Fatalf("ConfirmSlot failed: %v", err)
	}
	if appt.Status != model.StatusPending || appt.Source != model.SourceAssistant || !appt.StartTime.Equal(at(10, 0)) {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if _, err := e.manager.ActiveHold(ctx, "+5511"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected hold cleared, got %v", err)
	}
	if _, err := e.manager.ConfirmSlot(ctx, "+5511", model.Client{Name: "Ana"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected duplicate confirm to be not found, got %v", err)
	}
}

func TestConfirmSlot_Expired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.suggest(t, "+5511", at(10, 0))

	e.now = e.now.Add(holds.DefaultTTL + time.Second)
	if _, err := e.manager.ConfirmSlot(ctx, "+5511", model.Client{Name: "Ana"}); !errors.Is(err, apperror.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := e.manager.ConfirmSlot(ctx, "+5511", model.Client{Name: "Ana"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected hold cleared after expiry, got %v", err)
	}
}

func TestConfirmSlot_AtExactExpiry(t *testing.T) {
	e := newEnv(t)
	e.suggest(t, "+5511", at(10, 0))
	e.now = e.now.Add(holds.DefaultTTL)
	if _, err := e.manager.ConfirmSlot(context.Background(), "+5511", model.Client{Name: "Ana"}); err != nil {
		t.Fatalf("expected confirmation at the expiry instant, got %v", err)
	}
}

func TestConfirmSlot_ConflictClearsHold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.suggest(t, "+5511", at(10, 0))

	// Committed bookings are not blocked by holds.
	if _, err := e.coord.CreateAppointment(ctx, booking.CreateRequest{BusinessID: "b1", ServiceID: "cut", Client: model.Client{Name: "Walk-in"}, StartTime: at(10, 0)}); err != nil {
		t.Fatalf("staff create failed: %v", err)
	}
	if _, err := e.manager.ConfirmSlot(ctx, "+5511", model.Client{Name: "Ana"}); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := e.manager.ActiveHold(ctx, "+5511"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected hold cleared after conflict, got %v", err)
	}
}

func TestHoldsBlockAvailability(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.suggest(t, "+5511", at(10, 0))

	day := availability.Date{Year: 2026, Month: time.March, Day: 2}
	res, err := e.coord.ListAvailability(ctx, booking.AvailabilityQuery{BusinessID: "b1", ServiceID: "cut", From: day, To: day})
	if err != nil {
		t.Fatalf("ListAvailability failed: %v", err)
	}
	for _, s := range res.Slots {
		if s.Start.Equal(at(10, 0)) == s.Available {
			t.Fatalf("slot %s: available=%v", s.Start.In(brt).Format("15:04"), s.Available)
		}
	}

	e.now = e.now.Add(holds.DefaultTTL + time.Minute)
	res, _ = e.coord.ListAvailability(ctx, booking.AvailabilityQuery{BusinessID: "b1", ServiceID: "cut", From: day, To: day})
	for _, s := range res.Slots {
		if !s.Available {
			t.Fatalf("expired hold must not block %s", s.Start.In(brt).Format("15:04"))
		}
	}
}

func TestSweeper(t *testing.T) {
	e := newEnv(t)
	e.suggest(t, "a", at(9, 0))
	e.now = e.now.Add(10 * time.Minute)
	e.suggest(t, "b", at(10, 0))
	e.now = e.now.Add(15 * time.Minute)

	sweeper := holds.NewSweeper(e.store, slog.New(slog.NewTextHandler(io.Discard, nil)), holds.SweeperConfig{
		Now: func() time.Time { return e.now },
	})
	n, err := sweeper.SweepOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one purged hold, got %d err=%v", n, err)
	}
	if _, ok, _ := e.store.Take(context.Background(), "a"); ok {
		t.Fatal("expected hold a removed")
	}
	if _, ok, _ := e.store.Take(context.Background(), "b"); !ok {
		t.Fatal("expected hold b kept")
	}
}
