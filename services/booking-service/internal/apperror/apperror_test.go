package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("create appointment: %w", SlotTaken(time.Now(), time.Now().Add(time.Hour)))
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict, got %q", KindOf(wrapped))
	}
	if !errors.Is(wrapped, ErrConflict) {
		t.Fatal("expected errors.Is to match ErrConflict")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatal("conflict must not match ErrNotFound")
	}
	if KindOf(context.DeadlineExceeded) != "" {
		t.Fatal("infrastructure errors must have no domain kind")
	}
}

func TestIllegalTransitionDetails(t *testing.T) {
	err := IllegalTransition("cancelled", "confirmed")
	e, ok := As(err)
	if !ok || e.From != "cancelled" || e.To != "confirmed" {
		t.Fatalf("unexpected details: %+v", e)
	}
}
