package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
)

const seedJSON = `{
  "businesses": [{"id": "biz-1", "slug": "studio-one", "name": "Studio One"}],
  "services": [
    {"id": "cut", "business_id": "biz-1", "name": "Haircut", "duration_minutes": 30, "price": "35.00"},
    {"id": "old", "business_id": "biz-1", "name": "Retired", "duration_minutes": 60, "is_active": false}
  ],
  "hours": {
    "biz-1": [
      {"weekday": 0},
      {"weekday": 1, "open_minutes": 540, "close_minutes": 720}
    ]
  }
}`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	ctx := context.Background()
	mem := memstore.New()
	hours := calendar.NewService(mem)
	if err := loadSeed(ctx, path, mem, hours); err != nil {
		t.Fatalf("loadSeed: %v", err)
	}

	biz, err := mem.BusinessBySlug(ctx, "studio-one")
	if err != nil || biz.ID != "biz-1" {
		t.Fatalf("expected seeded business, got %+v err=%v", biz, err)
	}
	svc, err := mem.Service(ctx, "biz-1", "cut")
	if err != nil || !svc.IsActive || svc.DurationMinutes != 30 {
		t.Fatalf("unexpected service %+v err=%v", svc, err)
	}
	if old, err := mem.Service(ctx, "biz-1", "old"); err != nil || old.IsActive {
		t.Fatalf("expected inactive service, got %+v err=%v", old, err)
	}

	win, open, err := hours.WindowFor(ctx, "biz-1", time.Monday)
	if err != nil || !open || win.OpenMinutes != 540 || win.CloseMinutes != 720 {
		t.Fatalf("unexpected monday window %+v open=%v err=%v", win, open, err)
	}
	if _, open, _ := hours.WindowFor(ctx, "biz-1", time.Sunday); open {
		t.Fatal("expected sunday closed")
	}
}
