package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const minutesPerDay = 24 * 60

// Window is an open interval of the business day in minutes since local midnight.
type Window struct {
	OpenMinutes  int
	CloseMinutes int
}

// Fits reports whether [start, start+d) lies entirely inside the window.
// start is a wall-clock offset from local midnight.
func (w Window) Fits(start, d time.Duration) bool {
	openAt := time.Duration(w.OpenMinutes) * time.Minute
	closeAt := time.Duration(w.CloseMinutes) * time.Minute
	return start >= openAt && start+d <= closeAt
}

// Week holds exactly one entry per weekday, indexed by time.Weekday.
type Week [7]model.BusinessHours

// ClosedWeek is used for businesses that never configured their hours.
func ClosedWeek() Week {
	var w Week
	for d := range w {
		w[d] = model.BusinessHours{Weekday: time.Weekday(d)}
	}
	return w
}

// NewWeek validates a full replacement set: one entry per weekday 0..6, open and close
// both set or both nil, and 0 <= open < close <= 1440.
func NewWeek(entries []model.BusinessHours) (Week, error) {
	if len(entries) != 7 {
		return Week{}, apperror.Validation("hours", fmt.Sprintf("expected 7 weekday entries, got %d", len(entries)))
	}
	var w Week
	var seen [7]bool
	for _, e := range entries {
		field := fmt.Sprintf("weekday[%d]", int(e.Weekday))
		if e.Weekday < time.Sunday || e.Weekday > time.Saturday {
			return Week{}, apperror.Validation(field, "weekday must be between 0 (Sunday) and 6 (Saturday)")
		}
		if seen[e.Weekday] {
			return Week{}, apperror.Validation(field, "duplicate weekday entry")
		}
		seen[e.Weekday] = true

		if (e.OpenMinutes == nil) != (e.CloseMinutes == nil) {
			return Week{}, apperror.Validation(field, "open and close must both be set or both be empty")
		}
		if !e.Closed() {
			openAt, closeAt := *e.OpenMinutes, *e.CloseMinutes
			if openAt < 0 || closeAt > minutesPerDay {
				return Week{}, apperror.Validation(field, "hours must fall within the day (0..1440 minutes)")
			}
			if openAt >= closeAt {
				return Week{}, apperror.Validation(field, "open must be before close")
			}
		}
		w[e.Weekday] = e
	}
	return w, nil
}

func (w Week) WindowFor(day time.Weekday) (Window, bool) {
	h := w[day]
	if h.Closed() {
		return Window{}, false
	}
	return Window{OpenMinutes: *h.OpenMinutes, CloseMinutes: *h.CloseMinutes}, true
}

// Fits reports whether a booking starting at start (any location) and lasting d lies
// within the open window of its weekday in loc.
func (w Week) Fits(start time.Time, d time.Duration, loc *time.Location) bool {
	local := start.In(loc)
	win, ok := w.WindowFor(local.Weekday())
	if !ok {
		return false
	}
	return win.Fits(WallClock(local), d)
}

func (w Week) Entries() []model.BusinessHours {
	out := make([]model.BusinessHours, len(w))
	copy(out, w[:])
	return out
}

// WallClock returns the time elapsed on the local wall clock since midnight.
func WallClock(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// Store persists the weekly configuration. GetWeek returns no entries for a business
// that never configured hours.
type Store interface {
	GetWeek(ctx context.Context, businessID string) ([]model.BusinessHours, error)
	ReplaceWeek(ctx context.Context, businessID string, week Week) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Week(ctx context.Context, businessID string) (Week, error) {
	entries, err := s.store.GetWeek(ctx, businessID)
	if err != nil {
		return Week{}, err
	}
	if len(entries) == 0 {
		return ClosedWeek(), nil
	}
	w := ClosedWeek()
	for _, e := range entries {
		if e.Weekday >= time.Sunday && e.Weekday <= time.Saturday {
			w[e.Weekday] = e
		}
	}
	return w, nil
}

func (s *Service) WindowFor(ctx context.Context, businessID string, day time.Weekday) (Window, bool, error) {
	w, err := s.Week(ctx, businessID)
	if err != nil {
		return Window{}, false, err
	}
	win, ok := w.WindowFor(day)
	return win, ok, nil
}

// ReplaceAll validates and swaps the whole week. Nothing is written on validation failure.
func (s *Service) ReplaceAll(ctx context.Context, businessID string, entries []model.BusinessHours) (Week, error) {
	w, err := NewWeek(entries)
	if err != nil {
		return Week{}, err
	}
	if err := s.store.ReplaceWeek(ctx, businessID, w); err != nil {
		return Week{}, err
	}
	return w, nil
}
