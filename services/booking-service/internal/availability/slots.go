package availability

import (
	"fmt"
	"iter"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Date is a calendar date in the business's reference location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return d.midnight(time.UTC).Format(dateLayout)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnight(time.UTC).AddDate(0, 0, n))
}

func (d Date) After(o Date) bool {
	return d.midnight(time.UTC).After(o.midnight(time.UTC))
}

// DaysUntil counts calendar days from d to o (negative when o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.midnight(time.UTC).Sub(d.midnight(time.UTC)) / (24 * time.Hour))
}

func (d Date) Weekday() time.Weekday {
	return d.midnight(time.UTC).Weekday()
}

func (d Date) midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Generator expands a weekly calendar into candidate slot starts. It knows nothing about bookings.
type Generator struct {
	loc *time.Location
}

func NewGenerator(loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{loc: loc}
}

func (g *Generator) Location() *time.Location {
	return g.loc
}

// Generate yields UTC slot starts for every local date in [from, to], ascending. Slots step by the
// service duration from the open minute while start+duration <= close, so a slot ending exactly at
// close is included. Local times skipped by a DST transition produce no slot. Each range over the
// returned sequence starts from the beginning.
func (g *Generator) Generate(week calendar.Week, durationMinutes int, from, to Date) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if durationMinutes <= 0 || from.After(to) {
			return
		}
		for day := from; !day.After(to); day = day.AddDays(1) {
			win, ok := week.WindowFor(day.Weekday())
			if !ok {
				continue
			}
			for start := win.OpenMinutes; start+durationMinutes <= win.CloseMinutes; start += durationMinutes {
				local := time.Date(day.Year, day.Month, day.Day, 0, start, 0, 0, g.loc)
				// Wall times inside a DST gap do not exist and normalize onto other slots.
				if local.Hour()*60+local.Minute() != start || DateOf(local) != day {
					continue
				}
				if !yield(local.UTC()) {
					return
				}
			}
		}
	}
}

type SlotAvailability struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Check marks each candidate unavailable when [t, t+duration) overlaps an active appointment or an
// unexpired hold. Callers pre-filter appointments and holds to the business and range; output keeps
// candidate order.
func Check(candidates iter.Seq[time.Time], duration time.Duration, appointments []model.Appointment, holds []model.Hold, now time.Time) []SlotAvailability {
	busy := BusyIntervals(appointments, holds, now)

	var out []SlotAvailability
	for t := range candidates {
		end := t.Add(duration)
		out = append(out, SlotAvailability{
			Start:     t,
			End:       end,
			Available: !overlapsAny(t, end, busy),
		})
	}
	return out
}

// BusyIntervals collects intervals occupied by pending/confirmed appointments and live holds.
func BusyIntervals(appointments []model.Appointment, holds []model.Hold, now time.Time) []Interval {
	busy := make([]Interval, 0, len(appointments)+len(holds))
	for _, a := range appointments {
		if !a.Status.Active() {
			continue
		}
		busy = append(busy, Interval{Start: a.StartTime, End: a.EndTime})
	}
	for _, h := range holds {
		if h.Expired(now) {
			continue
		}
		busy = append(busy, Interval{Start: h.StartTime, End: h.EndTime})
	}
	return busy
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
