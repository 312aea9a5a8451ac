package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// transitions lists the allowed outgoing edges per status. Terminal statuses have none.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: nil,
	StatusCompleted: nil,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := transitions[st]
	return st, ok
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Active reports whether an appointment in this status occupies the calendar.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Source string

const (
	SourceStaff     Source = "staff"
	SourcePublic    Source = "public"
	SourceAssistant Source = "assistant"
)

type Client struct {
	Name  string
	Phone string
	Email string
}

type Appointment struct {
	ID           string
	BusinessID   string
	ServiceID    string
	Client       Client
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	Source       Source
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Overlaps uses half-open intervals: [start,end) overlaps [a.StartTime,a.EndTime)
// iff start < a.EndTime && a.StartTime < end.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndTime) && a.StartTime.Before(end)
}
