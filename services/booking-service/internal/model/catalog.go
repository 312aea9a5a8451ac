package model

import "time"

type Business struct {
	ID   string
	Slug string
	Name string
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	// Price is a decimal string as stored (e.g. "35.00"); empty when the service has no price.
	Price    string
	IsActive bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// BusinessHours is one weekday entry. Both minutes nil means closed that day.
type BusinessHours struct {
	Weekday      time.Weekday
	OpenMinutes  *int
	CloseMinutes *int
}

func (h BusinessHours) Closed() bool {
	return h.OpenMinutes == nil || h.CloseMinutes == nil
}

// Hold is a tentative, unconfirmed slot proposal tied to a conversation.
type Hold struct {
	ConversationKey string    `json:"conversation_key"`
	BusinessID      string    `json:"business_id"`
	ServiceID       string    `json:"service_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired treats the exact expiry instant as still valid.
func (h Hold) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}
