package handlers

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type clientBody struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c clientBody) model() model.Client {
	return model.Client{Name: c.Name, Phone: c.Phone, Email: c.Email}
}

type createAppointmentRequest struct {
	ServiceID   string     `json:"service_id"`
	Client      clientBody `json:"client"`
	ScheduledAt string     `json:"scheduled_at"`
	Status      string     `json:"status"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	ID                 string     `json:"id"`
	BusinessID         string     `json:"business_id"`
	ServiceID          string     `json:"service_id"`
	Client             clientBody `json:"client"`
	ScheduledAt        string     `json:"scheduled_at"`
	EndTime            string     `json:"end_time"`
	Status             string     `json:"status"`
	Source             string     `json:"source"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        string     `json:"cancelled_at,omitempty"`
	CreatedAt          string     `json:"created_at"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:                 a.ID,
		BusinessID:         a.BusinessID,
		ServiceID:          a.ServiceID,
		Client:             clientBody{Name: a.Client.Name, Phone: a.Client.Phone, Email: a.Client.Email},
		ScheduledAt:        a.StartTime.UTC().Format(time.RFC3339),
		EndTime:            a.EndTime.UTC().Format(time.RFC3339),
		Status:             string(a.Status),
		Source:             string(a.Source),
		CancellationReason: a.CancelReason,
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type availabilityResponse struct {
	BusinessID      string     `json:"business_id"`
	ServiceID       string     `json:"service_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Timezone        string     `json:"timezone"`
	Slots           []slotItem `json:"slots"`
}

func toSlotItems(slots []availability.SlotAvailability) []slotItem {
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
			Available: s.Available,
		})
	}
	return items
}

type hoursItem struct {
	Weekday      int  `json:"weekday"`
	OpenMinutes  *int `json:"open_minutes"`
	CloseMinutes *int `json:"close_minutes"`
}

type holdResponse struct {
	ConversationKey string `json:"conversation_key"`
	BusinessID      string `json:"business_id"`
	ServiceID       string `json:"service_id"`
	ScheduledAt     string `json:"scheduled_at"`
	EndTime         string `json:"end_time"`
	ExpiresAt       string `json:"expires_at"`
}

func toHoldResponse(h model.Hold) holdResponse {
	return holdResponse{
		ConversationKey: h.ConversationKey,
		BusinessID:      h.BusinessID,
		ServiceID:       h.ServiceID,
		ScheduledAt:     h.StartTime.UTC().Format(time.RFC3339),
		EndTime:         h.EndTime.UTC().Format(time.RFC3339),
		ExpiresAt:       h.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
