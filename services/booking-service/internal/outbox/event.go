package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"
)

// EventTypeForStatus names the event emitted when an appointment enters status.
func EventTypeForStatus(status model.Status) (string, bool) {
	switch status {
	case model.StatusConfirmed:
		return EventAppointmentConfirmed, true
	case model.StatusCancelled:
		return EventAppointmentCancelled, true
	case model.StatusCompleted:
		return EventAppointmentCompleted, true
	}
	return "", false
}

type appointmentPayload struct {
	AppointmentID string  `json:"appointment_id"`
	BusinessID    string  `json:"business_id"`
	ServiceID     string  `json:"service_id"`
	ClientName    string  `json:"client_name"`
	ClientPhone   string  `json:"client_phone,omitempty"`
	ClientEmail   string  `json:"client_email,omitempty"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	Source        string  `json:"source"`
	CancelReason  string  `json:"cancellation_reason,omitempty"`
	CancelledAt   *string `json:"cancelled_at,omitempty"`
}

func AppointmentEvent(eventType string, appt model.Appointment) (Event, error) {
	p := appointmentPayload{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		ServiceID:     appt.ServiceID,
		ClientName:    appt.Client.Name,
		ClientPhone:   appt.Client.Phone,
		ClientEmail:   appt.Client.Email,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        string(appt.Status),
		Source:        string(appt.Source),
		CancelReason:  appt.CancelReason,
	}
	if appt.CancelledAt != nil {
		s := appt.CancelledAt.UTC().Format(time.RFC3339)
		p.CancelledAt = &s
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
