package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Catalog resolves business and service master data. Missing records are reported
// as apperror NotFound errors.
type Catalog interface {
	Business(ctx context.Context, businessID string) (model.Business, error)
	BusinessBySlug(ctx context.Context, slug string) (model.Business, error)
	Service(ctx context.Context, businessID, serviceID string) (model.Service, error)
}

// TransitionFunc computes the next state of an appointment. Returning changed=false
// leaves the stored row untouched.
type TransitionFunc func(current model.Appointment) (next model.Appointment, changed bool, err error)

// AppointmentStore is the only writer of a business's calendar.
type AppointmentStore interface {
	// InsertIfFree checks for an overlapping pending/confirmed appointment and inserts appt as
	// one unit, serialized against other writers of the same business. An overlap yields an
	// apperror Conflict. A repeated non-empty idempotencyKey returns the originally created
	// appointment instead of inserting again.
	InsertIfFree(ctx context.Context, appt model.Appointment, idempotencyKey string) (model.Appointment, error)
	Get(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	// Transition loads the appointment under a write lock, applies fn and persists the result.
	// An empty businessID matches any business.
	Transition(ctx context.Context, businessID, appointmentID string, fn TransitionFunc) (model.Appointment, error)
	// ListRange returns appointments intersecting [from, to), ordered by start time.
	ListRange(ctx context.Context, businessID string, from, to time.Time, activeOnly bool) ([]model.Appointment, error)
}

// HoldSource lists tentative holds that still block the calendar.
type HoldSource interface {
	ListActive(ctx context.Context, businessID string, now time.Time) ([]model.Hold, error)
}
