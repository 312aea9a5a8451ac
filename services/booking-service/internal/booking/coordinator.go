package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const defaultMaxRangeDays = 31

type Config struct {
	// Location is the single reference timezone business hours are expressed in.
	Location *time.Location
	// MaxRangeDays caps availability queries (inclusive day count).
	MaxRangeDays int
	Now          func() time.Time
}

type Coordinator struct {
	catalog      Catalog
	appointments AppointmentStore
	hours        *calendar.Service
	holds        HoldSource
	generator    *availability.Generator
	logger       *slog.Logger
	loc          *time.Location
	maxRangeDays int
	now          func() time.Time
}

// NewCoordinator wires the booking write path. holds may be nil when no conversational
// flow is deployed.
func NewCoordinator(catalog Catalog, appointments AppointmentStore, hours *calendar.Service, holds HoldSource, logger *slog.Logger, cfg Config) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = defaultMaxRangeDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		catalog:      catalog,
		appointments: appointments,
		hours:        hours,
		holds:        holds,
		generator:    availability.NewGenerator(cfg.Location),
		logger:       logger,
		loc:          cfg.Location,
		maxRangeDays: cfg.MaxRangeDays,
		now:          cfg.Now,
	}
}

func (c *Coordinator) Location() *time.Location {
	return c.loc
}

type CreateRequest struct {
	BusinessID string
	ServiceID  string
	Client     model.Client
	StartTime  time.Time
	// Status defaults to pending. Only pending and confirmed are accepted.
	Status         model.Status
	Source         model.Source
	IdempotencyKey string
}

func (c *Coordinator) CreateAppointment(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Client.Name = strings.TrimSpace(req.Client.Name)
	req.Client.Phone = strings.TrimSpace(req.Client.Phone)
	req.Client.Email = strings.TrimSpace(req.Client.Email)
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	if req.Source == "" {
		req.Source = model.SourceStaff
	}

	switch {
	case req.BusinessID == "":
		return model.Appointment{}, apperror.Validation("business_id", "business_id is required")
	case req.ServiceID == "":
		return model.Appointment{}, apperror.Validation("service_id", "service_id is required")
	case req.Client.Name == "":
		return model.Appointment{}, apperror.Validation("client.name", "client name is required")
	case req.StartTime.IsZero():
		return model.Appointment{}, apperror.Validation("scheduled_at", "scheduled_at is required")
	case req.Status != model.StatusPending && req.Status != model.StatusConfirmed:
		return model.Appointment{}, apperror.Validation("status", "new appointments must be pending or confirmed")
	}

	if _, err := c.catalog.Business(ctx, req.BusinessID); err != nil {
		return model.Appointment{}, err
	}
	svc, err := c.activeService(ctx, req.BusinessID, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}

	now := c.now().UTC()
	start := req.StartTime.UTC()
	if req.Source != model.SourceStaff && start.Before(now) {
		return model.Appointment{}, apperror.Validation("scheduled_at", "scheduled_at is in the past")
	}

	week, err := c.hours.Week(ctx, req.BusinessID)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("load business hours: %w", err)
	}
	if !week.Fits(start, svc.Duration(), c.loc) {
		return model.Appointment{}, apperror.Validation("scheduled_at", "requested time is outside business hours")
	}

	appt, err := c.appointments.InsertIfFree(ctx, model.Appointment{
		BusinessID: req.BusinessID,
		ServiceID:  svc.ID,
		Client:     req.Client,
		StartTime:  start,
		EndTime:    start.Add(svc.Duration()),
		Status:     req.Status,
		Source:     req.Source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		if apperror.KindOf(err) == apperror.KindConflict {
			c.logger.Info("booking rejected: slot taken",
				"business_id", req.BusinessID,
				"start_time", start.Format(time.RFC3339),
				"source", string(req.Source),
			)
		}
		return model.Appointment{}, err
	}

	c.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"business_id", appt.BusinessID,
		"status", string(appt.Status),
		"source", string(appt.Source),
	)
	return appt, nil
}

type StatusChange struct {
	// BusinessID scopes the lookup; empty matches any business.
	BusinessID    string
	AppointmentID string
	Status        model.Status
	Reason        string
}

// UpdateStatus applies the transition table. Asking for the current status again is a no-op.
func (c *Coordinator) UpdateStatus(ctx context.Context, change StatusChange) (model.Appointment, error) {
	change.AppointmentID = strings.TrimSpace(change.AppointmentID)
	if change.AppointmentID == "" {
		return model.Appointment{}, apperror.Validation("appointment_id", "appointment_id is required")
	}
	if !change.Status.Valid() {
		return model.Appointment{}, apperror.Validation("status", fmt.Sprintf("unknown status %q", change.Status))
	}
	reason := strings.TrimSpace(change.Reason)

	var from model.Status
	appt, err := c.appointments.Transition(ctx, change.BusinessID, change.AppointmentID, func(cur model.Appointment) (model.Appointment, bool, error) {
		from = cur.Status
		if cur.Status == change.Status {
			return cur, false, nil
		}
		if !cur.Status.CanTransitionTo(change.Status) {
			return cur, false, apperror.IllegalTransition(string(cur.Status), string(change.Status))
		}
		now := c.now().UTC()
		cur.Status = change.Status
		cur.UpdatedAt = now
		if change.Status == model.StatusCancelled {
			cur.CancelReason = reason
			cur.CancelledAt = &now
		}
		return cur, true, nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if from != appt.Status {
		c.logger.Info("appointment status changed",
			"appointment_id", appt.ID,
			"business_id", appt.BusinessID,
			"from", string(from),
			"to", string(appt.Status),
		)
	}
	return appt, nil
}

func (c *Coordinator) GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return c.appointments.Get(ctx, businessID, appointmentID)
}

// ListAppointments returns appointments whose local dates fall in [from, to].
func (c *Coordinator) ListAppointments(ctx context.Context, businessID string, from, to availability.Date, includeInactive bool) ([]model.Appointment, error) {
	if err := c.validateRange(from, to); err != nil {
		return nil, err
	}
	start, end := c.rangeBounds(from, to)
	return c.appointments.ListRange(ctx, businessID, start, end, !includeInactive)
}

type AvailabilityQuery struct {
	// BusinessID takes precedence; Slug is used by the public booking link.
	BusinessID string
	Slug       string
	ServiceID  string
	From       availability.Date
	To         availability.Date
}

type AvailabilityResult struct {
	Business model.Business
	Service  model.Service
	Slots    []availability.SlotAvailability
}

// ListAvailability reports every candidate slot in the range, in order, with its availability.
// Slots starting before now are reported unavailable.
func (c *Coordinator) ListAvailability(ctx context.Context, q AvailabilityQuery) (AvailabilityResult, error) {
	biz, err := c.resolveBusiness(ctx, q.BusinessID, q.Slug)
	if err != nil {
		return AvailabilityResult{}, err
	}
	if strings.TrimSpace(q.ServiceID) == "" {
		return AvailabilityResult{}, apperror.Validation("service_id", "service_id is required")
	}
	svc, err := c.activeService(ctx, biz.ID, strings.TrimSpace(q.ServiceID))
	if err != nil {
		return AvailabilityResult{}, err
	}
	if err := c.validateRange(q.From, q.To); err != nil {
		return AvailabilityResult{}, err
	}

	week, err := c.hours.Week(ctx, biz.ID)
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("load business hours: %w", err)
	}

	start, end := c.rangeBounds(q.From, q.To)
	appts, err := c.appointments.ListRange(ctx, biz.ID, start, end, true)
	if err != nil {
		return AvailabilityResult{}, fmt.Errorf("load appointments: %w", err)
	}

	now := c.now().UTC()
	var holds []model.Hold
	if c.holds != nil {
		holds, err = c.holds.ListActive(ctx, biz.ID, now)
		if err != nil {
			return AvailabilityResult{}, fmt.Errorf("load holds: %w", err)
		}
	}

	slots := availability.Check(c.generator.Generate(week, svc.DurationMinutes, q.From, q.To), svc.Duration(), appts, holds, now)
	for i := range slots {
		if slots[i].Start.Before(now) {
			slots[i].Available = false
		}
	}
	return AvailabilityResult{Business: biz, Service: svc, Slots: slots}, nil
}

// CheckSlot is the best-effort pre-check used before proposing a slot: the service must be
// bookable, the slot inside business hours and not overlapping a committed appointment or a
// live hold of another conversation. holderKey names the asking conversation; its own hold is
// about to be replaced and never blocks.
func (c *Coordinator) CheckSlot(ctx context.Context, businessID, serviceID string, start time.Time, holderKey string) (model.Service, error) {
	if _, err := c.catalog.Business(ctx, businessID); err != nil {
		return model.Service{}, err
	}
	svc, err := c.activeService(ctx, businessID, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	start = start.UTC()
	if start.Before(c.now().UTC()) {
		return model.Service{}, apperror.Validation("scheduled_at", "scheduled_at is in the past")
	}
	week, err := c.hours.Week(ctx, businessID)
	if err != nil {
		return model.Service{}, fmt.Errorf("load business hours: %w", err)
	}
	end := start.Add(svc.Duration())
	if !week.Fits(start, svc.Duration(), c.loc) {
		return model.Service{}, apperror.Validation("scheduled_at", "requested time is outside business hours")
	}
	appts, err := c.appointments.ListRange(ctx, businessID, start, end, true)
	if err != nil {
		return model.Service{}, fmt.Errorf("load appointments: %w", err)
	}
	for _, a := range appts {
		if a.Overlaps(start, end) {
			return model.Service{}, apperror.SlotTaken(a.StartTime, a.EndTime)
		}
	}
	if c.holds == nil {
		return svc, nil
	}
	held, err := c.holds.ListActive(ctx, businessID, c.now().UTC())
	if err != nil {
		return model.Service{}, fmt.Errorf("load holds: %w", err)
	}
	for _, h := range held {
		if h.ConversationKey == holderKey {
			continue
		}
		if start.Before(h.EndTime) && h.StartTime.Before(end) {
			return model.Service{}, apperror.SlotTaken(h.StartTime, h.EndTime)
		}
	}
	return svc, nil
}

// BusinessHours returns the week of a known business; unconfigured days are closed.
func (c *Coordinator) BusinessHours(ctx context.Context, businessID string) (calendar.Week, error) {
	biz, err := c.resolveBusiness(ctx, businessID, "")
	if err != nil {
		return calendar.Week{}, err
	}
	return c.hours.Week(ctx, biz.ID)
}

// ReplaceBusinessHours swaps the whole week of a known business.
func (c *Coordinator) ReplaceBusinessHours(ctx context.Context, businessID string, entries []model.BusinessHours) (calendar.Week, error) {
	biz, err := c.resolveBusiness(ctx, businessID, "")
	if err != nil {
		return calendar.Week{}, err
	}
	week, err := c.hours.ReplaceAll(ctx, biz.ID, entries)
	if err != nil {
		return calendar.Week{}, err
	}
	c.logger.Info("business hours replaced", "business_id", biz.ID)
	return week, nil
}

// BusinessBySlug resolves the business behind a public booking link.
func (c *Coordinator) BusinessBySlug(ctx context.Context, slug string) (model.Business, error) {
	return c.resolveBusiness(ctx, "", slug)
}

func (c *Coordinator) resolveBusiness(ctx context.Context, businessID, slug string) (model.Business, error) {
	if id := strings.TrimSpace(businessID); id != "" {
		return c.catalog.Business(ctx, id)
	}
	if s := strings.TrimSpace(slug); s != "" {
		return c.catalog.BusinessBySlug(ctx, strings.ToLower(s))
	}
	return model.Business{}, apperror.Validation("business_id", "business_id or slug is required")
}

func (c *Coordinator) activeService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	svc, err := c.catalog.Service(ctx, businessID, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if !svc.IsActive {
		return model.Service{}, apperror.NotFound("service")
	}
	if svc.DurationMinutes <= 0 {
		return model.Service{}, apperror.Validation("duration_minutes", "service duration must be positive")
	}
	return svc, nil
}

func (c *Coordinator) validateRange(from, to availability.Date) error {
	if from.After(to) {
		return apperror.Validation("to", "to must not be before from")
	}
	if days := from.DaysUntil(to) + 1; days > c.maxRangeDays {
		return apperror.Validation("to", fmt.Sprintf("range must not exceed %d days", c.maxRangeDays))
	}
	return nil
}

// rangeBounds converts local dates [from, to] to the UTC instants [start of from, start of to+1).
func (c *Coordinator) rangeBounds(from, to availability.Date) (time.Time, time.Time) {
	next := to.AddDays(1)
	start := time.Date(from.Year, from.Month, from.Day, 0, 0, 0, 0, c.loc).UTC()
	end := time.Date(next.Year, next.Month, next.Day, 0, 0, 0, 0, c.loc).UTC()
	return start, end
}
