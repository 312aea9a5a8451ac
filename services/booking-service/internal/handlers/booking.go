package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const businessHeader = "X-Business-Id"

type BookingHandler struct {
	coord  *booking.Coordinator
	logger *slog.Logger
}

func NewBookingHandler(coord *booking.Coordinator, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{coord: coord, logger: logger}
}

// staffBusiness returns the business the caller acts for. The gateway sets the header
// after authenticating staff.
func staffBusiness(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(businessHeader))
	if id == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", businessHeader+" header is required", nil)
		return "", false
	}
	return id, true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (availability.Date, availability.Date, bool) {
	q := r.URL.Query()
	from, err := availability.ParseDate(strings.TrimSpace(q.Get("from")))
	if err != nil {
		badRequest(w, "from", "from must be a date (YYYY-MM-DD)")
		return availability.Date{}, availability.Date{}, false
	}
	to := from
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err = availability.ParseDate(raw)
		if err != nil {
			badRequest(w, "to", "to must be a date (YYYY-MM-DD)")
			return availability.Date{}, availability.Date{}, false
		}
	}
	return from, to, true
}

func (h *BookingHandler) PublicAvailability(w http.ResponseWriter, r *http.Request) {
	h.availability(w, r, booking.AvailabilityQuery{Slug: r.PathValue("slug")})
}

func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	h.availability(w, r, booking.AvailabilityQuery{BusinessID: businessID})
}

func (h *BookingHandler) availability(w http.ResponseWriter, r *http.Request, q booking.AvailabilityQuery) {
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	q.ServiceID = strings.TrimSpace(r.URL.Query().Get("service_id"))
	q.From, q.To = from, to

	res, err := h.coord.ListAvailability(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		BusinessID:      res.Business.ID,
		ServiceID:       res.Service.ID,
		DurationMinutes: res.Service.DurationMinutes,
		Timezone:        h.coord.Location().String(),
		Slots:           toSlotItems(res.Slots),
	})
}

func (h *BookingHandler) PublicBook(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	biz, err := h.coord.BusinessBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	// Public bookings always start pending.
	req.Status = ""
	h.create(w, r, biz.ID, model.SourcePublic, req)
}

func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		req.Status = string(model.StatusConfirmed)
	}
	h.create(w, r, businessID, model.SourceStaff, req)
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request, businessID string, source model.Source, req createAppointmentRequest) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		badRequest(w, "scheduled_at", "scheduled_at must be an RFC3339 timestamp")
		return
	}
	var status model.Status
	if s := strings.TrimSpace(req.Status); s != "" {
		var ok bool
		if status, ok = model.ParseStatus(s); !ok {
			badRequest(w, "status", "unknown status "+s)
			return
		}
	}

	appt, err := h.coord.CreateAppointment(r.Context(), booking.CreateRequest{
		BusinessID:     businessID,
		ServiceID:      req.ServiceID,
		Client:         req.Client.model(),
		StartTime:      start,
		Status:         status,
		Source:         source,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}
	includeInactive := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("status")), "all")

	appts, err := h.coord.ListAppointments(r.Context(), businessID, from, to, includeInactive)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	appt, err := h.coord.GetAppointment(r.Context(), businessID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	status, ok := model.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		badRequest(w, "status", "unknown status "+req.Status)
		return
	}

	appt, err := h.coord.UpdateStatus(r.Context(), booking.StatusChange{
		BusinessID:    businessID,
		AppointmentID: r.PathValue("id"),
		Status:        status,
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) GetHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	week, err := h.coord.BusinessHours(r.Context(), businessID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toHoursItems(week))
}

// PutHours replaces the whole week; partial updates are rejected.
func (h *BookingHandler) PutHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := staffBusiness(w, r)
	if !ok {
		return
	}
	var items []hoursItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		badRequest(w, "", "body must be a JSON array of seven weekday entries")
		return
	}
	entries := make([]model.BusinessHours, 0, len(items))
	for _, it := range items {
		entries = append(entries, model.BusinessHours{
			Weekday:      time.Weekday(it.Weekday),
			OpenMinutes:  it.OpenMinutes,
			CloseMinutes: it.CloseMinutes,
		})
	}

	week, err := h.coord.ReplaceBusinessHours(r.Context(), businessID, entries)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toHoursItems(week))
}

func toHoursItems(week calendar.Week) []hoursItem {
	entries := week.Entries()
	items := make([]hoursItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, hoursItem{Weekday: int(e.Weekday), OpenMinutes: e.OpenMinutes, CloseMinutes: e.CloseMinutes})
	}
	return items
}
