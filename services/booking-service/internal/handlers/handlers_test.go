package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
)

var brt = time.FixedZone("BRT", -3*60*60)

type testServer struct {
	mux *http.ServeMux
	now time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := memstore.New()
	db.PutBusiness(model.Business{ID: "b1", Slug: "studio", Name: "Studio"})
	db.PutService(model.Service{ID: "cut", BusinessID: "b1", Name: "Haircut", DurationMinutes: 30, IsActive: true})

	hours := calendar.NewService(db)
	if _, err := hours.ReplaceAll(context.Background(), "b1", weekHours()); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	ts := &testServer{mux: http.NewServeMux(), now: time.Date(2026, 3, 1, 8, 0, 0, 0, brt)}
	clock := func() time.Time { return ts.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := holds.NewMemoryStore()
	coord := booking.NewCoordinator(db, db, hours, store, logger, booking.Config{Location: brt, Now: clock})
	manager := holds.NewManager(store, coord, logger, holds.Config{Now: clock})

	Routes{
		Booking:       NewBookingHandler(coord, logger),
		Conversations: NewConversationHandler(manager, logger),
	}.Register(ts.mux)
	return ts
}

func weekHours() []model.BusinessHours {
	entries := make([]model.BusinessHours, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		h := model.BusinessHours{Weekday: d}
		if d != time.Sunday {
			openMin, closeMin := 9*60, 12*60
			h.OpenMinutes, h.CloseMinutes = &openMin, &closeMin
		}
		entries = append(entries, h)
	}
	return entries
}

func (ts *testServer) do(t *testing.T, method, path, business, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if business != "" {
		req.Header.Set(businessHeader, business)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("invalid json response: %v", err)
		}
	}
	return rec, out
}

func TestPublicAvailabilityAndBooking(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/api/v1/public/studio/availability?service_id=cut&from=2026-03-02", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	slots, _ := body["slots"].([]any)
	if len(slots) != 6 || body["timezone"] != "BRT" {
		t.Fatalf("unexpected availability: %v", body)
	}
	first := slots[0].(map[string]any)
	if first["start_time"] != "2026-03-02T12:00:00Z" || first["available"] != true {
		t.Fatalf("unexpected first slot: %v", first)
	}

	book := `{"service_id":"cut","client":{"name":"Ana","phone":"+5511"},"scheduled_at":"2026-03-02T10:00:00-03:00"}`
	rec, body = ts.do(t, http.MethodPost, "/api/v1/public/studio/book", "", book)
	if rec.Code != http.StatusCreated || body["status"] != "pending" || body["source"] != "public" {
		t.Fatalf("expected pending public booking, got %d: %v", rec.Code, body)
	}

	rec, body = ts.do(t, http.MethodPost, "/api/v1/public/studio/book", "", book)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	details, _ := body["details"].(map[string]any)
	if details["conflicting_start"] != "2026-03-02T13:00:00Z" {
		t.Fatalf("expected conflicting interval in details, got %v", body)
	}

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/public/nobody/availability?service_id=cut&from=2026-03-02", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown slug, got %d", rec.Code)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/public/studio/availability?service_id=cut&from=03/02/2026", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestStaffAppointments(t *testing.T) {
	ts := newTestServer(t)
	create := `{"service_id":"cut","client":{"name":"Ana"},"scheduled_at":"2026-03-02T13:00:00Z"}`

	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/appointments", "", create); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without business header, got %d", rec.Code)
	}
	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/appointments", "b1", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}

	rec, body := ts.do(t, http.MethodPost, "/api/v1/appointments", "b1", create)
	if rec.Code != http.StatusCreated || body["status"] != "confirmed" {
		t.Fatalf("expected confirmed staff booking, got %d: %v", rec.Code, body)
	}
	id, _ := body["id"].(string)

	rec, body = ts.do(t, http.MethodPost, "/api/v1/appointments", "b1", `{"service_id":"cut","client":{"name":"Ana"},"scheduled_at":"2026-03-02T15:00:00Z"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 outside hours, got %d", rec.Code)
	}
	if details, _ := body["details"].(map[string]any); details["field"] != "scheduled_at" {
		t.Fatalf("expected field detail, got %v", body)
	}

	rec, body = ts.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/status", "b1", `{"status":"cancelled","reason":"sick"}`)
	if rec.Code != http.StatusOK || body["status"] != "cancelled" || body["cancellation_reason"] != "sick" {
		t.Fatalf("expected cancellation, got %d: %v", rec.Code, body)
	}
	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/status", "b1", `{"status":"cancelled"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected repeated cancel to succeed, got %d", rec.Code)
	}
	rec, body = ts.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/status", "b1", `{"status":"completed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if details, _ := body["details"].(map[string]any); details["from"] != "cancelled" || details["to"] != "completed" {
		t.Fatalf("expected transition details, got %v", body)
	}
	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/status", "b1", `{"status":"archived"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	var list []map[string]any
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/appointments?from=2026-03-02&status=all", "b1", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one appointment including cancelled, got %s", rec.Body.String())
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/appointments?from=2026-03-02", "b1", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected no active appointments, got %s", rec.Body.String())
	}

	if rec, _ := ts.do(t, http.MethodGet, "/api/v1/appointments/"+id, "other", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across businesses, got %d", rec.Code)
	}
}

func TestBusinessHours(t *testing.T) {
	ts := newTestServer(t)

	if rec, _ := ts.do(t, http.MethodGet, "/api/v1/business-hours", "ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 reading hours of unknown business, got %d", rec.Code)
	}

	rec, _ := ts.do(t, http.MethodPut, "/api/v1/business-hours", "b1", `[{"weekday":1,"open_minutes":540,"close_minutes":480}]`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for partial week, got %d", rec.Code)
	}

	week := `[{"weekday":0,"open_minutes":null,"close_minutes":null},
		{"weekday":1,"open_minutes":480,"close_minutes":1020},{"weekday":2,"open_minutes":480,"close_minutes":1020},
		{"weekday":3,"open_minutes":480,"close_minutes":1020},{"weekday":4,"open_minutes":480,"close_minutes":1020},
		{"weekday":5,"open_minutes":480,"close_minutes":1020},{"weekday":6,"open_minutes":null,"close_minutes":null}]`
	if rec, _ := ts.do(t, http.MethodPut, "/api/v1/business-hours", "ghost", week); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown business, got %d", rec.Code)
	}
	if rec, _ := ts.do(t, http.MethodPut, "/api/v1/business-hours", "b1", week); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var items []hoursItem
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/business-hours", "b1", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil || len(items) != 7 {
		t.Fatalf("expected seven entries, got %s", rec.Body.String())
	}
	if items[6].OpenMinutes != nil || items[1].OpenMinutes == nil || *items[1].OpenMinutes != 480 {
		t.Fatalf("unexpected hours: %+v", items)
	}
}

func TestConversationFlow(t *testing.T) {
	ts := newTestServer(t)
	suggest := `{"business_id":"b1","service_id":"cut","scheduled_at":"2026-03-02T13:00:00Z"}`

	rec, body := ts.do(t, http.MethodPost, "/api/v1/conversations/+5511/suggest", "", suggest)
	if rec.Code != http.StatusOK || body["expires_at"] != "2026-03-01T11:20:00Z" {
		t.Fatalf("expected hold, got %d: %v", rec.Code, body)
	}
	if rec, _ := ts.do(t, http.MethodGet, "/api/v1/conversations/+5511/hold", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected active hold, got %d", rec.Code)
	}

	rec, body = ts.do(t, http.MethodPost, "/api/v1/conversations/+5511/confirm", "", `{"client":{"name":"Ana","phone":"+5511"}}`)
	if rec.Code != http.StatusCreated || body["source"] != "assistant" || body["status"] != "pending" {
		t.Fatalf("expected assistant booking, got %d: %v", rec.Code, body)
	}
	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/conversations/+5511/confirm", "", `{"client":{"name":"Ana"}}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for consumed hold, got %d", rec.Code)
	}

	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/conversations/+5522/suggest", "", `{"business_id":"b1","service_id":"cut","scheduled_at":"2026-03-02T14:00:00Z"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected second hold, got %d", rec.Code)
	}
	ts.now = ts.now.Add(holds.DefaultTTL + time.Second)
	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/conversations/+5522/confirm", "", `{"client":{"name":"Bia"}}`); rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired hold, got %d", rec.Code)
	}
}

func TestWriteError_Infrastructure(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rec, req, slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("connection refused"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("expected opaque 500, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	writeError(rec, req, slog.New(slog.NewTextHandler(io.Discard, nil)), context.DeadlineExceeded)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}
