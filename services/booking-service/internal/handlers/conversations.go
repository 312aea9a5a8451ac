package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
)

// ConversationHandler serves the assistant webhook: propose a slot, then confirm it.
type ConversationHandler struct {
	holds  *holds.Manager
	logger *slog.Logger
}

func NewConversationHandler(manager *holds.Manager, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{holds: manager, logger: logger}
}

type suggestRequest struct {
	BusinessID  string `json:"business_id"`
	ServiceID   string `json:"service_id"`
	ScheduledAt string `json:"scheduled_at"`
}

type confirmRequest struct {
	Client clientBody `json:"client"`
}

func (h *ConversationHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		badRequest(w, "scheduled_at", "scheduled_at must be an RFC3339 timestamp")
		return
	}
	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		businessID = strings.TrimSpace(r.Header.Get(businessHeader))
	}

	hold, err := h.holds.SuggestSlot(r.Context(), holds.SuggestRequest{
		ConversationKey: r.PathValue("key"),
		BusinessID:      businessID,
		ServiceID:       req.ServiceID,
		StartTime:       start,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toHoldResponse(hold))
}

func (h *ConversationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	appt, err := h.holds.ConfirmSlot(r.Context(), r.PathValue("key"), req.Client.model())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *ConversationHandler) Hold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.holds.ActiveHold(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toHoldResponse(hold))
}
