package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
)

type Routes struct {
	Booking       *BookingHandler
	Conversations *ConversationHandler
	// Public wraps the unauthenticated booking-link routes, typically with a rate limiter.
	Public []httpx.Middleware
}

func (rt Routes) Register(mux *http.ServeMux) {
	public := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, rt.Public...)
	}

	mux.Handle("GET /api/v1/public/{slug}/availability", public(rt.Booking.PublicAvailability))
	mux.Handle("POST /api/v1/public/{slug}/book", public(rt.Booking.PublicBook))

	mux.HandleFunc("GET /api/v1/availability", rt.Booking.Availability)
	mux.HandleFunc("POST /api/v1/appointments", rt.Booking.CreateAppointment)
	mux.HandleFunc("GET /api/v1/appointments", rt.Booking.ListAppointments)
	mux.HandleFunc("GET /api/v1/appointments/{id}", rt.Booking.GetAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/status", rt.Booking.UpdateStatus)
	mux.HandleFunc("GET /api/v1/business-hours", rt.Booking.GetHours)
	mux.HandleFunc("PUT /api/v1/business-hours", rt.Booking.PutHours)

	if rt.Conversations != nil {
		mux.HandleFunc("POST /api/v1/conversations/{key}/suggest", rt.Conversations.Suggest)
		mux.HandleFunc("POST /api/v1/conversations/{key}/confirm", rt.Conversations.Confirm)
		mux.HandleFunc("GET /api/v1/conversations/{key}/hold", rt.Conversations.Hold)
	}
}
