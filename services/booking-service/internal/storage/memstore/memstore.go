// Package memstore keeps catalog, hours and appointments in process memory. It backs
// single-instance deployments without Postgres and the package tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type Store struct {
	mu           sync.RWMutex
	businesses   map[string]model.Business
	slugs        map[string]string
	services     map[string]model.Service
	hours        map[string]calendar.Week
	appointments map[string]model.Appointment
	byBusiness   map[string][]string
	idempotency  map[string]string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var (
	_ booking.Catalog          = (*Store)(nil)
	_ booking.AppointmentStore = (*Store)(nil)
	_ calendar.Store           = (*Store)(nil)
)

func New() *Store {
	return &Store{
		businesses:   map[string]model.Business{},
		slugs:        map[string]string{},
		services:     map[string]model.Service{},
		hours:        map[string]calendar.Week{},
		appointments: map[string]model.Appointment{},
		byBusiness:   map[string][]string{},
		idempotency:  map[string]string{},
		locks:        map[string]*sync.Mutex{},
	}
}

func (s *Store) PutBusiness(b model.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
	if b.Slug != "" {
		s.slugs[strings.ToLower(b.Slug)] = b.ID
	}
}

func (s *Store) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.BusinessID+"/"+svc.ID] = svc
}

func (s *Store) Business(_ context.Context, businessID string) (model.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[businessID]
	if !ok {
		return model.Business{}, apperror.NotFound("business")
	}
	return b, nil
}

func (s *Store) BusinessBySlug(ctx context.Context, slug string) (model.Business, error) {
	s.mu.RLock()
	id, ok := s.slugs[strings.ToLower(slug)]
	s.mu.RUnlock()
	if !ok {
		return model.Business{}, apperror.NotFound("business")
	}
	return s.Business(ctx, id)
}

func (s *Store) Service(_ context.Context, businessID, serviceID string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[businessID+"/"+serviceID]
	if !ok {
		return model.Service{}, apperror.NotFound("service")
	}
	return svc, nil
}

func (s *Store) GetWeek(_ context.Context, businessID string) ([]model.BusinessHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.hours[businessID]
	if !ok {
		return nil, nil
	}
	return w.Entries(), nil
}

func (s *Store) ReplaceWeek(_ context.Context, businessID string, week calendar.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.businesses[businessID]; !ok {
		return apperror.NotFound("business")
	}
	s.hours[businessID] = week
	return nil
}

// businessLock returns the mutex serializing calendar writers of one business.
func (s *Store) businessLock(businessID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[businessID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[businessID] = l
	}
	return l
}

func (s *Store) InsertIfFree(ctx context.Context, appt model.Appointment, idempotencyKey string) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, err
	}
	lock := s.businessLock(appt.BusinessID)
	lock.Lock()
	defer lock.Unlock()

	// The business lock spans the overlap check and the insert; s.mu only guards the maps.
	idemKey := appt.BusinessID + "/" + idempotencyKey
	s.mu.RLock()
	if idempotencyKey != "" {
		if id, ok := s.idempotency[idemKey]; ok {
			existing := s.appointments[id]
			s.mu.RUnlock()
			return existing, nil
		}
	}
	for _, id := range s.byBusiness[appt.BusinessID] {
		other := s.appointments[id]
		if other.Status.Active() && other.Overlaps(appt.StartTime, appt.EndTime) {
			s.mu.RUnlock()
			return model.Appointment{}, apperror.SlotTaken(other.StartTime, other.EndTime)
		}
	}
	s.mu.RUnlock()

	appt.ID = uuid.NewString()
	s.mu.Lock()
	s.appointments[appt.ID] = appt
	s.byBusiness[appt.BusinessID] = append(s.byBusiness[appt.BusinessID], appt.ID)
	if idempotencyKey != "" {
		s.idempotency[idemKey] = appt.ID
	}
	s.mu.Unlock()
	return appt, nil
}

func (s *Store) Get(_ context.Context, businessID, appointmentID string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appointments[appointmentID]
	if !ok || (businessID != "" && appt.BusinessID != businessID) {
		return model.Appointment{}, apperror.NotFound("appointment")
	}
	return appt, nil
}

func (s *Store) Transition(ctx context.Context, businessID, appointmentID string, fn booking.TransitionFunc) (model.Appointment, error) {
	current, err := s.Get(ctx, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	lock := s.businessLock(current.BusinessID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current = s.appointments[appointmentID]
	s.mu.RUnlock()

	next, changed, err := fn(current)
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		s.mu.Lock()
		s.appointments[appointmentID] = next
		s.mu.Unlock()
	}
	return next, nil
}

func (s *Store) ListRange(_ context.Context, businessID string, from, to time.Time, activeOnly bool) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, id := range s.byBusiness[businessID] {
		a := s.appointments[id]
		if activeOnly && !a.Status.Active() {
			continue
		}
		if a.Overlaps(from, to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}
