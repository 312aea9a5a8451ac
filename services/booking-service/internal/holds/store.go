// Package holds keeps the tentative slot proposals made during a conversation and
// promotes them into appointments.
package holds

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Store persists at most one hold per conversation key.
type Store interface {
	// Put overwrites any hold stored under the same conversation key.
	Put(ctx context.Context, hold model.Hold) error
	// Get returns the hold for key; expired holds are reported as absent.
	Get(ctx context.Context, key string, now time.Time) (model.Hold, bool, error)
	// Take removes and returns the hold for key, expired or not.
	Take(ctx context.Context, key string) (model.Hold, bool, error)
	ListActive(ctx context.Context, businessID string, now time.Time) ([]model.Hold, error)
	// PurgeExpired drops holds (or their index entries) that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is the process-local Store for single-instance deployments.
type MemoryStore struct {
	mu    sync.Mutex
	holds map[string]model.Hold
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{holds: map[string]model.Hold{}}
}

func (s *MemoryStore) Put(_ context.Context, hold model.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[hold.ConversationKey] = hold
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (model.Hold, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[key]
	if !ok || h.Expired(now) {
		return model.Hold{}, false, nil
	}
	return h, true, nil
}

func (s *MemoryStore) Take(_ context.Context, key string) (model.Hold, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[key]
	if ok {
		delete(s.holds, key)
	}
	return h, ok, nil
}

func (s *MemoryStore) ListActive(_ context.Context, businessID string, now time.Time) ([]model.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Hold
	for _, h := range s.holds {
		if h.BusinessID == businessID && !h.Expired(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, h := range s.holds {
		if h.Expired(now) {
			delete(s.holds, key)
			n++
		}
	}
	return n, nil
}
