package radio

import (
	"sync"
	"time"
)

type entry struct {
	humidity float64
	at       time.Time
}

// Store keeps the latest reading per plant. Readings older than MaxAge are
// reported as absent so the controller falls back to its own last-known
// value or default.
type Store struct {
	mu      sync.RWMutex
	entries map[int]entry
	maxAge  time.Duration
	now     func() time.Time
}

// NewStore creates a store. maxAge <= 0 disables staleness.
func NewStore(maxAge time.Duration) *Store {
	return &Store{
		entries: make(map[int]entry),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Update records samples as received now.
func (s *Store) Update(samples ...Sample) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, smp := range samples {
		s.entries[smp.PlantIndex] = entry{humidity: smp.Humidity, at: now}
	}
}

// ReadHumidity returns the fresh reading for a plant, if any.
func (s *Store) ReadHumidity(plantIndex int) (float64, bool) {
	s.mu.RLock()
	e, ok := s.entries[plantIndex]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if s.maxAge > 0 && s.now().Sub(e.at) > s.maxAge {
		return 0, false
	}
	return e.humidity, true
}

// Snapshot returns all fresh readings.
func (s *Store) Snapshot() map[int]float64 {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]float64, len(s.entries))
	for idx, e := range s.entries {
		if s.maxAge > 0 && now.Sub(e.at) > s.maxAge {
			continue
		}
		out[idx] = e.humidity
	}
	return out
}
