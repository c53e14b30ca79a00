// Package ratelimit throttles requests per key over a sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides whether one more event for key fits in the window.
// Allow records the event when it returns true.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) bool
}

// Memory is a process-local sliding-log limiter. Suitable for a single
// instance; use Store when several instances share traffic.
type Memory struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
	now   func() time.Time
	calls int
}

const sweepEvery = 1024

func NewMemory() *Memory {
	return &Memory{hits: make(map[string][]time.Time), now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(cutoff)
	}

	kept := prune(m.hits[key], cutoff)
	if len(kept) >= limit {
		m.hits[key] = kept
		return false
	}
	m.hits[key] = append(kept, now)
	return true
}

// sweep drops keys with no hits inside the window. Callers hold mu.
func (m *Memory) sweep(cutoff time.Time) {
	for k, v := range m.hits {
		if len(prune(v, cutoff)) == 0 {
			delete(m.hits, k)
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
