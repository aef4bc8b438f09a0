package clock

import (
	"sync"
	"time"
)

// System отдаёт реальное время в UTC.
type System struct{}

// Now реализует domain.Clock.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual — часы, которые двигаются только вручную.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создаёт часы, остановленные на now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now.UTC()}
}

// Now реализует domain.Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance сдвигает часы вперёд на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set переставляет часы на t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}
