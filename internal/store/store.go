// Package store persists accepted sensor readings and returns the most recent ones.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// ErrUnavailable marks a store that cannot be reached right now.
var ErrUnavailable = errors.New("store unavailable")

// Store is an append-only log of readings.
type Store interface {
	// Append writes one reading and returns it with ID and Timestamp assigned.
	Append(ctx context.Context, r telemetry.Reading) (telemetry.Reading, error)

	// Recent returns up to limit readings, newest first.
	Recent(ctx context.Context, limit int) ([]telemetry.Reading, error)
}

// Clock hands out UTC write timestamps that never go backwards, even if the
// wall clock is stepped back (NTP on a Raspberry Pi does that).
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock returns a clock based on time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns max(now, previous).
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
