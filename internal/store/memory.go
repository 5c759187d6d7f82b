package store

import (
	"context"
	"sync"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// Memory keeps readings in process memory. It backs STORE_BACKEND=memory
// for local runs without PostgreSQL, and the tests.
type Memory struct {
	mu       sync.RWMutex
	clock    *Clock
	readings []telemetry.Reading
}

// NewMemory returns an empty store stamping readings with clock.
func NewMemory(clock *Clock) *Memory {
	if clock == nil {
		clock = NewClock()
	}
	return &Memory{clock: clock}
}

func (m *Memory) Append(ctx context.Context, r telemetry.Reading) (telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Reading{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = int64(len(m.readings) + 1)
	r.Timestamp = m.clock.Next()
	m.readings = append(m.readings, r)
	return r, nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.readings)
	if limit > n {
		limit = n
	}
	if limit <= 0 {
		return []telemetry.Reading{}, nil
	}
	out := make([]telemetry.Reading, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.readings[i])
	}
	return out, nil
}

// Len reports how many readings are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings)
}
