package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// Cooldown is how long it stays open before letting one probe through.
	Cooldown time.Duration
	// OnStateChange is optional, e.g. to export the state as a metric.
	OnStateChange func(from, to gobreaker.State)
}

type breakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps s in a circuit breaker. While the database is down every
// call fails fast with ErrUnavailable instead of waiting for its own timeout,
// so the ingest queue keeps moving.
func WithBreaker(s Store, cfg BreakerSettings) Store {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return &breakerStore{
		next: s,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "store",
			MaxRequests: 1,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			// A cancelled request says nothing about the database.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				if cfg.OnStateChange != nil {
					cfg.OnStateChange(from, to)
				}
			},
		}),
	}
}

func (b *breakerStore) Append(ctx context.Context, r telemetry.Reading) (telemetry.Reading, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Append(ctx, r)
	})
	if err != nil {
		return telemetry.Reading{}, b.wrap(err)
	}
	return out.(telemetry.Reading), nil
}

func (b *breakerStore) Recent(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Recent(ctx, limit)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return out.([]telemetry.Reading), nil
}

func (b *breakerStore) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
