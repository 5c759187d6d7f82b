// Package ingest turns telemetry messages into cache updates and stored readings.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// ErrPersist marks a reading that reached the cache but not the store.
var ErrPersist = errors.New("reading not persisted")

// Handler processes one telemetry message at a time.
type Handler struct {
	cache          *state.Cache
	store          store.Store
	mirror         state.Mirror
	metrics        *metrics.Metrics
	logger         *slog.Logger
	persistTimeout time.Duration
}

// NewHandler wires the handler. mirror may be nil.
func NewHandler(cache *state.Cache, s store.Store, mirror state.Mirror, m *metrics.Metrics, logger *slog.Logger, persistTimeout time.Duration) *Handler {
	return &Handler{
		cache:          cache,
		store:          s,
		mirror:         mirror,
		metrics:        m,
		logger:         logger,
		persistTimeout: persistTimeout,
	}
}

// Handle decodes payload, updates the cache and appends the reading.
//
// The cache is updated before the store is written and stays updated when
// the write fails: the dashboard shows the latest value even while the
// database is down, at the cost of a missing history row.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	p, err := Decode(payload)
	if err != nil {
		h.metrics.MessagesHandled.WithLabelValues(metrics.OutcomeDecodeError).Inc()
		return err
	}

	temp, hum, lux, relay := p.Values()
	// A nil relay keeps the current value inside the cache lock, so a relay
	// command issued meanwhile is not overwritten by a stale read.
	snap := h.cache.Apply(state.Update{
		Temperature: &temp,
		Humidity:    &hum,
		Illuminance: &lux,
		RelayState:  relay,
	})

	reading := telemetry.Reading{
		Temperature: temp,
		Humidity:    hum,
		Illuminance: lux,
		RelayState:  snap.RelayState,
	}

	var errs []error
	if err := h.persist(ctx, reading); err != nil {
		errs = append(errs, err)
	}
	if h.mirror != nil {
		if err := h.mirror.Save(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) persist(ctx context.Context, r telemetry.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()

	start := time.Now()
	saved, err := h.store.Append(ctx, r)
	h.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.metrics.MessagesHandled.WithLabelValues(metrics.OutcomePersistError).Inc()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	h.metrics.MessagesHandled.WithLabelValues(metrics.OutcomeStored).Inc()
	h.logger.Debug("Reading stored",
		"id", saved.ID,
		"suhu", saved.Temperature,
		"humidity", saved.Humidity,
		"lux", saved.Illuminance,
		"relay_state", saved.RelayState,
	)
	return nil
}
