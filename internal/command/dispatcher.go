// Package command validates operator relay commands and sends them to the device.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/metrics"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// ErrPublish marks a valid command that could not be handed to the broker.
var ErrPublish = errors.New("relay command not published")

// Publisher sends one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// relayCommand is the payload the ESP32 expects on the relay topic.
type relayCommand struct {
	State telemetry.RelayState `json:"state"`
}

// Dispatcher sends relay commands and records the requested state.
type Dispatcher struct {
	pub     Publisher
	topic   string
	cache   *state.Cache
	mirror  state.Mirror
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher wires the dispatcher. mirror may be nil.
func NewDispatcher(pub Publisher, topic string, cache *state.Cache, mirror state.Mirror, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, topic: topic, cache: cache, mirror: mirror, metrics: m, logger: logger}
}

// Dispatch publishes {"state": desired} and then sets the cached relay state
// to desired without waiting for the device; there is no acknowledgement
// channel, a later telemetry message reports what the device really did.
//
// desired must be exactly "ON" or "OFF" (telemetry.ErrInvalidRelayState
// otherwise, nothing is published). When publishing fails the cache is left
// alone and ErrPublish is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, desired string) (telemetry.RelayState, error) {
	s, err := telemetry.ParseRelayState(desired)
	if err != nil {
		d.metrics.CommandsSent.WithLabelValues("invalid", "rejected").Inc()
		return "", err
	}

	payload, err := json.Marshal(relayCommand{State: s})
	if err != nil {
		return "", fmt.Errorf("encode relay command: %w", err)
	}

	if err := d.pub.Publish(ctx, d.topic, payload); err != nil {
		d.metrics.CommandsSent.WithLabelValues(string(s), "error").Inc()
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	d.metrics.CommandsSent.WithLabelValues(string(s), "ok").Inc()
	d.logger.Info("Relay command sent", "topic", d.topic, "payload", string(payload))

	snap := d.cache.SetRelay(s)
	if d.mirror != nil {
		if err := d.mirror.Save(ctx, snap); err != nil {
			d.logger.Warn("State mirror update failed", "error", err)
		}
	}
	return s, nil
}
