// Package devicesim imitates the ESP32 node: it publishes synthetic
// readings and switches its relay on commands from the bridge.
package devicesim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/aggregate"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// Publisher sends one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type reading struct {
	Temperature float64              `json:"suhu"`
	Humidity    float64              `json:"humidity"`
	Illuminance float64              `json:"lux"`
	RelayState  telemetry.RelayState `json:"relay_state"`
}

type relayCommand struct {
	State string `json:"state"`
}

// Device holds the simulated relay and the random source for the sensors.
type Device struct {
	mu    sync.Mutex
	relay telemetry.RelayState
	rng   *rand.Rand
}

// New returns a device with the relay OFF, like a freshly booted board.
func New(seed int64) *Device {
	return &Device{relay: telemetry.RelayOff, rng: rand.New(rand.NewSource(seed))}
}

// Relay returns the current relay state.
func (d *Device) Relay() telemetry.RelayState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.relay
}

// Reading encodes one telemetry payload with the current relay state.
func (d *Device) Reading() []byte {
	d.mu.Lock()
	r := reading{
		Temperature: aggregate.Round2(24 + d.rng.Float64()*10), // 24-34 °C
		Humidity:    aggregate.Round2(50 + d.rng.Float64()*30), // 50-80 %
		Illuminance: aggregate.Round2(d.rng.Float64() * 1000),  // 0-1000 lx
		RelayState:  d.relay,
	}
	d.mu.Unlock()

	payload, _ := json.Marshal(r)
	return payload
}

// Handle applies a relay command. It satisfies broker.Handler.
func (d *Device) Handle(_ context.Context, payload []byte) error {
	var cmd relayCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decode relay command: %w", err)
	}
	s, err := telemetry.ParseRelayState(cmd.State)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.relay = s
	d.mu.Unlock()
	return nil
}

// Run publishes a reading every interval until ctx is cancelled. Failed
// publishes are logged and skipped, the next tick tries again.
func (d *Device) Run(ctx context.Context, pub Publisher, topic string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := d.Reading()
			if err := pub.Publish(ctx, topic, payload); err != nil {
				logger.Warn("Reading not published", "error", err)
				continue
			}
			logger.Debug("Reading published", "topic", topic, "payload", string(payload))
		}
	}
}
