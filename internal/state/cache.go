// Package state owns the single in-process copy of the last known device
// state. It is written by ingestion and by the relay command path and read
// by every API request.
package state

import (
	"sync"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// Snapshot is a consistent copy of the shared state. Sensor values are nil
// until the first reading arrives.
type Snapshot struct {
	Temperature *float64             `json:"suhu"`
	Humidity    *float64             `json:"humidity"`
	Illuminance *float64             `json:"lux"`
	RelayState  telemetry.RelayState `json:"relay_state"`
}

// Update carries the fields to change; nil fields are left untouched.
type Update struct {
	Temperature *float64
	Humidity    *float64
	Illuminance *float64
	RelayState  *telemetry.RelayState
}

// Cache guards the state with an RWMutex: many API readers at once, one
// writer at a time, and a reader never sees half of an update.
type Cache struct {
	mu sync.RWMutex

	temperature    float64
	humidity       float64
	illuminance    float64
	hasTemp        bool
	hasHumidity    bool
	hasIlluminance bool
	relay          telemetry.RelayState
}

// New returns an empty cache with the relay OFF.
func New() *Cache {
	return &Cache{relay: telemetry.RelayOff}
}

// Get returns a snapshot that shares no memory with the cache.
func (c *Cache) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Apply writes all supplied fields atomically and returns the resulting state.
func (c *Cache) Apply(u Update) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.Temperature != nil {
		c.temperature, c.hasTemp = *u.Temperature, true
	}
	if u.Humidity != nil {
		c.humidity, c.hasHumidity = *u.Humidity, true
	}
	if u.Illuminance != nil {
		c.illuminance, c.hasIlluminance = *u.Illuminance, true
	}
	if u.RelayState != nil {
		c.relay = *u.RelayState
	}
	return c.snapshotLocked()
}

// SetRelay is a shorthand for an Update that only touches the relay.
func (c *Cache) SetRelay(s telemetry.RelayState) Snapshot {
	return c.Apply(Update{RelayState: &s})
}

// Relay returns only the relay state.
func (c *Cache) Relay() telemetry.RelayState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relay
}

func (c *Cache) snapshotLocked() Snapshot {
	s := Snapshot{RelayState: c.relay}
	if c.hasTemp {
		v := c.temperature
		s.Temperature = &v
	}
	if c.hasHumidity {
		v := c.humidity
		s.Humidity = &v
	}
	if c.hasIlluminance {
		v := c.illuminance
		s.Illuminance = &v
	}
	return s
}
