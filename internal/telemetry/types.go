// Package telemetry holds the domain types shared by ingestion, storage,
// aggregation and the command path.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// RelayState is the ON/OFF state of the device actuator.
type RelayState string

const (
	RelayOn  RelayState = "ON"
	RelayOff RelayState = "OFF"
)

// ErrInvalidRelayState is returned for any relay value other than exactly "ON" or "OFF".
var ErrInvalidRelayState = errors.New("state must be 'ON' or 'OFF'")

// ParseRelayState is case-sensitive: "on" or " ON" are rejected.
func ParseRelayState(s string) (RelayState, error) {
	switch RelayState(s) {
	case RelayOn, RelayOff:
		return RelayState(s), nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidRelayState, s)
}

// Reading is one persisted sensor record (one row of data_sensor).
// It is never modified after Append.
type Reading struct {
	ID          int64      `json:"id"`
	Temperature float64    `json:"suhu"`
	Humidity    float64    `json:"humidity"`
	Illuminance float64    `json:"lux"`
	RelayState  RelayState `json:"relay_state"`

	// Timestamp is assigned by the store at write time, always UTC.
	Timestamp time.Time `json:"timestamp"`
}
