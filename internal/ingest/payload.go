package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// ErrDecode marks a payload that is not a JSON object.
var ErrDecode = errors.New("telemetry payload is not a JSON object")

// Payload is the wire shape published by the ESP32 on esp32/rezky/data:
//
//	{"suhu": 27.4, "humidity": 61, "lux": 320, "relay_state": "OFF"}
//
// Fields stay raw so that a wrongly typed field degrades to its default
// instead of rejecting the whole message.
type Payload struct {
	Temperature json.RawMessage `json:"suhu"`
	Humidity    json.RawMessage `json:"humidity"`
	Illuminance json.RawMessage `json:"lux"`
	RelayState  json.RawMessage `json:"relay_state"`
}

// Decode parses raw bytes. Anything but a JSON object is ErrDecode.
func Decode(raw []byte) (Payload, error) {
	var p Payload
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, fmt.Errorf("%w: %q", ErrDecode, truncate(trimmed, 64))
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return p, nil
}

// Values applies the defaulting rules:
//   - suhu, humidity, lux: a JSON number or a numeric string; anything else
//     (missing, null, text, NaN, Inf) is 0.0.
//   - relay_state: the string "ON" or "OFF"; anything else is reported as
//     absent (nil) and the caller keeps the previous state.
func (p Payload) Values() (temperature, humidity, illuminance float64, relay *telemetry.RelayState) {
	return number(p.Temperature), number(p.Humidity), number(p.Illuminance), relayState(p.RelayState)
}

func number(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func relayState(raw json.RawMessage) *telemetry.RelayState {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	state, err := telemetry.ParseRelayState(s)
	if err != nil {
		return nil
	}
	return &state
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
