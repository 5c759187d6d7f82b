package ingest

import (
	"testing"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

func TestValuesDefaulting(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		temp  float64
		hum   float64
		lux   float64
		relay telemetry.RelayState // "" means absent
	}{
		{name: "complete", raw: `{"suhu": 25, "humidity": 60.5, "lux": 100, "relay_state": "OFF"}`, temp: 25, hum: 60.5, lux: 100, relay: telemetry.RelayOff},
		{name: "empty object", raw: `{}`},
		{name: "integers", raw: `{"suhu": 30, "humidity": 0, "lux": 7}`, temp: 30, lux: 7},
		{name: "negative", raw: `{"suhu": -4.5}`, temp: -4.5},
		{name: "numeric strings", raw: `{"suhu": "21.5", "lux": " 3"}`, temp: 21.5},
		{name: "NaN string", raw: `{"suhu": "NaN", "humidity": "Inf"}`},
		{name: "bool and object", raw: `{"suhu": true, "humidity": {"v": 1}}`},
		{name: "relay number", raw: `{"relay_state": 1}`},
		{name: "relay lowercase", raw: `{"relay_state": "off"}`},
		{name: "unknown fields ignored", raw: `{"suhu": 1, "battery": 3.3}`, temp: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			temp, hum, lux, relay := p.Values()
			if temp != tc.temp || hum != tc.hum || lux != tc.lux {
				t.Fatalf("got (%v, %v, %v), want (%v, %v, %v)", temp, hum, lux, tc.temp, tc.hum, tc.lux)
			}
			switch {
			case tc.relay == "" && relay != nil:
				t.Fatalf("relay should be absent, got %q", *relay)
			case tc.relay != "" && (relay == nil || *relay != tc.relay):
				t.Fatalf("relay = %v, want %q", relay, tc.relay)
			}
		})
	}
}
