// Package aggregate computes the dashboard statistics over the newest readings.
package aggregate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// Window is the number of newest readings the statistics cover.
const Window = 50

// Stats is min/max/mean of one sensor, rounded to 2 decimals.
type Stats struct {
	Min  float64
	Max  float64
	Mean float64
}

// MonthMax is the highest temperature seen in one calendar month.
type MonthMax struct {
	Month          string  `json:"month_year"` // "2006-01"
	MaxTemperature float64 `json:"max_suhu"`
}

// Report is the aggregation result. When Empty is true only RelayState is set.
type Report struct {
	Empty       bool
	Temperature Stats
	Humidity    Stats
	Illuminance Stats
	MonthlyMax  []MonthMax
	RelayState  telemetry.RelayState
	Records     []telemetry.Reading
}

// Service reads the store and the live relay state.
type Service struct {
	store    store.Store
	cache    *state.Cache
	location *time.Location
}

// NewService returns a service grouping months in loc (UTC if nil).
func NewService(s store.Store, cache *state.Cache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: s, cache: cache, location: loc}
}

// Summary aggregates the newest Window readings. The relay state is read
// from the cache, not from the records: statistics are history, the relay
// is now.
func (s *Service) Summary(ctx context.Context) (Report, error) {
	records, err := s.store.Recent(ctx, Window)
	if err != nil {
		return Report{}, fmt.Errorf("load recent readings: %w", err)
	}
	relay := s.cache.Relay()
	if len(records) == 0 {
		return Report{Empty: true, RelayState: relay}, nil
	}

	temps := make([]float64, len(records))
	hums := make([]float64, len(records))
	luxes := make([]float64, len(records))
	for i, r := range records {
		temps[i], hums[i], luxes[i] = r.Temperature, r.Humidity, r.Illuminance
	}

	return Report{
		Temperature: summarize(temps),
		Humidity:    summarize(hums),
		Illuminance: summarize(luxes),
		MonthlyMax:  monthlyMax(records, s.location),
		RelayState:  relay,
		Records:     records,
	}, nil
}

// summarize expects at least one value.
func summarize(values []float64) Stats {
	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	return Stats{
		Min:  Round2(lo),
		Max:  Round2(hi),
		Mean: Round2(sum / float64(len(values))),
	}
}

// monthlyMax keeps one entry per distinct month of the sample, in the order
// the months first appear (newest first, like the records). Months without
// readings are not filled in.
func monthlyMax(records []telemetry.Reading, loc *time.Location) []MonthMax {
	index := make(map[string]int)
	var out []MonthMax
	for _, r := range records {
		key := r.Timestamp.In(loc).Format("2006-01")
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, MonthMax{Month: key, MaxTemperature: r.Temperature})
			continue
		}
		if r.Temperature > out[i].MaxTemperature {
			out[i].MaxTemperature = r.Temperature
		}
	}
	return out
}

// Round2 rounds to 2 decimals with halves away from zero (0.125 -> 0.13,
// -0.125 -> -0.13), as far as the binary value of x is a half at all.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
