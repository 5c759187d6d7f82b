package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/state"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// fixedStore returns its readings as given, they are already newest first.
type fixedStore struct {
	readings []telemetry.Reading
	err      error
	limit    int
}

func (f *fixedStore) Append(context.Context, telemetry.Reading) (telemetry.Reading, error) {
	return telemetry.Reading{}, errors.New("read only")
}

func (f *fixedStore) Recent(_ context.Context, limit int) ([]telemetry.Reading, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.readings) {
		return f.readings[:limit], nil
	}
	return f.readings, nil
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSummaryStats(t *testing.T) {
	st := &fixedStore{readings: []telemetry.Reading{
		{Temperature: 30, Humidity: 50, Illuminance: 3, RelayState: telemetry.RelayOff, Timestamp: at("2024-05-03T10:00:00Z")},
		{Temperature: 20, Humidity: 40, Illuminance: 2, RelayState: telemetry.RelayOff, Timestamp: at("2024-05-02T10:00:00Z")},
		{Temperature: 10, Humidity: 41, Illuminance: 2, RelayState: telemetry.RelayOff, Timestamp: at("2024-05-01T10:00:00Z")},
	}}
	cache := state.New()
	cache.SetRelay(telemetry.RelayOn)

	rep, err := NewService(st, cache, nil).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if st.limit != Window {
		t.Fatalf("asked the store for %d readings, want %d", st.limit, Window)
	}
	if rep.Empty {
		t.Fatalf("report should not be empty")
	}
	if rep.Temperature != (Stats{Min: 10, Max: 30, Mean: 20}) {
		t.Fatalf("temperature stats = %+v", rep.Temperature)
	}
	if rep.Humidity != (Stats{Min: 40, Max: 50, Mean: 43.67}) {
		t.Fatalf("humidity stats = %+v", rep.Humidity)
	}
	if rep.Illuminance != (Stats{Min: 2, Max: 3, Mean: 2.33}) {
		t.Fatalf("lux stats = %+v", rep.Illuminance)
	}
	// The relay comes from the live cache, not from the stored rows.
	if rep.RelayState != telemetry.RelayOn {
		t.Fatalf("relay = %q, want ON", rep.RelayState)
	}
	if len(rep.Records) != 3 || rep.Records[0].Temperature != 30 {
		t.Fatalf("records should be returned newest first: %+v", rep.Records)
	}
}

func TestSummaryMonthlyMax(t *testing.T) {
	st := &fixedStore{readings: []telemetry.Reading{
		{Temperature: 25, Timestamp: at("2024-06-01T08:00:00Z")},
		{Temperature: 15, Timestamp: at("2024-05-20T08:00:00Z")},
		{Temperature: 10, Timestamp: at("2024-05-02T08:00:00Z")},
	}}

	rep, err := NewService(st, state.New(), time.UTC).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := []MonthMax{{Month: "2024-06", MaxTemperature: 25}, {Month: "2024-05", MaxTemperature: 15}}
	if len(rep.MonthlyMax) != len(want) {
		t.Fatalf("monthly max = %+v, want %+v", rep.MonthlyMax, want)
	}
	for i := range want {
		if rep.MonthlyMax[i] != want[i] {
			t.Fatalf("monthly max = %+v, want %+v", rep.MonthlyMax, want)
		}
	}
}

func TestMonthlyMaxUsesReportTimezone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	st := &fixedStore{readings: []telemetry.Reading{
		// 31 May 20:00 UTC is already 1 June in UTC+7.
		{Temperature: 22, Timestamp: at("2024-05-31T20:00:00Z")},
	}}

	rep, err := NewService(st, state.New(), jakarta).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(rep.MonthlyMax) != 1 || rep.MonthlyMax[0].Month != "2024-06" {
		t.Fatalf("monthly max = %+v", rep.MonthlyMax)
	}
}

func TestSummaryOnlyCoversWindow(t *testing.T) {
	mem := store.NewMemory(nil)
	for i := 1; i <= Window+10; i++ {
		if _, err := mem.Append(context.Background(), telemetry.Reading{Temperature: float64(i), RelayState: telemetry.RelayOff}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rep, err := NewService(mem, state.New(), nil).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(rep.Records) != Window {
		t.Fatalf("records = %d, want %d", len(rep.Records), Window)
	}
	if rep.Temperature.Min != 11 || rep.Temperature.Max != 60 || rep.Temperature.Mean != 35.5 {
		t.Fatalf("temperature stats = %+v", rep.Temperature)
	}
}

func TestSummaryEmptyStore(t *testing.T) {
	cache := state.New()
	rep, err := NewService(&fixedStore{}, cache, nil).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !rep.Empty || rep.RelayState != telemetry.RelayOff || rep.Records != nil {
		t.Fatalf("unexpected empty report %+v", rep)
	}
}

func TestSummaryStoreError(t *testing.T) {
	_, err := NewService(&fixedStore{err: store.ErrUnavailable}, state.New(), nil).Summary(context.Background())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		0.125:   0.13,
		-0.125:  -0.13,
		-1.375:  -1.38,
		20:      20,
		43.6666: 43.67,
	}
	for in, want := range cases {
		if got := Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}
