package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

// openTestStore needs a disposable database in POSTGRES_TEST_URL; the table
// is truncated before the test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url, store.NewClock())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE data_sensor RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, temp := range []float64{10, 20, 30} {
		if _, err := s.Append(ctx, telemetry.Reading{Temperature: temp, Humidity: 50, Illuminance: 100, RelayState: telemetry.RelayOn}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Temperature != 30 || got[1].Temperature != 20 {
		t.Fatalf("unexpected rows %+v", got)
	}
	if got[0].RelayState != telemetry.RelayOn {
		t.Fatalf("relay state = %q", got[0].RelayState)
	}
}

func TestRecentOnEmptyTable(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(context.Background(), 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
