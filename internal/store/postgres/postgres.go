// Package postgres is the PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/store"
	"github.com/Muhamad-Rezky-Pratama/UTS-IOT-PROG/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS data_sensor (
	id          BIGSERIAL PRIMARY KEY,
	suhu        DOUBLE PRECISION NOT NULL,
	humidity    DOUBLE PRECISION NOT NULL,
	lux         DOUBLE PRECISION NOT NULL,
	relay_state VARCHAR(10) NOT NULL CHECK (relay_state IN ('ON', 'OFF')),
	timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS data_sensor_timestamp_idx ON data_sensor (timestamp DESC);
`

const insertReading = `
	INSERT INTO data_sensor (suhu, humidity, lux, relay_state, timestamp)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, timestamp
`

// id breaks ties between readings stamped in the same microsecond.
const selectRecent = `
	SELECT id, suhu, humidity, lux, relay_state, timestamp
	FROM data_sensor
	ORDER BY timestamp DESC, id DESC
	LIMIT $1
`

// Store keeps readings in the data_sensor table.
// Every call borrows a connection from the pool and gives it back on return,
// whatever the outcome.
type Store struct {
	pool  *pgxpool.Pool
	clock *store.Clock
}

// Open creates the pool and verifies the database with a ping.
func Open(ctx context.Context, url string, clock *store.Clock) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping: %v", store.ErrUnavailable, err)
	}
	if clock == nil {
		clock = store.NewClock()
	}
	return &Store{pool: pool, clock: clock}, nil
}

// EnsureSchema creates the table and index when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create data_sensor: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// Append inserts one row. The timestamp comes from the process clock rather
// than now() so that it is non-decreasing in insert order.
func (s *Store) Append(ctx context.Context, r telemetry.Reading) (telemetry.Reading, error) {
	r.Timestamp = s.clock.Next()
	err := s.pool.QueryRow(ctx, insertReading,
		r.Temperature, r.Humidity, r.Illuminance, string(r.RelayState), r.Timestamp,
	).Scan(&r.ID, &r.Timestamp)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("insert into data_sensor: %w", err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

// Recent returns the newest limit rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]telemetry.Reading, error) {
	rows, err := s.pool.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("select from data_sensor: %w", err)
	}

	readings, err := pgx.CollectRows(rows, scanReading)
	if err != nil {
		return nil, fmt.Errorf("read data_sensor rows: %w", err)
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	return readings, nil
}

func scanReading(row pgx.CollectableRow) (telemetry.Reading, error) {
	var (
		r     telemetry.Reading
		relay string
	)
	if err := row.Scan(&r.ID, &r.Temperature, &r.Humidity, &r.Illuminance, &relay, &r.Timestamp); err != nil {
		return telemetry.Reading{}, err
	}
	state, err := telemetry.ParseRelayState(relay)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("row %d: %w", r.ID, err)
	}
	r.RelayState = state
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

var _ store.Store = (*Store)(nil)
