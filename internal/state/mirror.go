package state

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror receives a copy of the state after every change.
type Mirror interface {
	Save(ctx context.Context, s Snapshot) error
}

// MirrorKey is the Valkey hash holding the last known state.
const MirrorKey = "telemetry:last"

// ValkeyMirror writes the snapshot into Valkey (Redis) as "hot storage" for
// other dashboards. It is write-only: the process never seeds its own state
// from it, so the relay still starts OFF after a restart.
type ValkeyMirror struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewValkeyMirror connects to addr and checks it with PING.
func NewValkeyMirror(ctx context.Context, addr string, ttl time.Duration) (*ValkeyMirror, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("valkey not reachable at %s: %w", addr, err)
	}
	return &ValkeyMirror{rdb: rdb, ttl: ttl, now: time.Now}, nil
}

// Save replaces the hash and refreshes its expiry in one pipeline, so dead
// devices disappear from the cache after ttl.
func (m *ValkeyMirror) Save(ctx context.Context, s Snapshot) error {
	fields := mirrorFields(s, m.now())
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, MirrorKey)
		pipe.HSet(ctx, MirrorKey, fields)
		pipe.Expire(ctx, MirrorKey, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("valkey mirror update: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (m *ValkeyMirror) Close() error {
	return m.rdb.Close()
}

// mirrorFields flattens a snapshot; unknown sensor values are left out of the hash.
func mirrorFields(s Snapshot, now time.Time) map[string]any {
	fields := map[string]any{
		"relay_state": string(s.RelayState),
		"updated_at":  now.UTC().Format(time.RFC3339Nano),
	}
	put := func(name string, v *float64) {
		if v != nil {
			fields[name] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	put("suhu", s.Temperature)
	put("humidity", s.Humidity)
	put("lux", s.Illuminance)
	return fields
}
