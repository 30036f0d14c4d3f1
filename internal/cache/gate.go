package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/suwandre/fundarb/internal/models"
)

const DefaultTTL = 300 * time.Second

// Snapshots is the part of the snapshot store the gate depends on.
type Snapshots interface {
	Latest(ctx context.Context, dataType models.DataType) (*models.Snapshot, error)
	Append(ctx context.Context, dataType models.DataType, runID string, payload json.RawMessage) (*models.Snapshot, error)
}

// Producer builds a fresh table. Its result must marshal to a JSON array.
type Producer func(ctx context.Context) (any, error)

// Gate serves the latest snapshot while it is younger than the TTL and
// otherwise recomputes, persists and returns a new one.
type Gate struct {
	store Snapshots
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

func NewGate(store Snapshots, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces the clock used for freshness checks.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Get returns the payload for dataType. Concurrent misses for the same data
// type share one producer run.
func (g *Gate) Get(ctx context.Context, dataType models.DataType, produce Producer) (json.RawMessage, error) {
	if payload, ok, err := g.fresh(ctx, dataType); err != nil || ok {
		return payload, err
	}

	v, err, shared := g.group.Do(string(dataType), func() (any, error) {
		// another caller may have refreshed while we waited
		if payload, ok, err := g.fresh(ctx, dataType); err != nil || ok {
			return payload, err
		}
		return g.refresh(context.WithoutCancel(ctx), dataType, produce)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		log.Debug().Str("data_type", string(dataType)).Msg("joined in-flight refresh")
	}
	return v.(json.RawMessage), nil
}

// Refresh recomputes and persists dataType regardless of cache age.
func (g *Gate) Refresh(ctx context.Context, dataType models.DataType, produce Producer) (json.RawMessage, error) {
	v, err, _ := g.group.Do(string(dataType), func() (any, error) {
		return g.refresh(ctx, dataType, produce)
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (g *Gate) fresh(ctx context.Context, dataType models.DataType) (json.RawMessage, bool, error) {
	snap, err := g.store.Latest(ctx, dataType)
	if err != nil {
		return nil, false, err
	}
	if snap == nil {
		return nil, false, nil
	}

	age := g.now().Sub(snap.CreatedAt)
	if age >= g.ttl {
		return nil, false, nil
	}

	log.Debug().
		Str("data_type", string(dataType)).
		Int64("snapshot", snap.ID).
		Dur("age", age).
		Msg("cache hit")
	return snap.Payload, true, nil
}

func (g *Gate) refresh(ctx context.Context, dataType models.DataType, produce Producer) (json.RawMessage, error) {
	start := g.now()

	result, err := produce(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to produce %s table: %w", dataType, err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s table: %w", dataType, err)
	}

	runID := uuid.NewString()
	snap, err := g.store.Append(ctx, dataType, runID, payload)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("data_type", string(dataType)).
		Str("run_id", runID).
		Int64("snapshot", snap.ID).
		Dur("took", g.now().Sub(start)).
		Msg("cache refreshed")
	return payload, nil
}
