package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/suwandre/fundarb/internal/models"
)

const latestKeyPrefix = "fundarb:snapshot:latest:"

type mirroredSnapshot struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	DataType  string          `json:"data_type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// RedisMirror keeps the newest snapshot per data type in Redis in front of a
// durable Store. The durable store stays the source of truth; Redis failures
// only cost a round trip to it.
type RedisMirror struct {
	Store
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror wraps store. A zero ttl keeps mirrored entries until they
// are overwritten.
func NewRedisMirror(store Store, client *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{Store: store, client: client, ttl: ttl}
}

func latestKey(dataType models.DataType) string {
	return latestKeyPrefix + string(dataType)
}

func (m *RedisMirror) Append(ctx context.Context, dataType models.DataType, runID string, payload json.RawMessage) (*models.Snapshot, error) {
	snap, err := m.Store.Append(ctx, dataType, runID, payload)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(mirroredSnapshot{
		ID:        snap.ID,
		RunID:     snap.RunID,
		DataType:  string(snap.DataType),
		CreatedAt: snap.CreatedAt,
		Data:      snap.Payload,
	})
	if err != nil {
		return snap, nil
	}

	if err := m.client.Set(ctx, latestKey(dataType), raw, m.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("data_type", string(dataType)).Msg("failed to mirror snapshot to redis")
	}
	return snap, nil
}

func (m *RedisMirror) Latest(ctx context.Context, dataType models.DataType) (*models.Snapshot, error) {
	raw, err := m.client.Get(ctx, latestKey(dataType)).Bytes()
	switch {
	case err == nil:
		var mirrored mirroredSnapshot
		if err := json.Unmarshal(raw, &mirrored); err == nil {
			return &models.Snapshot{
				ID:        mirrored.ID,
				RunID:     mirrored.RunID,
				DataType:  models.DataType(mirrored.DataType),
				CreatedAt: mirrored.CreatedAt.UTC(),
				Payload:   mirrored.Data,
			}, nil
		}
		log.Warn().Str("data_type", string(dataType)).Msg("discarding undecodable redis snapshot")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("data_type", string(dataType)).Msg("redis read failed, falling back to database")
	}

	return m.Store.Latest(ctx, dataType)
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	if err := m.Store.Ping(ctx); err != nil {
		return err
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (m *RedisMirror) Close() error {
	return errors.Join(m.client.Close(), m.Store.Close())
}
