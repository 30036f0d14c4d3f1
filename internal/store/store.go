package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/suwandre/fundarb/internal/models"
)

// ErrUnavailable wraps every failure to reach or write the persistence layer.
var ErrUnavailable = errors.New("snapshot store unavailable")

// Store is an append-only log of snapshots. Records are never updated; they
// are only removed by an explicit retention Prune.
type Store interface {
	Append(ctx context.Context, dataType models.DataType, runID string, payload json.RawMessage) (*models.Snapshot, error)
	// Latest returns nil, nil when no snapshot of dataType exists.
	Latest(ctx context.Context, dataType models.DataType) (*models.Snapshot, error)
	// History returns at most limit snapshots, newest first.
	History(ctx context.Context, dataType models.DataType, limit int) ([]models.Snapshot, error)
	HourlyArbitragePeaks(ctx context.Context) ([]models.HourlyPeak, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// hourlyPeaks keeps the highest-APR opportunity per UTC hour. snapshots must
// be in ascending time order; within an hour the first maximum wins.
func hourlyPeaks(snapshots []models.Snapshot) ([]models.HourlyPeak, error) {
	peaks := make(map[time.Time]*models.HourlyPeak)

	for _, snap := range snapshots {
		var rows []models.ArbitrageRow
		if err := json.Unmarshal(snap.Payload, &rows); err != nil {
			return nil, err
		}

		hour := snap.CreatedAt.UTC().Truncate(time.Hour)
		for _, row := range rows {
			peak, ok := peaks[hour]
			if !ok {
				peaks[hour] = &models.HourlyPeak{Hour: hour, Symbol: row.Symbol, APR: row.APR}
				continue
			}
			if row.APR > peak.APR {
				peak.Symbol, peak.APR = row.Symbol, row.APR
			}
		}
	}

	out := make([]models.HourlyPeak, 0, len(peaks))
	for _, p := range peaks {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hour.Before(out[j].Hour)
	})
	return out, nil
}
