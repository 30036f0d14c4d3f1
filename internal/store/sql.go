package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/suwandre/fundarb/internal/models"
)

// DefaultSQLiteDSN keeps history next to the binary, as funding_history.db.
const DefaultSQLiteDSN = "file:funding_history.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type dialect struct {
	driver string
	schema []string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS funding_snapshot (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				data_type TEXT NOT NULL,
				data TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_funding_snapshot_type_time ON funding_snapshot (data_type, created_at)`,
		},
	},
	"postgres": {
		driver: "postgres",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS funding_snapshot (
				id BIGSERIAL PRIMARY KEY,
				run_id TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				data_type TEXT NOT NULL,
				data TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_funding_snapshot_type_time ON funding_snapshot (data_type, created_at)`,
		},
		numbered: true,
	},
}

// SQLStore keeps snapshots in a single funding_snapshot table. created_at is
// stored as Unix microseconds (UTC) so freshness checks never parse a
// formatted timestamp.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time

	schemaMu    sync.Mutex
	schemaReady bool
}

type Option func(*SQLStore)

// WithClock overrides the clock used to stamp new snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

// OpenSQL opens a store for driver "sqlite" or "postgres". The schema is
// created lazily on first use.
func OpenSQL(driver, dsn string, opts ...Option) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" && driver == "sqlite" {
		dsn = DefaultSQLiteDSN
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w: %w", ErrUnavailable, err)
	}

	// SQLite allows one writer; a single connection also keeps :memory:
	// databases shared across calls.
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, dialect: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaReady {
		return nil
	}

	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w: %w", ErrUnavailable, err)
		}
	}
	s.schemaReady = true
	return nil
}

// rebind rewrites ? placeholders for dialects that number them.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Append(ctx context.Context, dataType models.DataType, runID string, payload json.RawMessage) (*models.Snapshot, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	query := s.rebind(`INSERT INTO funding_snapshot (run_id, created_at, data_type, data) VALUES (?, ?, ?, ?) RETURNING id`)

	var id int64
	err := s.db.QueryRowContext(ctx, query, runID, createdAt.UnixMicro(), string(dataType), string(payload)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w: %w", ErrUnavailable, err)
	}

	return &models.Snapshot{
		ID:        id,
		RunID:     runID,
		DataType:  dataType,
		CreatedAt: time.UnixMicro(createdAt.UnixMicro()).UTC(),
		Payload:   payload,
	}, nil
}

func (s *SQLStore) Latest(ctx context.Context, dataType models.DataType) (*models.Snapshot, error) {
	snaps, err := s.History(ctx, dataType, 1)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

func (s *SQLStore) History(ctx context.Context, dataType models.DataType, limit int) ([]models.Snapshot, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	query := s.rebind(`
		SELECT id, run_id, created_at, data_type, data FROM funding_snapshot
		WHERE data_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)

	return s.query(ctx, query, string(dataType), limit)
}

func (s *SQLStore) HourlyArbitragePeaks(ctx context.Context) ([]models.HourlyPeak, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	query := s.rebind(`
		SELECT id, run_id, created_at, data_type, data FROM funding_snapshot
		WHERE data_type = ?
		ORDER BY created_at ASC, id ASC`)

	snaps, err := s.query(ctx, query, string(models.DataTypeArbitrage))
	if err != nil {
		return nil, err
	}

	peaks, err := hourlyPeaks(snaps)
	if err != nil {
		return nil, fmt.Errorf("failed to decode arbitrage snapshot: %w", err)
	}
	return peaks, nil
}

func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM funding_snapshot WHERE created_at < ?`), before.UTC().UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w: %w", ErrUnavailable, err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	snaps := []models.Snapshot{}
	for rows.Next() {
		var (
			snap      models.Snapshot
			createdAt int64
			dataType  string
			data      string
		)
		if err := rows.Scan(&snap.ID, &snap.RunID, &createdAt, &dataType, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w: %w", ErrUnavailable, err)
		}
		snap.CreatedAt = time.UnixMicro(createdAt).UTC()
		snap.DataType = models.DataType(dataType)
		snap.Payload = json.RawMessage(data)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w: %w", ErrUnavailable, err)
	}
	return snaps, nil
}
