// Package tracestore persists simulation runs and their event logs in SQLite.
// Uses WAL mode so a trace can be read while another run is being written.
package tracestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/postalsys/muti-sim/internal/stats"
	"github.com/postalsys/muti-sim/internal/sysinfo"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is a stored simulation run.
type Run struct {
	ID        string
	Seed      int64
	CreatedAt time.Time
	// Ticks is the final tick; zero until the run is finished.
	Ticks  uint64
	Peers  int
	Edges  int
	Config string // YAML
	Stats  *stats.Stats
	Host   sysinfo.Info
}

// Store wraps a SQLite database of runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace database at path.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create trace dir: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			seed        INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			ticks       INTEGER NOT NULL DEFAULT 0,
			peers       INTEGER NOT NULL,
			edges       INTEGER NOT NULL,
			config      TEXT NOT NULL DEFAULT '',
			stats       TEXT,
			host        TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS events (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq          INTEGER NOT NULL,
			tick         INTEGER NOT NULL,
			type         TEXT NOT NULL,
			peer         TEXT NOT NULL DEFAULT '',
			from_peer    TEXT NOT NULL DEFAULT '',
			via_peer     TEXT NOT NULL DEFAULT '',
			to_peer      TEXT NOT NULL DEFAULT '',
			packet_id    TEXT NOT NULL DEFAULT '',
			reason       TEXT NOT NULL DEFAULT '',
			detail       TEXT NOT NULL DEFAULT '',
			size         INTEGER NOT NULL DEFAULT 0,
			hops         INTEGER NOT NULL DEFAULT 0,
			interface_id TEXT NOT NULL DEFAULT '',
			latency_us   INTEGER NOT NULL DEFAULT 0,
			success      INTEGER,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(run_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_packet ON events(run_id, packet_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tick ON events(run_id, tick)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// BeginRun inserts run and returns its ID. A new UUID is assigned when
// run.ID is empty.
func (s *Store) BeginRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	statsJSON, err := encodeStats(run.Stats)
	if err != nil {
		return "", err
	}
	hostJSON, err := json.Marshal(run.Host)
	if err != nil {
		return "", fmt.Errorf("encode host: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, seed, created_at, ticks, peers, edges, config, stats, host)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Seed, run.CreatedAt.UnixNano(), run.Ticks, run.Peers, run.Edges, run.Config, statsJSON, string(hostJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// FinishRun records the final tick and counters of a run.
func (s *Store) FinishRun(ctx context.Context, id string, ticks uint64, st *stats.Stats) error {
	statsJSON, err := encodeStats(st)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ticks = ?, stats = ? WHERE id = ?`, ticks, statsJSON, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, seed, created_at, ticks, peers, edges, config, stats, host FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seed, created_at, ticks, peers, edges, config, stats, host FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its events.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run       Run
		createdAt int64
		statsJSON sql.NullString
		hostJSON  string
	)
	if err := row.Scan(&run.ID, &run.Seed, &createdAt, &run.Ticks, &run.Peers, &run.Edges, &run.Config, &statsJSON, &hostJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(hostJSON), &run.Host); err != nil {
		return nil, fmt.Errorf("decode host for run %s: %w", run.ID, err)
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	if statsJSON.Valid && statsJSON.String != "" {
		run.Stats = stats.New()
		if err := json.Unmarshal([]byte(statsJSON.String), run.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

func encodeStats(st *stats.Stats) (sql.NullString, error) {
	if st == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode stats: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
