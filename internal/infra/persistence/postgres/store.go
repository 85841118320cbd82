// Package postgres persists session snapshots to PostgreSQL through the pgx
// database/sql driver, mirroring the in-memory store for reads.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"skylink/internal/infra/persistence/memory"
	"skylink/pkg/domain"
	"skylink/pkg/errors"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.SnapshotStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/skylink?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a write-through Postgres snapshot store.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// ensures the snapshot table exists, and hydrates the cache.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	snaps, err := loadSnapshots(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.Import(snaps)
	return &Store{Store: mem, db: db}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS session_snapshots (
		name TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "ensure snapshot table")
	}
	return nil
}

func loadSnapshots(ctx context.Context, db *sql.DB) ([]domain.SessionSnapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, payload FROM session_snapshots`)
	if err != nil {
		return nil, errors.Wrap(err, "select snapshots")
	}
	defer func() { _ = rows.Close() }()

	var out []domain.SessionSnapshot
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, errors.Wrap(err, "scan snapshot")
		}
		if len(payload) == 0 {
			continue
		}
		var snap domain.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, errors.Wrapf(err, "decode %s", name)
		}
		snap.Name = name
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate snapshots")
	}
	return out, nil
}

// Save upserts the snapshot inside a transaction, then updates the cache.
func (s *Store) Save(ctx context.Context, snapshot domain.SessionSnapshot) error {
	if snapshot.Name == "" {
		return errors.New("snapshot name required")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %s", snapshot.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO session_snapshots(name,payload) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET payload=EXCLUDED.payload`, snapshot.Name, data); err != nil {
		return errors.Wrapf(err, "upsert %s", snapshot.Name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	committed = true
	return s.Store.Save(ctx, snapshot)
}

// Delete removes the snapshot from the database and the cache.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Store.Load(ctx, name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE name = $1`, name); err != nil {
		return errors.Wrapf(err, "delete %s", name)
	}
	return s.Store.Delete(ctx, name)
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
