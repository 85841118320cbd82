// Package sqlite persists session snapshots to an embedded SQLite file using
// the pure-Go modernc driver. Snapshots are cached in memory and written
// through on every change.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"skylink/internal/infra/persistence/memory"
	"skylink/pkg/domain"
	"skylink/pkg/errors"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.SnapshotStore = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "skylink.db"

// Store is a write-through SQLite snapshot store.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if needed) the database at path and hydrates the
// in-memory cache from it.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, errors.Wrap(err, "create dirs")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS session_snapshots (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create snapshot table")
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT name, payload FROM session_snapshots`)
	if err != nil {
		return errors.Wrap(err, "select snapshots")
	}
	defer func() { _ = rows.Close() }()
	var snaps []domain.SessionSnapshot
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return errors.Wrap(err, "scan")
		}
		var snap domain.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return errors.Wrapf(err, "decode snapshot %s", name)
		}
		snap.Name = name
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate snapshots")
	}
	s.Import(snaps)
	return nil
}

// Save writes the snapshot to the database, then updates the cache.
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
	if _, err := s.db.ExecContext(ctx, `INSERT INTO session_snapshots(name,payload) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET payload=excluded.payload`, snapshot.Name, data); err != nil {
		return errors.Wrapf(err, "upsert %s", snapshot.Name)
	}
	return s.Store.Save(ctx, snapshot)
}

// Delete removes the snapshot from the database and the cache.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Store.Load(ctx, name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE name = ?`, name); err != nil {
		return errors.Wrapf(err, "delete %s", name)
	}
	return s.Store.Delete(ctx, name)
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
