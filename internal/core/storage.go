package core

import (
	"context"

	"skylink/internal/config"
	"skylink/internal/infra/persistence/memory"
	"skylink/internal/infra/persistence/postgres"
	"skylink/internal/infra/persistence/sqlite"
	"skylink/internal/logger"
	"skylink/pkg/domain"
	"skylink/pkg/errors"
)

// StorageDriver identifies a concrete snapshot store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// SnapshotStore persists named session snapshots.
type SnapshotStore = domain.SnapshotStore

// OpenSnapshotStore selects a backend from configuration. An empty driver
// defaults to sqlite.
//
//	storage.driver: memory|sqlite|postgres (SKYLINK_STORAGE_DRIVER)
//	storage.sqlite_path: sqlite file (SKYLINK_STORAGE_SQLITE_PATH)
//	storage.postgres_dsn: DSN when driver=postgres (SKYLINK_STORAGE_POSTGRES_DSN)
func OpenSnapshotStore(ctx context.Context, cfg config.StorageConfig) (SnapshotStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, errors.Newf("unknown storage driver %s", cfg.Driver)
	}
}

// SaveSnapshot captures the session and stores it under name, or under the
// session name when name is empty.
func (s *Session) SaveSnapshot(ctx context.Context, store SnapshotStore, name string) (domain.SnapshotInfo, error) {
	snap := s.Snapshot()
	if name != "" {
		snap.Name = name
	}
	if err := store.Save(ctx, snap); err != nil {
		return domain.SnapshotInfo{}, errors.Wrapf(err, "save snapshot %s", snap.Name)
	}
	s.log.Info("snapshot saved", logger.FieldSession, snap.Name, logger.FieldCount, len(snap.Datasets))
	return snap.Info(), nil
}

// LoadSnapshot restores the named snapshot into this (empty) session.
func (s *Session) LoadSnapshot(ctx context.Context, store SnapshotStore, name string) error {
	snap, err := store.Load(ctx, name)
	if err != nil {
		return err
	}
	return s.Restore(ctx, snap)
}
