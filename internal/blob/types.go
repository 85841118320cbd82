// Package blob is the entry point for artifact storage. Callers depend on
// Store and open a backend from configuration; only this package imports the
// infra implementations.
package blob

import (
	"skylink/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes a stored artifact.
	Info = core.Info
	// Store is implemented by every backend.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory

	ContentTypeJSON = core.ContentTypeJSON
	ContentTypeCSV  = core.ContentTypeCSV
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotExist    = core.ErrNotExist
	ErrInvalidKey  = core.ErrInvalidKey
)

// Key joins artifact key segments.
func Key(parts ...string) string { return core.Key(parts...) }
