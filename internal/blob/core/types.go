// Package core defines the artifact store abstraction shared by the blob
// backends. Artifacts are render exports and session archives addressed by
// slash-separated keys.
package core

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"skylink/pkg/errors"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// Content types written by the exporter.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// Overwrite replaces an existing artifact instead of failing.
	Overwrite bool
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method string        // only GET is supported
	Expiry time.Duration // default 15m
}

// Info describes a stored artifact.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the artifact store used by the exporter and the CLI.
type Store interface {
	// Put writes r under key. It fails with ErrExists unless opts.Overwrite.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns metadata and content; ErrNotExist when missing.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns artifacts under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL may return ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	Driver() Driver
}

var (
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("blob: unsupported operation")
	// ErrExists is returned by Put when the key is taken.
	ErrExists = errors.New("blob: already exists")
	// ErrNotExist is returned when a key is missing.
	ErrNotExist = errors.New("blob: not found")
	// ErrInvalidKey is returned for empty, absolute, or escaping keys.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// CleanKey validates key and returns its normalised form.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.Wrap(ErrInvalidKey, "empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", errors.Wrapf(ErrInvalidKey, "absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", errors.Wrapf(ErrInvalidKey, "key %q escapes its root", key)
		}
	}
	return path.Clean(key), nil
}

// Key joins artifact key segments, dropping empty ones.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// CloneMetadata copies user metadata.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
