package blob

import (
	"context"

	"skylink/internal/config"
	"skylink/internal/infra/blob/fs"
	"skylink/internal/infra/blob/memory"
	"skylink/internal/infra/blob/s3"
	"skylink/pkg/errors"
)

// Open selects a backend from configuration. An empty driver defaults to fs.
//
//	blob.driver: fs|s3|memory (SKYLINK_BLOB_DRIVER)
//	blob.fs_root: directory when driver=fs (SKYLINK_BLOB_FS_ROOT)
//	blob.s3.bucket, blob.s3.region, blob.s3.endpoint, blob.s3.path_style
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, errors.Newf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }

// NewS3 returns a bucket-backed store.
func NewS3(ctx context.Context, cfg config.S3Config) (Store, error) {
	return s3.New(ctx, s3.Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
	})
}

// NewMockS3ForTests returns an S3 store backed by an in-process fake bucket.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }
