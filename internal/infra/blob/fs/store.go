// Package fs stores artifacts as files under a root directory with a JSON
// sidecar per artifact carrying its content type and metadata.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"skylink/internal/blob/core"
	"skylink/pkg/errors"
)

// DefaultRoot is used when no root is configured.
const DefaultRoot = "./artifacts"

const sidecarSuffix = ".meta"

// Store implements core.Store on a local directory. Writers of the same key
// are not coordinated beyond the atomic rename.
type Store struct {
	root string
}

// New returns a store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create blob root %s", root)
	}
	return &Store{root: root}, nil
}

// Root returns the absolute store directory.
func (s *Store) Root() string { return s.root }

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

func (s *Store) paths(key string) (clean, data, meta string, err error) {
	clean, err = core.CleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	if strings.HasSuffix(clean, sidecarSuffix) {
		return "", "", "", errors.Wrapf(core.ErrInvalidKey, "key %q uses the reserved %s suffix", key, sidecarSuffix)
	}
	data = filepath.Join(s.root, filepath.FromSlash(clean))
	return clean, data, data + sidecarSuffix, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (s *Store) info(key string, sc sidecar) core.Info {
	return core.Info{
		Key:          key,
		Size:         sc.Size,
		ContentType:  sc.ContentType,
		ETag:         sc.ETag,
		Metadata:     core.CloneMetadata(sc.Metadata),
		LastModified: sc.UpdatedAt,
		URL:          s.localURL(key),
	}
}

// Put streams r to a temporary file and renames it into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil && !opts.Overwrite {
		return core.Info{}, errors.Wrapf(core.ErrExists, "%s", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return core.Info{}, errors.Wrapf(err, "create parent of %s", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return core.Info{}, errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		_ = tmp.Close()
		return core.Info{}, errors.Wrapf(err, "write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, errors.Wrapf(err, "close %s", key)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return core.Info{}, errors.Wrapf(err, "publish %s", key)
	}
	sc := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := writeSidecar(metaPath, sc); err != nil {
		return core.Info{}, err
	}
	return s.info(key, sc), nil
}

// Get opens the artifact file.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	key, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return core.Info{}, nil, notExist(err, key)
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, notExist(err, key)
	}
	return s.info(key, sc), file, nil
}

// Head reads the sidecar only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	key, _, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		return core.Info{}, notExist(err, key)
	}
	return s.info(key, sc), nil
}

// Delete removes the artifact and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "delete %s", key)
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root for sidecars whose key has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, sidecarSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		sc, err := readSidecar(p)
		if err != nil {
			return err
		}
		infos = append(infos, s.info(key, sc))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns the unauthenticated local URL.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	key, err := core.CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.localURL(key), nil
}

func (s *Store) localURL(key string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.root, key))}).String()
}

func notExist(err error, key string) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return errors.Wrapf(core.ErrNotExist, "%s", key)
	}
	return errors.Wrapf(err, "read %s", key)
}

func writeSidecar(p string, sc sidecar) error {
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode sidecar")
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return errors.Wrapf(err, "write sidecar %s", p)
	}
	return nil
}

func readSidecar(p string) (sidecar, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return sidecar{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		return sidecar{}, errors.Wrapf(err, "decode sidecar %s", p)
	}
	return sc, nil
}
