// Package disk provides a tus.Store that persists transfer session URLs on
// the local filesystem, so uploads can resume across process restarts.
package disk

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meigma/portal/hasher"
	"github.com/meigma/portal/tus"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	defaultFilePerm       = 0o600
)

// Store implements tus.Store using the local filesystem.
// Entries live in files named by the hash of their fingerprint, optionally
// sharded into subdirectories by hash prefix. Writes are atomic. The store
// is safe for concurrent use, including by several processes.
type Store struct {
	dir            string        // root directory for entries
	shardPrefixLen int           // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode   // permissions for created directories
	maxAge         time.Duration // entries older than this are ignored (0 = never)
	now            func() time.Time
}

var _ tus.Store = (*Store)(nil)

// Option configures a disk store.
type Option func(*Store)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(s *Store) {
		s.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions used for store directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithMaxAge makes Get ignore and remove entries written longer than d ago.
// Portals expire abandoned sessions, so very old URLs are not worth a
// round trip. Use 0 to keep entries forever. Defaults to 0.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		s.maxAge = d
	}
}

// New creates a disk-backed store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store dir is empty")
	}
	s := &Store{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if s.maxAge < 0 {
		return nil, errors.New("max age must be >= 0")
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the URL stored under fingerprint.
func (s *Store) Get(fingerprint string) (string, bool) {
	path := s.path(fingerprint)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if s.maxAge > 0 && s.now().Sub(info.ModTime()) > s.maxAge {
		_ = os.Remove(path)
		return "", false
	}
	b, err := os.ReadFile(path) //nolint:gosec // path is derived from a hash, not user input
	if err != nil {
		return "", false
	}
	url := strings.TrimSpace(string(b))
	if url == "" {
		return "", false
	}
	return url, true
}

// Put stores url under fingerprint, replacing any previous entry.
func (s *Store) Put(fingerprint, url string) error {
	path := s.path(fingerprint)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "session-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(url + "\n"); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Delete removes the entry for fingerprint.
func (s *Store) Delete(fingerprint string) error {
	if err := os.Remove(s.path(fingerprint)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) path(fingerprint string) string {
	sum := hasher.SumBytes([]byte(fingerprint))
	hexHash := hex.EncodeToString(sum[:])
	if s.shardPrefixLen <= 0 {
		return filepath.Join(s.dir, hexHash)
	}
	prefixLen := min(s.shardPrefixLen, len(hexHash))
	return filepath.Join(s.dir, hexHash[:prefixLen], hexHash)
}
