package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend persists raw records by digest. Writes to a digest must replace the
// previous record atomically.
type Backend interface {
	Load(ctx context.Context, digest string) ([]byte, error)
	Save(ctx context.Context, e Entry) error
	Stats(ctx context.Context, now time.Time) (Stats, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded reads.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps and expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Store is a TTL-bounded key/value cache for JSON payloads. Reads never fail:
// missing, corrupt and expired records are all reported as a miss.
type Store struct {
	backend Backend
	logger  *slog.Logger
	clock   func() time.Time
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a Store backed by the SQLite database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	backend, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	return New(backend, opts...), nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Get returns the payload stored under key, or false on a miss.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	digest := Digest(key)
	raw, err := s.backend.Load(ctx, digest)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "cache read failed", "digest", digest, "error", err)
		}
		return nil, false
	}

	data, storedAt, legacy, err := decodeRecord(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "cache record unreadable", "digest", digest, "error", err)
		return nil, false
	}
	if !legacy && expired(storedAt, s.clock()) {
		return nil, false
	}
	return data, true
}

// Put stores payload under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, payload any) error {
	now := s.clock()
	rec, err := encodeRecord(now, payload)
	if err != nil {
		return err
	}
	return s.backend.Save(ctx, Entry{
		Digest:   Digest(key),
		Key:      key,
		StoredAt: now,
		Record:   rec,
	})
}

// Stats reports entry counts as of now.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.backend.Stats(ctx, s.clock())
}

// Prune deletes timestamped entries that have outlived the TTL. Legacy
// entries are kept.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	return s.backend.Prune(ctx, s.clock().Add(-TTL))
}

// Import loads a directory of <digest>.json files written by the legacy
// file cache. Files that are not recognizable records are skipped.
func (s *Store) Import(ctx context.Context, dir string) (imported, skipped int, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, 0, fmt.Errorf("listing %s: %w", dir, err)
	}

	for _, path := range files {
		digest := strings.TrimSuffix(filepath.Base(path), ".json")
		if !isDigest(digest) {
			skipped++
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return imported, skipped, fmt.Errorf("reading %s: %w", path, err)
		}
		_, storedAt, _, err := decodeRecord(raw)
		if err != nil {
			s.logger.DebugContext(ctx, "skipping cache file", "path", path, "error", err)
			skipped++
			continue
		}
		if err := s.backend.Save(ctx, Entry{Digest: digest, StoredAt: storedAt, Record: raw}); err != nil {
			return imported, skipped, fmt.Errorf("importing %s: %w", path, err)
		}
		imported++
	}
	return imported, skipped, nil
}

func isDigest(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Load decodes the payload under key into T. A payload that does not decode
// is a miss.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var v T
	raw, ok := s.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.WarnContext(ctx, "cache payload type mismatch", "key", key, "error", err)
		var zero T
		return zero, false
	}
	return v, true
}
