package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	bolt "go.etcd.io/bbolt"
	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

const dbFileName = "lectio.db"

// Store implements domain.Cache using BoltDB.
//
// The database is opened lazily by Init. If it cannot be opened the store is
// degraded: reads miss and writes are dropped, so callers always fall through to
// the upstream tiers.
type Store struct {
	dir    string // empty = memory only (temporary file removed on Close)
	logger *slog.Logger

	openOnce sync.Once
	openErr  error
	db       *bolt.DB
	tempDir  string

	mu  sync.RWMutex
	hot map[string][]byte // knowledge id -> encoded entry, promoted on access
}

// New creates a store rooted at baseDir, namespaced by the dataset it caches so
// switching datasets never mixes content. The database is not opened until Init.
func New(baseDir, namespace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	dir := baseDir
	if baseDir != "" && namespace != "" {
		dir = filepath.Join(baseDir, hashNamespace(namespace))
	}
	return &Store{
		dir:    dir,
		logger: logger,
		hot:    make(map[string][]byte),
	}
}

func hashNamespace(namespace string) string {
	normalized := strings.TrimRight(strings.ToLower(namespace), "/")
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// Init opens the database and applies pending migrations. It is safe to call
// repeatedly and concurrently; every caller shares the first open.
func (s *Store) Init(ctx context.Context) error {
	s.openOnce.Do(func() {
		s.openErr = s.open(ctx)
		if s.openErr != nil {
			s.logger.Warn("local store unavailable, caching disabled", "error", s.openErr, "dir", s.dir)
		}
	})
	return s.openErr
}

func (s *Store) open(ctx context.Context) error {
	dir := s.dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "lectio-cache-*")
		if err != nil {
			return zerr.Wrap(err, domain.ErrStorageUnavailable.Error())
		}
		s.tempDir = tmp
		dir = tmp
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStorageUnavailable.Error()), "dir", dir)
	}

	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 && d < timeout {
			timeout = d
		}
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStorageUnavailable.Error()), "path", dbPath)
	}

	result, err := migrate(db)
	if err != nil {
		db.Close()
		return err
	}
	if result.Applied > 0 {
		s.logger.Info("migrated local store", "from", result.From, "to", result.To, "applied", result.Applied)
	}
	if result.From > CurrentSchemaVersion {
		s.logger.Warn("local store is newer than this build, skipping migrations",
			"stored", result.From, "current", CurrentSchemaVersion)
	}

	s.db = db
	return nil
}

// handle returns the open database, or nil when degraded.
func (s *Store) handle(ctx context.Context) *bolt.DB {
	if err := s.Init(ctx); err != nil {
		return nil
	}
	return s.db
}

// Available reports whether the store opened successfully.
func (s *Store) Available(ctx context.Context) bool {
	return s.handle(ctx) != nil
}

// SchemaVersion returns the stored schema version, 0 when degraded.
func (s *Store) SchemaVersion(ctx context.Context) int {
	db := s.handle(ctx)
	if db == nil {
		return 0
	}
	var version int
	db.View(func(tx *bolt.Tx) error {
		version = readVersion(tx)
		return nil
	})
	return version
}

func (s *Store) Close() error {
	// Close must not open a database that was never used.
	s.openOnce.Do(func() { s.openErr = domain.ErrStorageUnavailable })

	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	return err
}

// === Generic helpers ===

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreEncode.Error())
	}
	return data, nil
}

func (s *Store) hotGet(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.hot[id]
	return data, ok
}

func (s *Store) hotSet(id string, data []byte) {
	s.mu.Lock()
	s.hot[id] = data
	s.mu.Unlock()
}

func (s *Store) hotDelete(ids ...string) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.hot, id)
	}
	s.mu.Unlock()
}

func (s *Store) hotReset() {
	s.mu.Lock()
	s.hot = make(map[string][]byte)
	s.mu.Unlock()
}
