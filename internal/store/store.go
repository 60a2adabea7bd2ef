// Package store provides embedded persistence for funnels, resources, chat
// sessions, and analytics rows on top of BadgerDB.
//
// Records are stored as JSON values under tenant-scoped keys
// (<kind>:<tenant>:<id>), so every list operation is a single prefix scan
// and cross-tenant reads are impossible by construction. The in-memory mode
// exists for tests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/pkg/logger"
)

// ErrNotFound is returned when a record does not exist for the tenant.
var ErrNotFound = errors.New("record not found")

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory disables disk persistence. Used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites a
	// value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// gcRatio returns the discard ratio to pass to RunValueLogGC, falling back
// to the production default when unset. Badger rejects a zero ratio outright.
func (c Config) gcRatio() float64 {
	if c.GCDiscardRatio > 0 {
		return c.GCDiscardRatio
	}
	return DefaultConfig().GCDiscardRatio
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// Store is the embedded database. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *logger.Logger

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the store at the configured path, creating the directory if
// needed, and starts the GC runner when an interval is configured.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if log != nil {
		opts = opts.WithLogger(&badgerLogger{logger: log})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{
		db:     db,
		logger: log,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.gcRatio())
	}

	return s, nil
}

// OpenInMemory opens an in-memory store for tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig(), nil)
}

// Close stops the GC runner and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

// Ping verifies the database accepts transactions. Used by readiness checks.
func (s *Store) Ping() error {
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// runGC periodically rewrites value log files once enough of their data is
// garbage. ErrNoRewrite means there was nothing to collect.
func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("store value log GC failed", zap.Error(err))
			}
		}
	}
}

// badgerLogger adapts the zap logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// key builds a tenant-scoped record key.
func key(kind, tenantID, id string) []byte {
	return []byte(kind + ":" + tenantID + ":" + id)
}

// keyPrefix builds the scan prefix for all records of a kind and tenant.
func keyPrefix(kind, tenantID string) []byte {
	return []byte(kind + ":" + tenantID + ":")
}

// putJSON writes one record.
func (s *Store) putJSON(ctx context.Context, k []byte, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, data)
	})
}

// getJSON reads one record into v. Returns ErrNotFound for missing keys.
func (s *Store) getJSON(ctx context.Context, k []byte, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// deleteKey removes one record. Deleting a missing key is not an error;
// callers that need existence semantics read first.
func (s *Store) deleteKey(ctx context.Context, k []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// scanJSON hands every raw value under a prefix to fn. Callers decode into
// their own record type.
func (s *Store) scanJSON(ctx context.Context, prefix []byte, fn func(val []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(func(val []byte) error {
				return fn(val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// checkDeleteJSON reads the record into v, runs fn as a precondition, and
// deletes the key in the same transaction. Returning an error from fn aborts
// without deleting, so nothing can slip in between the check and the delete.
func (s *Store) checkDeleteJSON(ctx context.Context, k []byte, v any, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		}); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// updateJSON performs an atomic read-modify-write of one record inside a
// single transaction. fn sees the decoded record and may mutate it; returning
// an error aborts without writing. This is what makes generation single-flight
// safe across concurrent requests.
func (s *Store) updateJSON(ctx context.Context, k []byte, v any, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		}); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return txn.Set(k, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}
