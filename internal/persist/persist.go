// Package persist keeps cache snapshots in a BadgerDB so a client can be
// hydrated across restarts.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/hanpama/graphstore/internal/cache"
)

const recordPrefix = "record/"

// Config selects where the store lives. Path is required unless InMemory is
// set.
type Config struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// Store saves and loads cache snapshots.
type Store struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("persist: path is required for persistent store")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("persist: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persist: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Save replaces the stored snapshot with s.
func (s *Store) Save(snap cache.Snapshot) error {
	if err := s.db.DropPrefix([]byte(recordPrefix)); err != nil {
		return fmt.Errorf("persist: drop records: %w", err)
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for id, fields := range snap {
		raw, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("persist: encode %s: %w", id, err)
		}
		if err := wb.Set([]byte(recordPrefix+id), raw); err != nil {
			return fmt.Errorf("persist: write %s: %w", id, err)
		}
	}
	return wb.Flush()
}

// Load reads the stored snapshot. An empty store yields an empty snapshot.
func (s *Store) Load() (cache.Snapshot, error) {
	out := cache.Snapshot{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), recordPrefix)
			err := item.Value(func(val []byte) error {
				var fields map[string]any
				if err := json.Unmarshal(val, &fields); err != nil {
					return fmt.Errorf("persist: decode %s: %w", id, err)
				}
				out[id] = fields
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveCache snapshots c into the store.
func (s *Store) SaveCache(c *cache.Cache) error {
	return s.Save(c.Snapshot())
}

// Restore hydrates c from the stored snapshot.
func (s *Store) Restore(c *cache.Cache) error {
	snap, err := s.Load()
	if err != nil {
		return err
	}
	return c.Hydrate(snap)
}

func (s *Store) Close() error {
	return s.db.Close()
}
