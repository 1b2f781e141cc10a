// Package catalog caches series member summaries in a Badger database so a large
// series can be sorted and validated without reading every footer again.
//
// Entries are keyed by absolute path and are only served while the file's size
// and modification time still match the ones recorded with the summary.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/series"
)

const keyPrefix = "member/"

// Summary is the cached description of one closed series member.
type Summary struct {
	Path    string       `yaml:"path"`
	Size    int64        `yaml:"size"`
	ModTime int64        `yaml:"mod_time"` // unix nanoseconds
	File    string       `yaml:"file"`     // "records" or "channels"
	Kind    string       `yaml:"kind"`
	Grid    grid.Grid    `yaml:"grid"`
	Shape   series.Shape `yaml:"shape"`
	History []string     `yaml:"history"`
	Count   uint64       `yaml:"count"` // records or channels
	Names   []string     `yaml:"names,omitempty"`
}

// Member returns the validator view of the summary.
func (s Summary) Member() series.Member {
	return series.Member{
		Name:    s.Path,
		Grid:    s.Grid,
		Shape:   s.Shape,
		Kind:    format.ParseDataKind(s.Kind),
		History: series.History(s.History),
	}
}

// Catalog is a persistent summary cache. It is safe for concurrent use.
type Catalog struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens or creates a catalog in dir. An empty dir keeps the catalog in
// memory.
func Open(dir string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	return &Catalog{db: db, logger: logger}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func key(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	return []byte(keyPrefix + abs), nil
}

// Lookup returns the summary of path if one was stored for the file's current
// size and modification time.
func (c *Catalog) Lookup(path string) (Summary, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Summary{}, false, fmt.Errorf("stat %s: %w", path, err)
	}
	k, err := key(path)
	if err != nil {
		return Summary{}, false, err
	}

	var raw []byte
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			raw = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("catalog lookup %s: %w", path, err)
	}

	var s Summary
	if err := yaml.Unmarshal(raw, &s); err != nil {
		c.logger.Warn("discarding unreadable catalog entry", zap.String("path", path), zap.Error(err))
		return Summary{}, false, nil
	}
	if s.Size != info.Size() || s.ModTime != info.ModTime().UnixNano() {
		c.logger.Debug("catalog entry is stale", zap.String("path", path))
		return Summary{}, false, nil
	}

	return s, true, nil
}

// Put stores s, stamping it with the file's current size and modification time.
func (c *Catalog) Put(s Summary) error {
	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.Path, err)
	}
	s.Size = info.Size()
	s.ModTime = info.ModTime().UnixNano()

	k, err := key(s.Path)
	if err != nil {
		return err
	}
	val, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, val)
	})
}

// Forget removes the summary of path.
func (c *Catalog) Forget(path string) error {
	k, err := key(path)
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// Len returns the number of stored summaries.
func (c *Catalog) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}

		return nil
	})

	return n, err
}
