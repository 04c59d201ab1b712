package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
)

const (
	entryPrefix = "entry:"
	memoryPath  = ":memory:"
)

type badgerRepository struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

// NewBadger opens the entry store at path. An empty path or ":memory:" keeps
// everything in memory.
func NewBadger(path string, metrics *metrics.Metrics) (Repository, error) {
	opts := badger.DefaultOptions(path)
	if path == "" || path == memoryPath {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &badgerRepository{db: db, metrics: metrics}, nil
}

func key(name string) []byte {
	return []byte(entryPrefix + name)
}

func (r *badgerRepository) FindByNames(ctx context.Context, names []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(names))
	err := r.db.View(func(txn *badger.Txn) error {
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			e, err := get(txn, name)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	r.metrics.IncStoreRequest("read", err == nil)
	if err != nil {
		return nil, fmt.Errorf("find entries: %w", err)
	}
	return entries, nil
}

func (r *badgerRepository) GetByName(ctx context.Context, name string) (Entry, error) {
	var e Entry
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = get(txn, name)
		return err
	})
	r.metrics.IncStoreRequest("read", err == nil || errors.Is(err, ErrNotFound))
	return e, err
}

func get(txn *badger.Txn, name string) (Entry, error) {
	var e Entry
	item, err := txn.Get(key(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err
}

func (r *badgerRepository) AddOrUpdate(ctx context.Context, e Entry) error {
	if e.Name == "" {
		return errors.New("entry name is required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		r.metrics.IncStoreRequest("update", false)
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e.Name), data)
	})
	r.metrics.IncStoreRequest("update", err == nil)
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.Name, err)
	}
	return nil
}

func (r *badgerRepository) List(ctx context.Context) ([]Entry, error) {
	entries := []Entry{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	r.metrics.IncStoreRequest("read", err == nil)
	return entries, err
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
