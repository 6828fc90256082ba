// Package kvstore wraps BadgerDB as the persistence layer for the
// vault's collections and chunk store. It checks free disk space
// before opening and exposes plain key/value and prefix-scan
// primitives; document encoding is the caller's concern.
package kvstore

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound is returned by Read for missing keys.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// StoreConfig configures a Store. Only Paths[0] is used at the moment.
type StoreConfig struct {
	Paths         []string
	MinimumFreeGB int
	Logger        *logrus.Logger
}

// Store is a thin, counted wrapper around one Badger instance.
type Store struct {
	config       StoreConfig
	badgerDB     *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

// NewStore validates the config, checks free space and opens Badger.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	if err := config.check(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := displayDiskUsage(log, config.Paths); err != nil {
		log.Warnf("could not report disk usage: %v", err)
	}

	return &Store{
		config:   config,
		badgerDB: db,
		log:      log,
	}, nil
}

// Write stores content under key.
func (k *Store) Write(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	return k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
}

// Read returns the value stored under key, or ErrKeyNotFound.
func (k *Store) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)

	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Has reports whether key exists.
func (k *Store) Has(key []byte) (bool, error) {
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update runs fn inside one read-write transaction. Used where a
// check-then-set must be atomic, e.g. the anchor-once ledger write.
func (k *Store) Update(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&k.writeCounter, 1)
	return k.badgerDB.Update(fn)
}

// ScanPrefix calls fn for every key/value under prefix, in key order.
// Returning a non-nil error from fn stops the scan.
func (k *Store) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	atomic.AddUint64(&k.readCounter, 1)

	return k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunGC runs one Badger value-log GC pass. badger.ErrNoRewrite means
// nothing needed collecting and is not an error for callers.
func (k *Store) RunGC() error {
	err := k.badgerDB.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// StartGCLoop runs RunGC every interval until stop is closed.
func (k *Store) StartGCLoop(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := k.RunGC(); err != nil {
					k.log.Warnf("value log GC: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Close flushes and closes the underlying Badger instance.
func (k *Store) Close() error {
	return k.badgerDB.Close()
}
