// ABOUTME: bbolt implementation of the Store interface for single-node installs
// ABOUTME: Compare-and-swap runs inside one read-write transaction

package kv

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRegistry = []byte("registry")

// BoltStore implements Store on an embedded bbolt database.
type BoltStore struct {
	db       *bbolt.DB
	timeout  time.Duration
	pageSize int
	logger   *slog.Logger
}

// BoltOptions configures NewBoltStore.
type BoltOptions struct {
	// OpenTimeout bounds how long Open waits for the file lock.
	OpenTimeout time.Duration
	// RequestTimeout bounds every operation.
	RequestTimeout time.Duration
	// PageSize bounds how many entries one Scan transaction reads.
	PageSize int
}

// NewBoltStore opens or creates a bbolt database at path.
func NewBoltStore(path string, opts BoltOptions) (*BoltStore, error) {
	logger := slog.Default().With("component", "kv", "backend", "bolt")

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Second
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRegistry)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 256
	}

	logger.Info("bolt store initialized", "path", path)
	return &BoltStore{
		db:       db,
		timeout:  opts.RequestTimeout,
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// run executes fn in a transaction unless ctx is already done. bbolt calls are
// not interruptible, so the deadline is checked before and after the transaction.
func (s *BoltStore) run(ctx context.Context, op string, writable bool, fn func(b *bbolt.Bucket) error) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return Unavailable(op, err)
	}

	txFn := func(tx *bbolt.Tx) error {
		return fn(tx.Bucket(bucketRegistry))
	}
	var err error
	if writable {
		err = s.db.Update(txFn)
	} else {
		err = s.db.View(txFn)
	}
	if err != nil {
		return Unavailable(op, err)
	}
	if err := ctx.Err(); err != nil {
		return Unavailable(op, err)
	}
	return nil
}

// Get returns the value at key.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.run(ctx, "get", false, func(b *bbolt.Bucket) error {
		if v := b.Get([]byte(key)); v != nil {
			value = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// Put writes value at key.
func (s *BoltStore) Put(ctx context.Context, key string, value []byte) error {
	return s.run(ctx, "put", true, func(b *bbolt.Bucket) error {
		return b.Put([]byte(key), nonNil(value))
	})
}

// CompareAndSwap writes value if the current value matches expected.
func (s *BoltStore) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (bool, error) {
	var swapped bool
	err := s.run(ctx, "compare-and-swap", true, func(b *bbolt.Bucket) error {
		current := b.Get([]byte(key))
		if expected == nil {
			if current != nil {
				return nil
			}
		} else if current == nil || !bytes.Equal(current, expected) {
			return nil
		}
		swapped = true
		return b.Put([]byte(key), nonNil(value))
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// CompareAndDelete removes key if the current value matches expected.
func (s *BoltStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	var deleted bool
	err := s.run(ctx, "compare-and-delete", true, func(b *bbolt.Bucket) error {
		current := b.Get([]byte(key))
		if current == nil || !bytes.Equal(current, expected) {
			return nil
		}
		deleted = true
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Delete removes key.
func (s *BoltStore) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := s.run(ctx, "delete", true, func(b *bbolt.Bucket) error {
		if b.Get([]byte(key)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// Scan reads the prefix in pages, one read transaction per page, so no
// transaction is held open while the caller processes entries.
func (s *BoltStore) Scan(ctx context.Context, prefix string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		start := []byte(prefix)
		inclusive := true
		for {
			var page []Entry
			err := s.run(ctx, "scan", false, func(b *bbolt.Bucket) error {
				c := b.Cursor()
				k, v := c.Seek(start)
				if !inclusive && k != nil && bytes.Equal(k, start) {
					k, v = c.Next()
				}
				for ; k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
					page = append(page, Entry{Key: string(k), Value: bytes.Clone(v)})
					if len(page) == s.pageSize {
						break
					}
				}
				return nil
			})
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			start = []byte(page[len(page)-1].Key)
			inclusive = false
		}
	}
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// nonNil keeps empty values distinguishable from missing keys; bbolt returns
// nil for both a missing key and a key stored with a nil value.
func nonNil(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return v
}
