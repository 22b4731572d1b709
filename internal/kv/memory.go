// ABOUTME: In-memory Store implementation for tests and throwaway deployments
// ABOUTME: Mirrors the consistency guarantees of the real backends with a single mutex

package kv

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
)

var errClosed = errors.New("store closed")

// MemStore is an in-memory Store. All operations are linearizable.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(op, err)
	}
	if m.closed {
		return Unavailable(op, errClosed)
	}
	return nil
}

// Get returns a copy of the value at key.
func (m *MemStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(ctx, "get"); err != nil {
		return nil, false, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Put stores a copy of value.
func (m *MemStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, "put"); err != nil {
		return err
	}
	m.data[key] = bytes.Clone(value)
	return nil
}

// CompareAndSwap writes value if the current value matches expected.
func (m *MemStore) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, "compare-and-swap"); err != nil {
		return false, err
	}
	current, ok := m.data[key]
	if expected == nil {
		if ok {
			return false, nil
		}
	} else if !ok || !bytes.Equal(current, expected) {
		return false, nil
	}
	m.data[key] = bytes.Clone(value)
	return true, nil
}

// CompareAndDelete removes key if the current value matches expected.
func (m *MemStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, "compare-and-delete"); err != nil {
		return false, err
	}
	current, ok := m.data[key]
	if !ok || !bytes.Equal(current, expected) {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

// Delete removes key.
func (m *MemStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, "delete"); err != nil {
		return false, err
	}
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

// Scan yields a snapshot of the matching entries taken when iteration starts.
func (m *MemStore) Scan(ctx context.Context, prefix string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		m.mu.RLock()
		if err := m.check(ctx, "scan"); err != nil {
			m.mu.RUnlock()
			yield(Entry{}, err)
			return
		}
		var entries []Entry
		for k, v := range m.data {
			if strings.HasPrefix(k, prefix) {
				entries = append(entries, Entry{Key: k, Value: bytes.Clone(v)})
			}
		}
		m.mu.RUnlock()

		slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Close marks the store closed; later calls fail with ErrUnavailable.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
