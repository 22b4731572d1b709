// ABOUTME: Store interface and error taxonomy for the key-value adapter
// ABOUTME: Backends translate their own failures into ErrUnavailable so callers never see driver errors

package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"
)

// ErrUnavailable is returned when the backing store cannot serve a request:
// connectivity failures, timeouts, and operations on a closed store.
var ErrUnavailable = errors.New("store unavailable")

// ErrCorrupt is returned when stored bytes cannot be decoded into the expected shape.
var ErrCorrupt = errors.New("corrupt record")

// ErrAlreadyExists is returned when a create targets an occupied key.
var ErrAlreadyExists = errors.New("already exists")

// Entry is a single key/value pair produced by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the single point of contact with the key-value backend.
// Implementations are safe for concurrent use and hold no caches.
type Store interface {
	// Get returns the value at key. A missing key yields found=false and a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put writes value at key unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// CompareAndSwap writes value only if the current value equals expected.
	// A nil expected means the key must be absent.
	CompareAndSwap(ctx context.Context, key string, expected, value []byte) (swapped bool, err error)

	// CompareAndDelete removes key only if its current value equals expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (deleted bool, err error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (existed bool, err error)

	// Scan lazily yields every entry whose key starts with prefix, in key order.
	// On failure it yields a single non-nil error and stops.
	Scan(ctx context.Context, prefix string) iter.Seq2[Entry, error]

	Close() error
}

// Unavailable wraps a backend failure so that errors.Is(err, ErrUnavailable) holds.
// The backend error text is kept for logs but its type is not exposed.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// Corrupt reports that the value stored at key could not be decoded.
func Corrupt(key string, err error) error {
	return fmt.Errorf("%w at %q: %v", ErrCorrupt, key, err)
}

// withTimeout bounds a single store round trip. A zero timeout leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
// An empty result means the range is unbounded above.
func prefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}

// scanError yields a single error and stops.
func scanError(err error) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		yield(Entry{}, err)
	}
}
