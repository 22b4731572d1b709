// ABOUTME: Identity allocator issuing strictly increasing configuration IDs
// ABOUTME: Advances a counter key with compare-and-swap so concurrent callers never share an ID

package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/2389/vpn-gateway/internal/kv"
)

// DefaultKey is the counter key relative to the store's prefix.
const DefaultKey = "counter"

// DefaultMaxAttempts bounds compare-and-swap attempts per NextID call.
const DefaultMaxAttempts = 64

// ErrContention is returned when every compare-and-swap attempt lost a race.
// It is always reported together with kv.ErrUnavailable.
var ErrContention = errors.New("counter contention")

// ErrExhausted is returned when the counter has reached math.MaxInt64.
var ErrExhausted = errors.New("counter exhausted")

// errLostRace signals a failed compare-and-swap to the retry loop.
var errLostRace = errors.New("lost compare-and-swap race")

// Allocator issues unique IDs from a counter key. It holds no counter state of
// its own, so any number of Allocators may share one store.
type Allocator struct {
	store       kv.Store
	key         string
	maxAttempts uint
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithKey overrides the counter key.
func WithKey(key string) Option {
	return func(a *Allocator) { a.key = key }
}

// WithMaxAttempts overrides how many compare-and-swap attempts NextID makes.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = uint(n)
		}
	}
}

// WithBackOff overrides the delay policy between lost races.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(a *Allocator) { a.newBackOff = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

// New creates an Allocator and initializes the counter to 0 if it is absent.
// The initialization is create-if-absent, so an existing counter is never reset.
func New(ctx context.Context, store kv.Store, opts ...Option) (*Allocator, error) {
	a := &Allocator{
		store:       store,
		key:         DefaultKey,
		maxAttempts: DefaultMaxAttempts,
		newBackOff:  defaultBackOff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "allocator")

	created, err := store.CompareAndSwap(ctx, a.key, nil, []byte("0"))
	if err != nil {
		return nil, fmt.Errorf("initializing counter: %w", err)
	}
	if created {
		a.logger.Info("counter initialized", "key", a.key)
	}
	return a, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	return b
}

// NextID returns the next unused ID. Each attempt reads the counter and
// swaps in current+1 only if nobody else advanced it in between; a lost race
// is retried after a short jittered delay. Store failures are not retried.
func (a *Allocator) NextID(ctx context.Context) (int64, error) {
	attempts := 0
	id, err := backoff.Retry(ctx, func() (int64, error) {
		attempts++
		return a.tryAdvance(ctx)
	},
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxTries(a.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			a.logger.Debug("counter race lost, retrying", "attempt", attempts, "wait", wait)
		}),
	)

	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, errLostRace):
		a.logger.Warn("counter contention", "attempts", attempts)
		return 0, fmt.Errorf("allocating id after %d attempts: %w: %w", attempts, kv.ErrUnavailable, ErrContention)
	case errors.Is(err, kv.ErrUnavailable), errors.Is(err, kv.ErrCorrupt), errors.Is(err, ErrExhausted):
		return 0, fmt.Errorf("allocating id: %w", err)
	default:
		// Context canceled or deadline hit while waiting between attempts.
		return 0, fmt.Errorf("allocating id: %w", kv.Unavailable("wait", err))
	}
}

func (a *Allocator) tryAdvance(ctx context.Context) (int64, error) {
	raw, found, err := a.store.Get(ctx, a.key)
	if err != nil {
		return 0, backoff.Permanent(err)
	}

	// A missing counter means nothing was ever allocated; claim 1 with a
	// create-if-absent so a racing initializer cannot be overwritten.
	var current int64
	var expected []byte
	if found {
		current, err = parseCounter(raw)
		if err != nil {
			return 0, backoff.Permanent(kv.Corrupt(a.key, err))
		}
		expected = raw
	}
	if current == math.MaxInt64 {
		return 0, backoff.Permanent(ErrExhausted)
	}

	next := current + 1
	swapped, err := a.store.CompareAndSwap(ctx, a.key, expected, []byte(strconv.FormatInt(next, 10)))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	if !swapped {
		return 0, errLostRace
	}
	return next, nil
}

// Current returns the highest ID issued so far (0 if none).
func (a *Allocator) Current(ctx context.Context) (int64, error) {
	raw, found, err := a.store.Get(ctx, a.key)
	if err != nil {
		return 0, fmt.Errorf("reading counter: %w", err)
	}
	if !found {
		return 0, nil
	}
	n, err := parseCounter(raw)
	if err != nil {
		return 0, kv.Corrupt(a.key, err)
	}
	return n, nil
}

func parseCounter(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative counter %d", n)
	}
	return n, nil
}
