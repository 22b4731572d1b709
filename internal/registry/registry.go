// ABOUTME: Configuration registry with CRUD over VPN configs and create/read over users
// ABOUTME: Stateless service layered on kv.Store; concurrent writers are serialized with compare-and-swap

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/2389/vpn-gateway/internal/allocator"
	"github.com/2389/vpn-gateway/internal/kv"
	"github.com/2389/vpn-gateway/internal/metrics"
)

// Errors callers branch on. The store errors are re-exported so that the
// HTTP layer never imports kv directly.
var (
	ErrUnavailable   = kv.ErrUnavailable
	ErrCorrupt       = kv.ErrCorrupt
	ErrAlreadyExists = kv.ErrAlreadyExists
	ErrContention    = allocator.ErrContention

	ErrInvalidUsername = errors.New("invalid username")
)

var errLostRace = errors.New("lost compare-and-swap race")

// Registry is safe for concurrent use and may be shared by every handler.
type Registry struct {
	store       kv.Store
	alloc       *allocator.Allocator
	logger      *slog.Logger
	metrics     metrics.Recorder
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics sets the recorder for operation outcomes.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithMaxAttempts bounds compare-and-swap retries for update and delete.
func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = uint(n)
		}
	}
}

// WithBackOff overrides the delay policy between lost races.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(r *Registry) { r.newBackOff = fn }
}

// New creates a Registry over store, taking IDs from alloc.
func New(store kv.Store, alloc *allocator.Allocator, opts ...Option) *Registry {
	r := &Registry{
		store:       store,
		alloc:       alloc,
		logger:      slog.Default(),
		metrics:     metrics.Nop{},
		maxAttempts: allocator.DefaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Millisecond
			b.MaxInterval = 100 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Ping performs one store round trip. Used by readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	_, _, err := r.store.Get(ctx, allocator.DefaultKey)
	return err
}

// track starts timing op. Call the result with a pointer to the named error
// return so the outcome is read after the operation finishes.
func (r *Registry) track(op string) func(*error) {
	start := time.Now()
	return func(err *error) {
		r.metrics.ObserveOperation(op, resultOf(*err), time.Since(start))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, ErrAlreadyExists):
		return "exists"
	case errors.Is(err, ErrInvalidUsername):
		return "invalid"
	default:
		return "error"
	}
}

// retryCAS runs attempt until it stops reporting a lost race. Any other error
// from attempt is returned without retrying.
func (r *Registry) retryCAS(ctx context.Context, op string, attempt func() (bool, error)) (bool, error) {
	tries := 0
	ok, err := backoff.Retry(ctx, func() (bool, error) {
		tries++
		ok, err := attempt()
		if err != nil && !errors.Is(err, errLostRace) {
			return false, backoff.Permanent(err)
		}
		return ok, err
	}, backoff.WithBackOff(r.newBackOff()), backoff.WithMaxTries(r.maxAttempts))

	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, errLostRace):
		r.logger.Warn("write contention", "op", op, "attempts", tries)
		return false, fmt.Errorf("%s after %d attempts: %w: %w", op, tries, ErrUnavailable, ErrContention)
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrCorrupt):
		return false, err
	default:
		return false, kv.Unavailable(op, err)
	}
}
