// ABOUTME: Tests for the compare-and-swap ID allocator
// ABOUTME: Covers initialization, monotonicity, parallel uniqueness, corruption, and contention

package allocator

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/2389/vpn-gateway/internal/kv"
)

func noDelay() backoff.BackOff { return &backoff.ZeroBackOff{} }

// losingStore makes every compare-and-swap on the counter fail after New.
type losingStore struct {
	kv.Store
	lose bool
}

func (s *losingStore) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (bool, error) {
	if s.lose {
		return false, nil
	}
	return s.Store.CompareAndSwap(ctx, key, expected, value)
}

// failingGetStore fails every Get with a store error.
type failingGetStore struct {
	kv.Store
	gets int
}

func (s *failingGetStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.gets++
	return nil, false, kv.Unavailable("get", errors.New("connection refused"))
}

func TestNew_InitializesCounterOnce(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()

	_, err := New(ctx, store)
	require.NoError(t, err)
	v, found, err := store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0", string(v))

	require.NoError(t, store.Put(ctx, DefaultKey, []byte("41")))
	_, err = New(ctx, store)
	require.NoError(t, err)
	v, _, err = store.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "41", string(v), "an existing counter must not be reset")
}

func TestNextID_Sequential(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, kv.NewMemStore())
	require.NoError(t, err)

	for want := int64(1); want <= 5; want++ {
		got, err := a.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	cur, err := a.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cur)
}

func TestNextID_MissingCounterStartsAtOne(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()
	a, err := New(ctx, store)
	require.NoError(t, err)

	_, err = store.Delete(ctx, DefaultKey)
	require.NoError(t, err)

	id, err := a.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestNextID_CustomKey(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()
	a, err := New(ctx, store, WithKey("ids/configs"))
	require.NoError(t, err)

	_, err = a.NextID(ctx)
	require.NoError(t, err)

	v, found, err := store.Get(ctx, "ids/configs")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(v))
}

func TestNextID_ParallelCallersGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()

	const workers = 50
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate allocators model separate gateway processes.
			a, err := New(ctx, store, WithBackOff(noDelay), WithMaxAttempts(10*workers))
			if !assert.NoError(t, err) {
				return
			}
			id, err := a.NextID(ctx)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	slices.Sort(ids)
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}
}

func TestNextID_CorruptCounter(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{"abc", "", "1.5", "-3", " 7"} {
		t.Run(raw, func(t *testing.T) {
			store := kv.NewMemStore()
			a, err := New(ctx, store)
			require.NoError(t, err)
			require.NoError(t, store.Put(ctx, DefaultKey, []byte(raw)))

			_, err = a.NextID(ctx)
			assert.ErrorIs(t, err, kv.ErrCorrupt)

			_, err = a.Current(ctx)
			assert.ErrorIs(t, err, kv.ErrCorrupt)
		})
	}
}

func TestNextID_Contention(t *testing.T) {
	ctx := context.Background()
	store := &losingStore{Store: kv.NewMemStore()}
	a, err := New(ctx, store, WithBackOff(noDelay), WithMaxAttempts(5))
	require.NoError(t, err)

	store.lose = true
	_, err = a.NextID(ctx)
	assert.ErrorIs(t, err, ErrContention)
	assert.ErrorIs(t, err, kv.ErrUnavailable)
}

func TestNextID_StoreErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemStore()
	a, err := New(ctx, mem, WithBackOff(noDelay))
	require.NoError(t, err)

	store := &failingGetStore{Store: mem}
	a.store = store

	_, err = a.NextID(ctx)
	assert.ErrorIs(t, err, kv.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrContention)
	assert.Equal(t, 1, store.gets)
}

func TestNextID_CanceledContext(t *testing.T) {
	a, err := New(context.Background(), kv.NewMemStore())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.NextID(ctx)
	assert.ErrorIs(t, err, kv.ErrUnavailable)
}

func TestNew_UnavailableStore(t *testing.T) {
	store := kv.NewMemStore()
	require.NoError(t, store.Close())

	_, err := New(context.Background(), store)
	assert.ErrorIs(t, err, kv.ErrUnavailable)
}

func TestNextID_Exhausted(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemStore()
	a, err := New(ctx, store)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, DefaultKey, []byte("9223372036854775807")))

	_, err = a.NextID(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestNextID_StrictlyIncreasingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := kv.NewMemStore()
		start := rapid.Int64Range(0, 1<<40).Draw(t, "start")
		require.NoError(t, store.Put(ctx, DefaultKey, []byte(formatInt(start))))

		a, err := New(ctx, store)
		require.NoError(t, err)

		n := rapid.IntRange(1, 30).Draw(t, "calls")
		prev := start
		for range n {
			id, err := a.NextID(ctx)
			require.NoError(t, err)
			if id != prev+1 {
				t.Fatalf("got id %d after %d", id, prev)
			}
			prev = id
		}
	})
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
