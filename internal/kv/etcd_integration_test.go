// ABOUTME: Integration tests for the etcd backend against an embedded etcd server
// ABOUTME: Exercises transaction-based compare-and-swap and revision-pinned paged scans

package kv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/server/v3/embed"
)

// One embedded server is shared by the whole package; each test gets its own
// client and key namespace.
var (
	etcdOnce    sync.Once
	etcdServer  *embed.Etcd
	etcdDataDir string
	etcdErr     error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if etcdServer != nil {
		etcdServer.Close()
	}
	if etcdDataDir != "" {
		os.RemoveAll(etcdDataDir)
	}
	os.Exit(code)
}

func freeLocalURL() (url.URL, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return url.URL{}, err
	}
	defer l.Close()
	return url.URL{Scheme: "http", Host: l.Addr().String()}, nil
}

func startEmbeddedEtcd() error {
	dir, err := os.MkdirTemp("", "kv-etcd-*")
	if err != nil {
		return err
	}
	etcdDataDir = dir

	clientURL, err := freeLocalURL()
	if err != nil {
		return err
	}
	peerURL, err := freeLocalURL()
	if err != nil {
		return err
	}

	cfg := embed.NewConfig()
	cfg.Name = "kv-test"
	cfg.Dir = dir
	cfg.LogLevel = "error"
	cfg.ListenClientUrls = []url.URL{clientURL}
	cfg.AdvertiseClientUrls = []url.URL{clientURL}
	cfg.ListenPeerUrls = []url.URL{peerURL}
	cfg.AdvertisePeerUrls = []url.URL{peerURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	e, err := embed.StartEtcd(cfg)
	if err != nil {
		return fmt.Errorf("starting embedded etcd: %w", err)
	}
	select {
	case <-e.Server.ReadyNotify():
		etcdServer = e
		return nil
	case <-time.After(30 * time.Second):
		e.Close()
		return errors.New("embedded etcd did not become ready")
	}
}

// newEmbeddedEtcdStore connects a fresh EtcdStore to the shared server.
func newEmbeddedEtcdStore(t *testing.T, pageSize int) *EtcdStore {
	t.Helper()
	if testing.Short() {
		t.Skip("starts an embedded etcd server")
	}
	etcdOnce.Do(func() { etcdErr = startEmbeddedEtcd() })
	require.NoError(t, etcdErr)

	s, err := NewEtcdStore(EtcdOptions{
		Endpoints:      []string{etcdServer.Clients[0].Addr().String()},
		DialTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
		PageSize:       pageSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testNamespace returns a key prefix no other test writes under.
func testNamespace(t *testing.T) string {
	return "kvtest/" + t.Name() + "/"
}

func TestEtcdStore_CompareAndSwapTransactions(t *testing.T) {
	s := newEmbeddedEtcdStore(t, 2)
	ctx := context.Background()
	key := testNamespace(t) + "counter"

	swapped, err := s.CompareAndSwap(ctx, key, nil, []byte("0"))
	require.NoError(t, err)
	assert.True(t, swapped, "create revision compare holds for a missing key")

	swapped, err = s.CompareAndSwap(ctx, key, nil, []byte("0"))
	require.NoError(t, err)
	assert.False(t, swapped, "create revision compare fails once the key exists")

	swapped, err = s.CompareAndSwap(ctx, key, []byte("0"), []byte("1"))
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.CompareAndSwap(ctx, key, []byte("0"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, swapped, "value compare against a stale value fails")

	// Deleting and recreating resets the create revision, so create-if-absent works again.
	existed, err := s.Delete(ctx, key)
	require.NoError(t, err)
	require.True(t, existed)
	swapped, err = s.CompareAndSwap(ctx, key, nil, []byte("0"))
	require.NoError(t, err)
	assert.True(t, swapped)

	v, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "0", string(v))
}

func TestEtcdStore_CompareAndDeleteMissingKey(t *testing.T) {
	s := newEmbeddedEtcdStore(t, 2)
	ctx := context.Background()
	key := testNamespace(t) + "configs/1"

	for _, expected := range [][]byte{[]byte("{}"), {}} {
		deleted, err := s.CompareAndDelete(ctx, key, expected)
		require.NoError(t, err)
		assert.False(t, deleted, "expected %q", expected)
	}

	swapped, err := s.CompareAndSwap(ctx, key, []byte{}, []byte("{}"))
	require.NoError(t, err)
	assert.False(t, swapped, "an empty expected value does not match a missing key")
	_, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEtcdStore_ScanPagesAtFixedRevision(t *testing.T) {
	s := newEmbeddedEtcdStore(t, 2)
	ctx := context.Background()
	prefix := testNamespace(t) + "configs/"

	var want []string
	for i := range 5 {
		key := fmt.Sprintf("%s%d", prefix, i)
		require.NoError(t, s.Put(ctx, key, []byte("v1")))
		want = append(want, key)
	}

	// Mutate keys on later pages once the scan has started; the scan must
	// still return the snapshot taken at its first page.
	var got []string
	for e, err := range s.Scan(ctx, prefix) {
		require.NoError(t, err)
		if len(got) == 0 {
			require.NoError(t, s.Put(ctx, prefix+"3", []byte("v2")))
			_, err := s.Delete(ctx, prefix+"4")
			require.NoError(t, err)
			require.NoError(t, s.Put(ctx, prefix+"5", []byte("v1")))
		}
		got = append(got, e.Key)
		assert.Equal(t, "v1", string(e.Value), e.Key)
	}
	assert.Equal(t, want, got)

	var after []string
	for e, err := range s.Scan(ctx, prefix) {
		require.NoError(t, err)
		after = append(after, e.Key)
	}
	assert.Equal(t, []string{prefix + "0", prefix + "1", prefix + "2", prefix + "3", prefix + "5"}, after)
}

func TestEtcdStore_ParallelCounterAdvance(t *testing.T) {
	s := newEmbeddedEtcdStore(t, 2)
	ctx := context.Background()
	key := testNamespace(t) + "counter"
	swapped, err := s.CompareAndSwap(ctx, key, nil, []byte("0"))
	require.NoError(t, err)
	require.True(t, swapped)

	// Each worker advances the counter once by read then compare-and-swap,
	// retrying lost races. Every value must be claimed exactly once.
	const workers = 10
	claimed := make(chan string, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				cur, _, err := s.Get(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				n, err := strconv.Atoi(string(cur))
				if !assert.NoError(t, err) {
					return
				}
				next := strconv.Itoa(n + 1)
				ok, err := s.CompareAndSwap(ctx, key, cur, []byte(next))
				if !assert.NoError(t, err) {
					return
				}
				if ok {
					claimed <- next
					return
				}
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := map[string]bool{}
	for v := range claimed {
		assert.False(t, seen[v], "value %s claimed twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers)

	v, _, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(workers), string(v))
}
