// ABOUTME: Key-prefix wrapper that scopes a Store to a sub-namespace
// ABOUTME: Lets several deployments share one etcd cluster without key collisions

package kv

import (
	"context"
	"iter"
	"strings"
)

type prefixStore struct {
	inner  Store
	prefix string
}

// WithPrefix returns a Store that prepends prefix to every key and strips it
// from scanned keys. An empty prefix returns s unchanged.
func WithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &prefixStore{inner: s, prefix: prefix}
}

func (p *prefixStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixStore) Put(ctx context.Context, key string, value []byte) error {
	return p.inner.Put(ctx, p.prefix+key, value)
}

func (p *prefixStore) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (bool, error) {
	return p.inner.CompareAndSwap(ctx, p.prefix+key, expected, value)
}

func (p *prefixStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	return p.inner.CompareAndDelete(ctx, p.prefix+key, expected)
}

func (p *prefixStore) Delete(ctx context.Context, key string) (bool, error) {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixStore) Scan(ctx context.Context, prefix string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for e, err := range p.inner.Scan(ctx, p.prefix+prefix) {
			if err != nil {
				yield(Entry{}, err)
				return
			}
			e.Key = strings.TrimPrefix(e.Key, p.prefix)
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (p *prefixStore) Close() error {
	return p.inner.Close()
}
