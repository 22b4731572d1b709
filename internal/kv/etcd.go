// ABOUTME: etcd v3 implementation of the Store interface
// ABOUTME: Conditional writes are etcd transactions; scans page through a fixed revision

package kv

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EtcdOptions configures NewEtcdStore.
type EtcdOptions struct {
	Endpoints      []string
	Username       string
	Password       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	PageSize       int
}

// EtcdStore implements Store against an etcd cluster.
type EtcdStore struct {
	client   *clientv3.Client
	timeout  time.Duration
	pageSize int64
	logger   *slog.Logger
}

// NewEtcdStore connects to the cluster described by opts.
func NewEtcdStore(opts EtcdOptions) (*EtcdStore, error) {
	logger := slog.Default().With("component", "kv", "backend", "etcd")

	if len(opts.Endpoints) == 0 {
		return nil, errors.New("etcd: no endpoints configured")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
		Username:    opts.Username,
		Password:    opts.Password,
	})
	if err != nil {
		return nil, Unavailable("connect", err)
	}

	logger.Info("etcd store initialized", "endpoints", opts.Endpoints)
	return newEtcdStore(client, opts, logger), nil
}

// NewEtcdStoreFromClient wraps an existing client. The store takes ownership
// and closes the client on Close.
func NewEtcdStoreFromClient(client *clientv3.Client, opts EtcdOptions) *EtcdStore {
	return newEtcdStore(client, opts, slog.Default().With("component", "kv", "backend", "etcd"))
}

func newEtcdStore(client *clientv3.Client, opts EtcdOptions, logger *slog.Logger) *EtcdStore {
	pageSize := int64(opts.PageSize)
	if pageSize <= 0 {
		pageSize = 256
	}
	return &EtcdStore{
		client:   client,
		timeout:  opts.RequestTimeout,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Get returns the value at key.
func (s *EtcdStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, false, s.translate("get", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return nonNil(resp.Kvs[0].Value), true, nil
}

// Put writes value at key.
func (s *EtcdStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Put(ctx, key, string(value)); err != nil {
		return s.translate("put", err)
	}
	return nil
}

// CompareAndSwap writes value if the current value matches expected.
// A nil expected compares the key's create revision against zero, which
// only holds for a key that does not exist.
func (s *EtcdStore) CompareAndSwap(ctx context.Context, key string, expected, value []byte) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var cmp clientv3.Cmp
	if expected == nil {
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.Value(key), "=", string(expected))
	}

	resp, err := s.client.Txn(ctx).If(cmp).Then(clientv3.OpPut(key, string(value))).Commit()
	if err != nil {
		return false, s.translate("compare-and-swap", err)
	}
	return resp.Succeeded, nil
}

// CompareAndDelete removes key if the current value matches expected.
// etcd fails a value comparison on a missing key, so absence reports false.
func (s *EtcdStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Value(key), "=", string(expected))).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, s.translate("compare-and-delete", err)
	}
	return resp.Succeeded, nil
}

// Delete removes key.
func (s *EtcdStore) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Delete(ctx, key)
	if err != nil {
		return false, s.translate("delete", err)
	}
	return resp.Deleted > 0, nil
}

// Scan pages through the prefix. Every page after the first is read at the
// revision of the first, so the scan is one consistent snapshot.
func (s *EtcdStore) Scan(ctx context.Context, prefix string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		end := clientv3.GetPrefixRangeEnd(prefix)
		cursor := prefix
		if cursor == "" {
			cursor = "\x00"
		}
		var rev int64
		for {
			resp, err := s.scanPage(ctx, cursor, end, rev)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if rev == 0 {
				rev = resp.Header.Revision
			}
			for _, item := range resp.Kvs {
				if !yield(Entry{Key: string(item.Key), Value: nonNil(item.Value)}, nil) {
					return
				}
			}
			if !resp.More || len(resp.Kvs) == 0 {
				return
			}
			cursor = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
		}
	}
}

func (s *EtcdStore) scanPage(ctx context.Context, from, end string, rev int64) (*clientv3.GetResponse, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	opts := []clientv3.OpOption{
		clientv3.WithRange(end),
		clientv3.WithLimit(s.pageSize),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	}
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev))
	}
	resp, err := s.client.Get(ctx, from, opts...)
	if err != nil {
		return nil, s.translate("scan", err)
	}
	return resp, nil
}

// Close closes the client connection.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}

// translate maps an etcd client error to ErrUnavailable and logs its class.
func (s *EtcdStore) translate(op string, err error) error {
	s.logger.Warn("etcd request failed", "op", op, "reason", failureReason(err), "error", err)
	return Unavailable("etcd "+op, err)
}

// failureReason classifies an etcd client error for logging. The client
// surfaces both raw gRPC statuses and rpctypes.EtcdError values, which carry
// a code but no status.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	code := status.Code(err)
	var coded interface{ Code() codes.Code }
	if code == codes.Unknown && errors.As(err, &coded) {
		code = coded.Code()
	}

	switch code {
	case codes.Unavailable:
		return "unreachable"
	case codes.DeadlineExceeded:
		return "timeout"
	case codes.Canceled:
		return "canceled"
	case codes.Unauthenticated, codes.PermissionDenied:
		return "rejected"
	case codes.OutOfRange:
		return "compacted"
	default:
		return "error"
	}
}
