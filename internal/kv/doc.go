// Package kv is the key-value client adapter underneath the configuration registry.
//
// # Store
//
// Store exposes point get, unconditional put, conditional put (CompareAndSwap),
// conditional delete (CompareAndDelete), delete, and a lazy prefix Scan, all
// keyed on UTF-8 strings. It holds no business logic and no cache: every call
// is a round trip to the backend.
//
// # Backends
//
//   - EtcdStore: etcd v3 cluster (production). Conditional writes are
//     transactions comparing the key's value or create revision.
//   - BoltStore: embedded bbolt file for single-node installs.
//   - SQLiteStore: embedded SQLite file (modernc.org/sqlite, no cgo).
//   - MemStore: in-memory, for tests.
//
// Open selects a backend from config.StoreConfig and WithPrefix scopes any
// backend to a key prefix such as "/vpn/".
//
// # Errors
//
//   - ErrUnavailable: the backend could not serve the request (connection
//     failure, timeout, closed store). Backend error types never escape.
//   - ErrCorrupt: stored bytes could not be decoded; built with Corrupt.
//   - ErrAlreadyExists: a create-if-absent found the key occupied.
//
// Every backend call runs under the configured request timeout; an expired
// deadline surfaces as ErrUnavailable rather than hanging.
package kv
