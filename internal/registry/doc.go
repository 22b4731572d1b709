// Package registry stores VPN configurations and user records in a kv.Store.
//
// Configurations are keyed by IDs from an allocator.Allocator. Updates and
// deletes compare-and-swap against the value they read, so a config deleted
// concurrently is never recreated and concurrent updates resolve to the last
// successful writer. The registry keeps no state between calls.
package registry
