// Package allocator issues configuration IDs from a single counter key.
//
// IDs start at 1 and strictly increase. They are never reused, including after
// the configuration that received one is deleted or its write fails.
package allocator
