// Package admincli implements vpn-admin, a cobra command tree that manages
// the configuration registry straight through the key-value store.
package admincli
