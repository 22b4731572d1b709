// Package password hashes and verifies user credentials.
package password
