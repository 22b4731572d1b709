// ABOUTME: User record operations: create-if-absent, lookup, credential check, list
// ABOUTME: Users live at users/<username>; records are never updated by the registry

package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const usersPrefix = "users/"

// MaxUsernameLength bounds new usernames in bytes.
const MaxUsernameLength = 255

// User is a stored account. PasswordHash is whatever the configured hasher
// produced; the registry never sees plaintext.
type User struct {
	Username     string
	PasswordHash string
	VPNConfig    Data
}

// VerifyFunc compares a plaintext secret against a stored hash. An empty hash
// means the user does not exist; implementations should still spend the same
// effort as a real comparison.
type VerifyFunc func(secret, hash string) bool

// ValidateUsername reports whether name is acceptable for a new user. Any
// printable UTF-8 name is allowed (emails included) as long as it stays inside
// the users/ namespace.
func ValidateUsername(name string) error {
	switch {
	case !addressable(name):
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	case len(name) > MaxUsernameLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUsername, MaxUsernameLength)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidUsername)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: %q contains control characters", ErrInvalidUsername, name)
	}
	return nil
}

// addressable reports whether name maps to exactly one key under users/.
// Reads only apply this check so records written by earlier services stay
// reachable whatever their names look like.
func addressable(name string) bool {
	return name != "" && !strings.Contains(name, "/")
}

func userKey(username string) string {
	return usersPrefix + username
}

// CreateUser stores a new user. It fails with ErrAlreadyExists, leaving the
// existing record untouched, if the username is taken.
func (r *Registry) CreateUser(ctx context.Context, username, passwordHash string, vpnConfig Data) (err error) {
	defer r.track("create_user")(&err)

	if err := ValidateUsername(username); err != nil {
		return err
	}
	raw, err := encodeUser(User{Username: username, PasswordHash: passwordHash, VPNConfig: vpnConfig})
	if err != nil {
		return err
	}

	created, err := r.store.CompareAndSwap(ctx, userKey(username), nil, raw)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", username, err)
	}
	if !created {
		return fmt.Errorf("creating user %s: %w", username, ErrAlreadyExists)
	}

	r.logger.Info("user created", "username", username)
	return nil
}

// GetUser returns the user named username.
func (r *Registry) GetUser(ctx context.Context, username string) (user User, found bool, err error) {
	defer r.track("get_user")(&err)
	return r.getUser(ctx, username)
}

func (r *Registry) getUser(ctx context.Context, username string) (User, bool, error) {
	if !addressable(username) {
		return User{}, false, nil
	}

	key := userKey(username)
	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		return User{}, false, fmt.Errorf("getting user %s: %w", username, err)
	}
	if !found {
		return User{}, false, nil
	}
	user, err := decodeUser(key, raw)
	if err != nil {
		return User{}, false, err
	}
	return user, true, nil
}

// VerifyCredential reports whether secret matches the stored hash for
// username. Unknown or unaddressable usernames yield false; only store failures
// and corrupt records are errors.
func (r *Registry) VerifyCredential(ctx context.Context, username, secret string, verify VerifyFunc) (ok bool, err error) {
	defer r.track("verify_credential")(&err)

	user, found, err := r.getUser(ctx, username)
	if err != nil {
		return false, err
	}
	if !found {
		verify(secret, "")
		return false, nil
	}
	return verify(secret, user.PasswordHash), nil
}

// ListUsers returns every decodable user sorted by username.
func (r *Registry) ListUsers(ctx context.Context) (users []User, err error) {
	defer r.track("list_users")(&err)

	for entry, err := range r.store.Scan(ctx, usersPrefix) {
		if err != nil {
			return nil, fmt.Errorf("listing users: %w", err)
		}
		name := strings.TrimPrefix(entry.Key, usersPrefix)
		user, err := decodeUser(entry.Key, entry.Value)
		if err != nil {
			r.logger.Warn("skipping corrupt user", "username", name, "error", err)
			continue
		}
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
