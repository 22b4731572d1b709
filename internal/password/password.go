// ABOUTME: Password hashing for user credentials
// ABOUTME: Bcrypt implementation with a dummy comparison for unknown users

package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned when a secret exceeds bcrypt's 72 byte input limit.
var ErrTooLong = errors.New("password longer than 72 bytes")

// Hasher turns plaintext secrets into stored digests and checks them.
type Hasher interface {
	Hash(secret string) (string, error)
	// Verify reports whether secret matches digest. An empty digest never
	// matches but costs the same as a real comparison.
	Verify(secret, digest string) bool
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost      int
	dummyHash []byte
}

// NewBcryptHasher creates a hasher. A cost of 0 selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	// Compared against when the user is unknown so both paths take as long.
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("generating dummy hash: %w", err)
	}
	return &BcryptHasher{cost: cost, dummyHash: dummy}, nil
}

// Hash implements Hasher.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(digest), nil
}

// Verify implements Hasher.
func (h *BcryptHasher) Verify(secret, digest string) bool {
	if digest == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(secret))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
