// ABOUTME: Tests for bcrypt password hashing
// ABOUTME: Covers round trip, mismatches, empty digests, and cost validation

package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher() error = %v", err)
	}

	digest, err := h.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if digest == "hunter22" {
		t.Fatal("Hash() returned the plaintext")
	}
	if !h.Verify("hunter22", digest) {
		t.Error("Verify() = false for the correct password")
	}
	if h.Verify("hunter23", digest) {
		t.Error("Verify() = true for a wrong password")
	}
}

func TestBcryptHasher_EmptyDigestNeverMatches(t *testing.T) {
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher() error = %v", err)
	}
	if h.Verify("", "") {
		t.Error("Verify() matched an empty digest")
	}
	if h.Verify("dummy-password-for-timing", "") {
		t.Error("Verify() matched the dummy hash")
	}
}

func TestBcryptHasher_GarbageDigest(t *testing.T) {
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher() error = %v", err)
	}
	if h.Verify("x", "not-a-bcrypt-hash") {
		t.Error("Verify() matched a garbage digest")
	}
}

func TestBcryptHasher_TooLong(t *testing.T) {
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcryptHasher() error = %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 73)); err != ErrTooLong {
		t.Errorf("Hash() error = %v, want ErrTooLong", err)
	}
}

func TestNewBcryptHasher_Cost(t *testing.T) {
	tests := []struct {
		cost    int
		wantErr bool
	}{
		{0, false},
		{bcrypt.MinCost, false},
		{3, true},
		{32, true},
	}
	for _, tt := range tests {
		_, err := NewBcryptHasher(tt.cost)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewBcryptHasher(%d) error = %v, wantErr %v", tt.cost, err, tt.wantErr)
		}
	}
}
