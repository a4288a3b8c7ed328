package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/socialpulse/commentguard/storage"
)

// MockTime provides a controllable time source for deterministic testing.
// Pass Now to components that accept a clock (e.g. the in-memory counter
// store) and Advance it instead of sleeping.
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// NewComment creates a pending comment record seeded from the id. Fields a
// test cares about are overwritten after the call.
func NewComment(id, userID string, created time.Time) *storage.Comment {
	return &storage.Comment{
		ID:                id,
		UserID:            userID,
		Platform:          "instagram",
		PlatformPostID:    "post-1",
		PlatformCommentID: "pc-" + id,
		EncryptedAuthorID: "v1.abc.def.ghi",
		Content:           "content of " + id,
		ContentHash:       "hash-" + id,
		Status:            "pending",
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

// RandomKeyHex generates a random hex string of nBytes bytes, the shape of
// an encryption key.
func RandomKeyHex(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random key: %v", err))
	}
	return hex.EncodeToString(b)
}
