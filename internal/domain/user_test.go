package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserHashesPassword(t *testing.T) {
	u := NewUser("alice", "hunter2", false)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, HashPassword("hunter2"), u.PasswordDigest)
	assert.NotEqual(t, "hunter2", u.PasswordDigest)
}

func TestNewUserAlreadyHashed(t *testing.T) {
	digest := HashPassword("hunter2")
	u := NewUser("alice", digest, true)
	require.Equal(t, digest, u.PasswordDigest)
}

func TestVerifyPassword(t *testing.T) {
	u := NewUser("alice", "hunter2", false)
	assert.True(t, u.VerifyPassword("hunter2"))
	assert.False(t, u.VerifyPassword("wrong"))
}
