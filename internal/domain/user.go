// Package domain holds Talk2Me's core value types: users, messages, and
// chats. It has no knowledge of the network, the store's locking, or the
// wire format — just the data and the small amount of behaviour that acts
// on it directly.
package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// User is a registered account. Identity is the username alone: two Users
// with the same username are the same user, regardless of password digest.
type User struct {
	Username       string
	PasswordDigest string // hex(SHA-256(password)), or a caller-supplied digest
}

// NewUser hashes pw and returns a User. If alreadyHashed is true, pw is
// taken verbatim as the digest (used when a chat server provisions an
// account on behalf of the front server, which has already hashed it).
func NewUser(username, pw string, alreadyHashed bool) User {
	digest := pw
	if !alreadyHashed {
		digest = HashPassword(pw)
	}
	return User{Username: username, PasswordDigest: digest}
}

// HashPassword returns hex(SHA-256(password)).
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether pw hashes to u's stored digest, using a
// constant-time comparison so mismatched and matched attempts do not diverge
// measurably.
func (u User) VerifyPassword(pw string) bool {
	return subtle.ConstantTimeCompare([]byte(HashPassword(pw)), []byte(u.PasswordDigest)) == 1
}
