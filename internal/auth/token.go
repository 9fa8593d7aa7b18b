// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of a session token before encoding.
const TokenBytes = 32

// GenerateToken returns a fresh session token as lowercase hex. Only
// the hash of a token is ever persisted.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("token_generation_failed").Wrapf(err, "generating session token")
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of a token, the only form
// stored server side. The digest does not reveal the token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyToken reports whether token hashes to hash in constant time.
func VerifyToken(token, hash string) bool {
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
