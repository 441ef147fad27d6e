// Package auth validates bearer tokens against an OAuth2 user-info
// endpoint and drives the login/callback exchange.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey returns a SHA-256 hash of the key. Tokens are cached under
// their hash so raw credentials never sit in memory longer than a request.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
