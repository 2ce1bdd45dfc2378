// Package auth handles API key verification for the controller.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// OwnerTag derives a short stable identifier from an API key. It is stored
// on jobs instead of the key itself.
func OwnerTag(key string) string {
	return "k_" + HashKey(key)[:12]
}

// Keyring validates presented API keys against a configured set. Keys are
// compared by hash so the plaintext never has to be held after startup.
type Keyring struct {
	hashes   map[string]struct{}
	adminKey string // hash of the admin key, empty when not configured
}

// NewKeyring builds a keyring from plaintext keys. The admin key, when set,
// additionally unlocks privileged endpoints.
func NewKeyring(keys []string, adminKey string) *Keyring {
	kr := &Keyring{hashes: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			kr.hashes[HashKey(k)] = struct{}{}
		}
	}
	if adminKey = strings.TrimSpace(adminKey); adminKey != "" {
		kr.adminKey = HashKey(adminKey)
		kr.hashes[kr.adminKey] = struct{}{}
	}
	return kr
}

// Verify reports whether the presented key is known and whether it carries
// admin rights.
func (k *Keyring) Verify(key string) (ok, admin bool) {
	if key == "" {
		return false, false
	}
	h := HashKey(key)
	if _, found := k.hashes[h]; !found {
		return false, false
	}
	admin = k.adminKey != "" &&
		subtle.ConstantTimeCompare([]byte(h), []byte(k.adminKey)) == 1
	return true, admin
}
