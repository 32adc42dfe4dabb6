// Package crypt provides the hashing and symmetric encryption used to keep
// cache identifiers out of filenames and cache payloads unreadable at rest.
package crypt

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// KeySize is the AES-128 key and block size used for cache payloads.
const KeySize = 16

// SHA256 returns the sha256 digest of s.
func SHA256(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// SHA256Base64 returns the standard padded base64 encoding of sha256(s).
func SHA256Base64(s string) string {
	return base64.StdEncoding.EncodeToString(SHA256(s))
}

// SHA256Base64URL is like SHA256Base64 but uses the URL-safe alphabet,
// so the result can be used as a path segment.
func SHA256Base64URL(s string) string {
	return base64.URLEncoding.EncodeToString(SHA256(s))
}

// SHA256Hex returns sha256(s) as upper-case hex.
func SHA256Hex(s string) string {
	return fmt.Sprintf("%X", SHA256(s))
}

// DeriveKeyIV derives the key and initialization vector for a cache.
// Both are deterministic: the key depends only on the secret, the IV mixes
// in the cache identifier so two caches sharing a secret never share an IV.
func DeriveKeyIV(secret, cacheID string) (key, iv []byte) {
	return SHA256(secret + "salt")[:KeySize], SHA256(secret + cacheID)[:KeySize]
}

// Encrypt encrypts data for the given cache with AES-128-CBC.
func Encrypt(data []byte, secret, cacheID string) ([]byte, error) {
	key, iv := DeriveKeyIV(secret, cacheID)
	return AESCBC{}.Encrypt(data, key, iv)
}

// Decrypt reverses Encrypt.
func Decrypt(data []byte, secret, cacheID string) ([]byte, error) {
	key, iv := DeriveKeyIV(secret, cacheID)
	return AESCBC{}.Decrypt(data, key, iv)
}
