package flagcache

import (
	"os"
	"path/filepath"

	"github.com/codeGROOVE-dev/flagcache/pkg/crypt"
)

const identifierPrefix = "com.launchdarkly.client."

// Physical keys inside a flag cache store.
const (
	flagsPrefix       = "flags-"
	fingerprintPrefix = "fingerprint-"
	indexKey          = "cached-contexts"
	versionKey        = "version"
)

// CacheIdentifier derives the store identifier for an application and
// mobile key. Both parts are hashed so the secret never reaches a filename
// or a shared store key.
func CacheIdentifier(appID, mobileKey string) string {
	return identifierPrefix + crypt.SHA256Base64(appID) + "." + crypt.SHA256Base64(mobileKey)
}

// ContextCacheKey hashes a context's canonical key into the per-context cache key.
func ContextCacheKey(contextKey string) string {
	return crypt.SHA256Base64(contextKey)
}

// defaultAppID names the running executable.
func defaultAppID() string {
	exe, err := os.Executable()
	if err != nil {
		return "flagcache"
	}
	return filepath.Base(exe)
}

func flagsKey(cacheKey string) string       { return flagsPrefix + cacheKey }
func fingerprintKey(cacheKey string) string { return fingerprintPrefix + cacheKey }
