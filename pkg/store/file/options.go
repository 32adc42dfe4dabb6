package file

import (
	"time"

	"github.com/codeGROOVE-dev/flagcache/pkg/crypt"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/compress"
)

// DefaultInterval is how long a mutation waits for further mutations before
// the cache is written to disk.
const DefaultInterval = 500 * time.Millisecond

// config holds configuration for file-backed caches.
type config struct {
	dir        string
	secret     string
	compressor compress.Compressor
	cipher     crypt.Cipher
	interval   time.Duration
}

func defaultConfig() *config {
	return &config{
		compressor: compress.None(),
		cipher:     crypt.AESCBC{},
		interval:   DefaultInterval,
	}
}

// Option configures a file-backed Cache.
type Option func(*config)

// WithDir sets the application cache root. Files are written to
// dir/ld_cache. Defaults to os.UserCacheDir().
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithEncryptionKey enables encryption at rest using a key derived from secret.
// An empty secret leaves files in plaintext.
func WithEncryptionKey(secret string) Option {
	return func(c *config) {
		c.secret = secret
	}
}

// WithCompressor compresses files with comp before encryption.
func WithCompressor(comp compress.Compressor) Option {
	return func(c *config) {
		if comp != nil {
			c.compressor = comp
		}
	}
}

// WithCipher replaces the AES-CBC cipher used with WithEncryptionKey.
func WithCipher(ci crypt.Cipher) Option {
	return func(c *config) {
		if ci != nil {
			c.cipher = ci
		}
	}
}

// WithInterval sets the debounce interval for disk writes.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}
