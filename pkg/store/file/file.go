// Package file provides a store.Cache that keeps its entries in memory and
// writes them back to a single file per cache identifier.
//
// Mutations are applied to the in-memory mirror immediately and the file is
// rewritten on a background goroutine once writes have been quiet for the
// debounce interval. Failures to read or write the file are logged and the
// cache keeps working from memory.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codeGROOVE-dev/flagcache/pkg/crypt"
	"github.com/codeGROOVE-dev/flagcache/pkg/debounce"
	"github.com/codeGROOVE-dev/flagcache/pkg/store"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/compress"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/memory"
)

// DirName is the directory created under the application cache root.
const DirName = "ld_cache"

const payloadVersion = 1

var errPayloadVersion = errors.New("unsupported payload version")

// payload is the decoded file body.
type payload struct {
	Version int               `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// Cache is a file-backed store.Cache.
type Cache struct {
	cacheID string
	path    string // empty when storage is unavailable
	cfg     *config
	logger  *slog.Logger
	mem     *memory.Cache
	flusher *debounce.Debouncer
}

var _ store.Cache = (*Cache)(nil)

// Factory returns a store.Factory that builds at most one Cache per
// identifier in reg. The file is read once, when an identifier is first seen.
func Factory(reg *store.Registry[*Cache], opts ...Option) store.Factory {
	return func(logger *slog.Logger, cacheID string) store.Cache {
		return reg.Get(cacheID, func() *Cache {
			return New(logger, cacheID, opts...)
		})
	}
}

// New creates a Cache for cacheID and loads its file, if any.
// Most callers should go through Factory so the identifier has one mirror.
func New(logger *slog.Logger, cacheID string, opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Cache{
		cacheID: cacheID,
		cfg:     cfg,
		logger:  store.Logger(logger).With("cache", "file"),
		mem:     memory.New(),
		flusher: debounce.New(cfg.interval),
	}

	dir, err := cacheDir(cfg.dir)
	if err != nil {
		c.logger.Warn("cache storage unavailable, continuing in memory only", "error", err)
		return c
	}
	c.path = filepath.Join(dir, crypt.SHA256Hex(cacheID))

	entries, err := c.readFile()
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.logger.Debug("no cache file", "path", c.path)
	case err != nil:
		c.logger.Warn("failed to load cache file, starting empty", "error", err, "path", c.path)
	default:
		c.mem.Replace(entries)
		c.logger.Debug("loaded cache file", "path", c.path, "entries", len(entries))
	}
	return c
}

// cacheDir resolves and creates root/ld_cache.
func cacheDir(root string) (string, error) {
	if root == "" {
		var err error
		root, err = os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("get user cache dir: %w", err)
		}
	}
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return dir, nil
}

func (c *Cache) Set(key string, value []byte) {
	c.mem.Set(key, value)
	c.scheduleWrite()
}

func (c *Cache) Get(key string) ([]byte, bool) {
	return c.mem.Get(key)
}

func (c *Cache) Delete(key string) {
	c.mem.Delete(key)
	c.scheduleWrite()
}

func (c *Cache) Clear() {
	c.mem.Clear()
	c.scheduleWrite()
}

func (c *Cache) Keys() []string {
	return c.mem.Keys()
}

// Path returns the backing file, or "" when the cache is memory only.
func (c *Cache) Path() string {
	return c.path
}

// Flush writes pending changes now instead of waiting for the debounce.
func (c *Cache) Flush() {
	c.flusher.Flush()
}

// Close writes pending changes. The cache remains usable afterwards.
func (c *Cache) Close() error {
	c.Flush()
	return nil
}

func (c *Cache) scheduleWrite() {
	if c.path == "" {
		return
	}
	c.flusher.Debounce(c.writeBack)
}

// writeBack is the debounced action; it is the boundary where write errors
// stop propagating.
func (c *Cache) writeBack() {
	if err := c.writeFile(c.mem.Snapshot()); err != nil {
		c.logger.Warn("failed to write cache file", "error", err, "path", c.path)
		return
	}
	c.logger.Debug("wrote cache file", "path", c.path)
}

func (c *Cache) encode(entries map[string][]byte) ([]byte, error) {
	data, err := json.Marshal(payload{Version: payloadVersion, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}
	data, err = compress.Wrap(c.cfg.compressor, data)
	if err != nil {
		return nil, err
	}
	if c.cfg.secret == "" {
		return data, nil
	}
	key, iv := crypt.DeriveKeyIV(c.cfg.secret, c.cacheID)
	data, err = c.cfg.cipher.Encrypt(data, key, iv)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return data, nil
}

func (c *Cache) decode(data []byte) (map[string][]byte, error) {
	var err error
	if c.cfg.secret != "" {
		key, iv := crypt.DeriveKeyIV(c.cfg.secret, c.cacheID)
		data, err = c.cfg.cipher.Decrypt(data, key, iv)
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	}
	data, err = compress.Unwrap(data)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	if p.Version != payloadVersion {
		return nil, fmt.Errorf("%w: %d", errPayloadVersion, p.Version)
	}
	if p.Entries == nil {
		p.Entries = make(map[string][]byte)
	}
	return p.Entries, nil
}

func (c *Cache) readFile() (map[string][]byte, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return c.decode(data)
}

// writeFile replaces the cache file atomically: temp file in the same
// directory, then rename over the old one.
func (c *Cache) writeFile(entries map[string][]byte) error {
	data, err := c.encode(entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		closeErr := tmp.Close()
		rmErr := os.Remove(tmpName)
		return errors.Join(fmt.Errorf("write temp file: %w", err), closeErr, rmErr)
	}
	if err := tmp.Close(); err != nil {
		rmErr := os.Remove(tmpName)
		return errors.Join(fmt.Errorf("close temp file: %w", err), rmErr)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		rmErr := os.Remove(tmpName)
		return errors.Join(fmt.Errorf("rename file: %w", err), rmErr)
	}
	return nil
}
