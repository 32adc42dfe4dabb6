// Package valkey provides a store.Cache backed by Valkey/Redis, for hosts that
// share cached flag data between processes.
package valkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// opTimeout bounds each Valkey round trip.
const opTimeout = 5 * time.Second

// Connect creates a client for addr ("host:port") and pings it.
func Connect(ctx context.Context, addr string) (valkey.Client, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping failed: %w", err)
	}
	return client, nil
}

// Factory returns a store.Factory handing out one Cache per identifier from
// reg, all sharing client. Entries are stored as "<cacheID>:<key>".
func Factory(client valkey.Client, reg *store.Registry[*Cache]) store.Factory {
	return func(logger *slog.Logger, cacheID string) store.Cache {
		return reg.Get(cacheID, func() *Cache {
			return New(client, logger, cacheID)
		})
	}
}

// Cache is one cache identifier's namespace in Valkey.
type Cache struct {
	client valkey.Client
	prefix string
	logger *slog.Logger
}

var _ store.Cache = (*Cache)(nil)

// New creates a Cache for cacheID on client.
func New(client valkey.Client, logger *slog.Logger, cacheID string) *Cache {
	return &Cache{
		client: client,
		prefix: cacheID + ":",
		logger: store.Logger(logger).With("cache", "valkey"),
	}
}

func (c *Cache) Set(key string, value []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cmd := c.client.B().Set().Key(c.prefix + key).Value(valkey.BinaryString(value)).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("valkey set failed", "error", err, "key", key)
	}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := c.client.Do(ctx, c.client.B().Get().Key(c.prefix+key).Build()).AsBytes()
	if err != nil {
		if !valkey.IsValkeyNil(err) {
			c.logger.Warn("valkey get failed", "error", err, "key", key)
		}
		return nil, false
	}
	if data == nil {
		data = []byte{}
	}
	return data, true
}

func (c *Cache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.Do(ctx, c.client.B().Del().Key(c.prefix+key).Build()).Error(); err != nil {
		c.logger.Warn("valkey delete failed", "error", err, "key", key)
	}
}

func (c *Cache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	err := c.scan(ctx, func(keys []string) error {
		return c.client.Do(ctx, c.client.B().Del().Key(keys...).Build()).Error()
	})
	if err != nil {
		c.logger.Warn("valkey clear failed", "error", err)
	}
}

func (c *Cache) Keys() []string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var keys []string
	err := c.scan(ctx, func(batch []string) error {
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, c.prefix))
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("valkey keys failed", "error", err)
		return nil
	}
	return keys
}

// scan walks every key under this cache's prefix, calling fn per batch.
func (c *Cache) scan(ctx context.Context, fn func(keys []string) error) error {
	pat := globEscape(c.prefix) + "*"
	var cur uint64
	for {
		entry, err := c.client.Do(ctx, c.client.B().Scan().Cursor(cur).Match(pat).Count(100).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("scan keys: %w", err)
		}
		if len(entry.Elements) > 0 {
			if err := fn(entry.Elements); err != nil {
				return err
			}
		}
		cur = entry.Cursor
		if cur == 0 {
			return nil
		}
	}
}

// globEscape escapes the MATCH metacharacters in s.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
