// Package datastore provides a store.Cache backed by Google Cloud Datastore,
// for server-side hosts that keep flag caches outside the instance.
package datastore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ds "github.com/codeGROOVE-dev/ds9/pkg/datastore"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
)

// KindPrefix starts the entity kind of every cache identifier.
const KindPrefix = "FlagCache:"

// opTimeout bounds each Datastore round trip.
const opTimeout = 5 * time.Second

// Connect creates a client for database in project. Empty values select the
// default database and the project of the ambient credentials.
func Connect(ctx context.Context, project, database string) (*ds.Client, error) {
	client, err := ds.NewClientWithDatabase(ctx, project, database)
	if err != nil {
		return nil, fmt.Errorf("create datastore client: %w", err)
	}
	return client, nil
}

// Factory returns a store.Factory handing out one Cache per identifier from
// reg, all sharing client.
func Factory(client *ds.Client, reg *store.Registry[*Cache]) store.Factory {
	return func(logger *slog.Logger, cacheID string) store.Cache {
		return reg.Get(cacheID, func() *Cache {
			return New(client, logger, cacheID)
		})
	}
}

// entry is one cached value. Value is base64 because Datastore limits
// unindexed []byte properties.
type entry struct {
	UpdatedAt time.Time `datastore:"updated_at"`
	Value     string    `datastore:"value,noindex"`
}

// Cache is one cache identifier's entity kind.
type Cache struct {
	client *ds.Client
	kind   string
	logger *slog.Logger
}

var _ store.Cache = (*Cache)(nil)

// New creates a Cache for cacheID on client.
func New(client *ds.Client, logger *slog.Logger, cacheID string) *Cache {
	return &Cache{
		client: client,
		kind:   KindPrefix + cacheID,
		logger: store.Logger(logger).With("cache", "datastore"),
	}
}

func (c *Cache) key(k string) *ds.Key {
	return ds.NameKey(c.kind, k, nil)
}

func (c *Cache) Set(key string, value []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	e := entry{UpdatedAt: time.Now(), Value: base64.StdEncoding.EncodeToString(value)}
	if _, err := c.client.Put(ctx, c.key(key), &e); err != nil {
		c.logger.Warn("datastore put failed", "error", err, "key", key)
	}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var e entry
	if err := c.client.Get(ctx, c.key(key), &e); err != nil {
		if !errors.Is(err, ds.ErrNoSuchEntity) {
			c.logger.Warn("datastore get failed", "error", err, "key", key)
		}
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(e.Value)
	if err != nil {
		c.logger.Warn("discarding undecodable datastore value", "error", err, "key", key)
		return nil, false
	}
	if b == nil {
		b = []byte{}
	}
	return b, true
}

func (c *Cache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.client.Delete(ctx, c.key(key)); err != nil {
		c.logger.Warn("datastore delete failed", "error", err, "key", key)
	}
}

func (c *Cache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys, err := c.allKeys(ctx)
	if err != nil {
		c.logger.Warn("datastore clear failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.DeleteMulti(ctx, keys); err != nil {
		c.logger.Warn("datastore clear failed", "error", err, "keys", len(keys))
	}
}

func (c *Cache) Keys() []string {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	keys, err := c.allKeys(ctx)
	if err != nil {
		c.logger.Warn("datastore keys failed", "error", err)
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name)
	}
	return names
}

func (c *Cache) allKeys(ctx context.Context) ([]*ds.Key, error) {
	keys, err := c.client.AllKeys(ctx, ds.NewQuery(c.kind).KeysOnly())
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	return keys, nil
}
