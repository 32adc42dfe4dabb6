// Package auto picks a flag cache backend from the environment.
// A reachable Valkey server is preferred, then Cloud Datastore when a
// database is configured or the process runs on Cloud Run, then a SQLite
// database when a path is configured, and local files otherwise.
package auto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeGROOVE-dev/flagcache/pkg/store"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/compress"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/datastore"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/file"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/metered"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/sqlite"
	"github.com/codeGROOVE-dev/flagcache/pkg/store/valkey"
)

// Backend kinds reported by Backend.Kind.
const (
	KindValkey    = "valkey"
	KindDatastore = "datastore"
	KindSQLite    = "sqlite"
	KindFile      = "file"
)

var errUnknownCompression = errors.New("unknown compression")

// connectDatastore is replaced in tests.
var connectDatastore = datastore.Connect

// Config selects and configures a backend.
type Config struct {
	ValkeyAddr string `env:"FLAGCACHE_VALKEY_ADDR"`
	SQLitePath string `env:"FLAGCACHE_SQLITE_PATH"`
	// Datastore is tried when either a database is named or K_SERVICE
	// reports Cloud Run.
	DatastoreProject  string        `env:"FLAGCACHE_DATASTORE_PROJECT"`
	DatastoreDatabase string        `env:"FLAGCACHE_DATASTORE_DATABASE"`
	CloudRunService   string        `env:"K_SERVICE"`
	Dir               string        `env:"FLAGCACHE_DIR"`
	EncryptionKey     string        `env:"FLAGCACHE_ENCRYPTION_KEY"`
	Compression       string        `env:"FLAGCACHE_COMPRESSION" envDefault:"s2"`
	FlushInterval     time.Duration `env:"FLAGCACHE_FLUSH_INTERVAL" envDefault:"500ms"`
	MetricsPrefix     string        `env:"FLAGCACHE_METRICS_NAMESPACE" envDefault:"flagcache"`
}

// LoadConfig reads Config from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Backend is a selected store with its factory.
type Backend struct {
	Kind    string
	Factory store.Factory
	close   func() error
}

// Close flushes and releases the backend.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// New selects a backend for cfg. Valkey connection failures fall back to the
// local backends. When reg is non-nil the factory is instrumented.
func New(ctx context.Context, cfg Config, logger *slog.Logger, reg prometheus.Registerer) (*Backend, error) {
	logger = store.Logger(logger)

	b, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		f, err := metered.Wrap(b.Factory, cfg.MetricsPrefix, reg)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("instrument %s backend: %w", b.Kind, err)
		}
		b.Factory = f
	}
	logger.Debug("selected flag cache backend", "kind", b.Kind)
	return b, nil
}

func open(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.ValkeyAddr != "" {
		client, err := valkey.Connect(ctx, cfg.ValkeyAddr)
		if err == nil {
			return &Backend{
				Kind:    KindValkey,
				Factory: valkey.Factory(client, store.NewRegistry[*valkey.Cache]()),
				close: func() error {
					client.Close()
					return nil
				},
			}, nil
		}
		logger.Warn("valkey unavailable, using local storage", "addr", cfg.ValkeyAddr, "error", err)
	}

	if cfg.DatastoreDatabase != "" || cfg.CloudRunService != "" {
		client, err := connectDatastore(ctx, cfg.DatastoreProject, cfg.DatastoreDatabase)
		if err == nil {
			return &Backend{
				Kind:    KindDatastore,
				Factory: datastore.Factory(client, store.NewRegistry[*datastore.Cache]()),
				close:   client.Close,
			}, nil
		}
		logger.Warn("datastore unavailable, using local storage", "database", cfg.DatastoreDatabase, "error", err)
	}

	if cfg.SQLitePath != "" {
		db, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Kind: KindSQLite, Factory: db.Factory(), close: db.Close}, nil
	}

	comp, err := Compressor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	opts := []file.Option{file.WithCompressor(comp)}
	if cfg.Dir != "" {
		opts = append(opts, file.WithDir(cfg.Dir))
	}
	if cfg.EncryptionKey != "" {
		opts = append(opts, file.WithEncryptionKey(cfg.EncryptionKey))
	}
	if cfg.FlushInterval > 0 {
		opts = append(opts, file.WithInterval(cfg.FlushInterval))
	}
	caches := store.NewRegistry[*file.Cache]()
	return &Backend{
		Kind:    KindFile,
		Factory: file.Factory(caches, opts...),
		close: func() error {
			var errs []error
			caches.Range(func(_ string, c *file.Cache) {
				errs = append(errs, c.Close())
			})
			return errors.Join(errs...)
		},
	}, nil
}

// Compressor maps a configured name to a compressor.
func Compressor(name string) (compress.Compressor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return compress.None(), nil
	case "s2":
		return compress.S2(), nil
	case "zstd":
		return compress.Zstd(1), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCompression, name)
	}
}
