package flagcache

import (
	"log/slog"
	"time"
)

// DefaultMaxCachedContexts is the number of contexts kept when no limit is given.
const DefaultMaxCachedContexts = 5

// config holds configuration for FlagCache and Migrator.
type config struct {
	maxCachedContexts int
	logger            *slog.Logger
	appID             string
	now               func() time.Time
}

func defaultConfig() *config {
	return &config{
		maxCachedContexts: DefaultMaxCachedContexts,
		logger:            slog.Default(),
		now:               time.Now,
	}
}

// Option configures a FlagCache or Migrator.
type Option func(*config)

// WithMaxCachedContexts bounds the number of contexts kept.
// Zero disables caching; a negative value means unlimited.
func WithMaxCachedContexts(n int) Option {
	return func(c *config) {
		c.maxCachedContexts = n
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAppID sets the application identifier mixed into the cache
// identifier. Defaults to the executable name.
func WithAppID(id string) Option {
	return func(c *config) {
		c.appID = id
	}
}

// WithClock replaces time.Now, used when a migrated record has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.appID == "" {
		cfg.appID = defaultAppID()
	}
	return cfg
}
