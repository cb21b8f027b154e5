package tenant

import "time"

// Config holds the router and connection cache settings.
type Config struct {
	MaxConnections int           `env:"TENANT_MAX_CONNECTIONS" envDefault:"100"`                         // MaxConnections bounds the cached tenant connections.
	IdleTimeout    time.Duration `env:"TENANT_IDLE_TIMEOUT" envDefault:"15m"`                            // IdleTimeout closes tenant connections unused for this long.
	ReapInterval   time.Duration `env:"TENANT_REAP_INTERVAL" envDefault:"1m"`                            // ReapInterval is how often idle connections are looked for.
	DialTimeout    time.Duration `env:"TENANT_DIAL_TIMEOUT" envDefault:"10s"`                            // DialTimeout bounds opening a tenant connection.
	DialRate       float64       `env:"TENANT_DIAL_RATE" envDefault:"0"`                                 // DialRate limits new tenant connections per second; zero disables the limit.
	DialBurst      int           `env:"TENANT_DIAL_BURST" envDefault:"5"`                                // DialBurst is the number of dials allowed at once under DialRate.
	ResolveTimeout time.Duration `env:"TENANT_RESOLVE_TIMEOUT" envDefault:"5s"`                          // ResolveTimeout bounds the directory lookup.
	MigrateTimeout time.Duration `env:"TENANT_MIGRATE_TIMEOUT" envDefault:"2m"`                          // MigrateTimeout bounds a schema synchronization run.
	SyncPolicy     SyncPolicy    `env:"TENANT_SYNC_POLICY" envDefault:"always"`                          // SyncPolicy is "always" or "once".
	RecordCacheTTL time.Duration `env:"TENANT_RECORD_CACHE_TTL" envDefault:"1m"`                         // RecordCacheTTL is the Redis TTL of tenant records; zero disables the cache.
	RecordCacheKey string        `env:"TENANT_RECORD_CACHE_KEY"`                                         // RecordCacheKey is a base64 32-byte key sealing cached records; without it dedicated tenants are not cached.
	HostHeader     string        `env:"TENANT_HOST_HEADER"`                                              // HostHeader, when set, is consulted before the Host header.
	SkipPaths      []string      `env:"TENANT_SKIP_PATHS" envDefault:"/healthz,/readyz,/stats,/metrics"` // SkipPaths bypass tenant routing.
}

// ConnectionsOptions converts the config into Connections options.
func (cfg Config) ConnectionsOptions() []ConnectionsOption {
	return []ConnectionsOption{
		WithMaxConnections(cfg.MaxConnections),
		WithIdleTimeout(cfg.IdleTimeout),
		WithReapInterval(cfg.ReapInterval),
		WithDialTimeout(cfg.DialTimeout),
		WithDialRateLimit(cfg.DialRate, cfg.DialBurst),
	}
}

// MiddlewareOptions converts the config into router options.
func (cfg Config) MiddlewareOptions() []Option {
	opts := []Option{
		WithSyncPolicy(cfg.SyncPolicy),
		WithSkipPaths(cfg.SkipPaths),
	}
	if cfg.HostHeader != "" {
		opts = append(opts, WithResolver(NewCompositeResolver(
			NewHeaderResolver(cfg.HostHeader),
			NewHostResolver(),
		)))
	}
	return opts
}
