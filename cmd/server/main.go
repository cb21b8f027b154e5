package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/niravscs/multiple-databases-demo/internal/db/migrations"
	"github.com/niravscs/multiple-databases-demo/pkg/config"
	"github.com/niravscs/multiple-databases-demo/pkg/environment"
	"github.com/niravscs/multiple-databases-demo/pkg/httpserver"
	"github.com/niravscs/multiple-databases-demo/pkg/logger"
	"github.com/niravscs/multiple-databases-demo/pkg/pg"
	"github.com/niravscs/multiple-databases-demo/pkg/redis"
	"github.com/niravscs/multiple-databases-demo/pkg/requestid"
	"github.com/niravscs/multiple-databases-demo/pkg/secrets"
	"github.com/niravscs/multiple-databases-demo/pkg/tenant"
)

type appConfig struct {
	Log    logger.Config
	PG     pg.Config
	Redis  redis.Config
	Tenant tenant.Config
	HTTP   httpserver.Config
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("Server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := errors.Join(
		config.Load(&cfg.Log),
		config.Load(&cfg.PG),
		config.Load(&cfg.Redis),
		config.Load(&cfg.Tenant),
		config.Load(&cfg.HTTP),
	); err != nil {
		return err
	}

	logOpts, err := logger.FromConfig(cfg.Log)
	if err != nil {
		return err
	}
	log := logger.New(append(logOpts, logger.WithContextExtractors(
		requestid.LoggerExtractor(),
		environment.LoggerExtractor(),
		tenant.LoggerExtractor(),
	))...)
	logger.SetAsDefault(log)

	admin, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer admin.Close()

	if err := pg.Migrate(ctx, admin, migrations.Admin(), cfg.PG, log.With(logger.Component("migrations"))); err != nil {
		return err
	}

	var dir tenant.Directory = tenant.NewPostgresDirectory(admin, cfg.Tenant.ResolveTimeout)
	readiness := []func(context.Context) error{pg.Healthcheck(admin)}

	if cfg.Redis.Enabled() && cfg.Tenant.RecordCacheTTL > 0 {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		var cacheOpts []tenant.CachedDirectoryOption
		if cfg.Tenant.RecordCacheKey != "" {
			key, err := secrets.ParseKey(cfg.Tenant.RecordCacheKey)
			if err != nil {
				return err
			}
			sealer, err := secrets.NewSealer(key)
			if err != nil {
				return err
			}
			cacheOpts = append(cacheOpts, tenant.WithRecordSealer(sealer))
		}
		dir = tenant.NewCachedDirectory(dir, rdb, cfg.Tenant.RecordCacheTTL,
			log.With(logger.Component("tenant_cache")), cacheOpts...)
		readiness = append(readiness, redis.Healthcheck(rdb))
	}

	conns := tenant.NewConnections(tenant.PostgresDialer(cfg.PG), append(
		cfg.Tenant.ConnectionsOptions(),
		tenant.WithConnectionsLogger(log.With(logger.Component("tenant_connections"))),
	)...)
	defer func() { _ = conns.Close() }()

	schema := tenant.NewSynchronizer(
		tenant.PostgresMigrations(migrations.Tenant(), cfg.PG.MigrationsTable),
		cfg.Tenant.MigrateTimeout,
		log.With(logger.Component("tenant_schema")),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		tenant.NewStatsCollector(conns),
	)
	routerMetrics, err := tenant.NewRouterMetrics(registry)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		middleware.RealIP,
		environment.Middleware(environment.Parse(cfg.Log.Env)),
		middleware.Recoverer,
		tenant.Middleware(dir, conns, schema, append(cfg.Tenant.MiddlewareOptions(),
			tenant.WithBaseline(tenant.Designation{Name: tenant.SharedDesignation, DB: admin}),
			tenant.WithResolveTimeout(cfg.Tenant.ResolveTimeout),
			tenant.WithLogger(log.With(logger.Component("tenant_router"))),
			tenant.WithStateObserver(routerMetrics.Observe),
		)...),
	)
	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, cfg.Tenant.ResolveTimeout, readiness...))
	r.Get("/whoami", whoami(log))
	r.Get("/stats", connectionStats(conns))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func(l *slog.Logger) {
			if err := conns.Close(); err != nil {
				l.Error("Failed to close tenant connections", logger.Error(err))
			}
		}),
	)
	return srv.Run(ctx, r)
}
