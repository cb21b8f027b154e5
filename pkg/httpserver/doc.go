// Package httpserver runs an http.Handler with graceful shutdown.
//
// Server.Run blocks until its context is cancelled, SIGINT or SIGTERM is
// received, or the listener fails. Shutdown drains in-flight requests within
// the configured timeout and then runs the stop hooks, which is where
// resources used by handlers, such as database pools, are released.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(func(*slog.Logger) { pool.Close() }),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// LivenessHandler and ReadinessHandler implement the usual probe endpoints;
// readiness checks have the func(context.Context) error shape returned by
// pg.Healthcheck and redis.Healthcheck.
package httpserver
