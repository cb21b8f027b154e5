// Package pg bootstraps PostgreSQL access on top of pgx/v5 and goose/v3.
//
// Connect opens a *pgxpool.Pool from a Config, retrying with linear back-off
// and verifying the pool with a ping. Config is populated from the environment
// for the administrative database; WithConnectionString derives a config for
// any other database with the same pool sizing.
//
// Migrator wraps a goose Provider bound to one pool and one set of migration
// files. It holds no global state, so every tenant database can own a migrator
// and run it concurrently with the others. Migrate is the one-shot variant used
// at startup:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.Admin(), cfg, log); err != nil {
//		return err
//	}
//
// Healthcheck adapts a pool to the readiness probe signature used by
// httpserver.ReadinessHandler.
//
// Error helpers classify pgx errors: IsNotFoundError and
// IsUndefinedTableError. FailedVersion extracts the
// failing migration version from an error returned by Migrator.Up.
package pg
