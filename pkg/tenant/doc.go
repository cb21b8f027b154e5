// Package tenant routes HTTP requests to the database of the tenant they
// belong to.
//
// Every request carries a routing key, by default its host name. The key is
// looked up in the tenants table of the administrative database (Directory).
// Tenants without a database of their own are served by the shared database;
// for the others a pooled connection is opened on first use, kept in a
// bounded cache (Connections), its schema brought up to date
// (SchemaSynchronizer) and designated as active for the rest of the request.
//
// # Designations
//
// The connection serving a unit of work is called its designation. It lives
// in a stack stored in the request context, so concurrent requests never see
// each other's connection. Code that needs to run against another database
// temporarily uses WithActive, which restores the previous designation on
// every exit path:
//
//	err := tenant.WithActive(ctx, tenant.Designation{Name: tenant.AdminDesignation, DB: admin},
//		func(ctx context.Context) error {
//			_, err := tenant.ActiveDB(ctx).Exec(ctx, "UPDATE tenants SET updated_at = now() WHERE id = $1", id)
//			return err
//		})
//
// A designation that cannot be restored is reported as ErrRestoreFailed and
// ends the request.
//
// # Usage
//
//	conns := tenant.NewConnections(tenant.PostgresDialer(pgCfg), cfg.ConnectionsOptions()...)
//	defer conns.Close()
//
//	schema := tenant.NewSynchronizer(
//		tenant.PostgresMigrations(migrations.Tenant(), pgCfg.MigrationsTable),
//		cfg.MigrateTimeout, log,
//	)
//
//	r := chi.NewRouter()
//	r.Use(tenant.Middleware(
//		tenant.NewPostgresDirectory(adminPool, cfg.ResolveTimeout),
//		conns, schema,
//		tenant.WithBaseline(tenant.Designation{Name: tenant.SharedDesignation, DB: adminPool}),
//		tenant.WithLogger(log),
//	))
//
// Handlers read the tenant with FromContext and query through ActiveDB.
//
// # Failures
//
// An unknown routing key is answered with 404 and the body "Domain not
// found". Directory, connection, migration and restore failures, as well as
// handler panics, are logged and answered with 500 and the body "Internal
// Server Error". Nothing is retried within a request; a failed connection is
// not cached, so the next request dials again.
package tenant
