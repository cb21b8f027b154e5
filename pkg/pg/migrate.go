package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/pressly/goose/v3/lock"
)

// Migrator applies a fixed set of goose migrations to one database.
// Unlike goose's package-level API it keeps no global state, so migrators for
// different databases can run concurrently.
type Migrator struct {
	provider *goose.Provider
	db       *sql.DB
}

// NewMigrator bridges pool to database/sql for goose and prepares the
// migrations found at the root of fsys. A postgres advisory lock serialises
// concurrent runs against the same database, including across processes.
// Close releases the bridge; the pool itself stays open.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, table string) (*Migrator, error) {
	if table == "" {
		table = "schema_migrations"
	}

	store, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return nil, errors.Join(ErrFailedToInitMigrations, err)
	}

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, errors.Join(ErrFailedToInitMigrations, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider("", db, fsys,
		goose.WithStore(store),
		goose.WithSessionLocker(locker),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrFailedToInitMigrations, err)
	}

	return &Migrator{provider: provider, db: db}, nil
}

// HasPending reports whether any migration is not yet applied.
func (m *Migrator) HasPending(ctx context.Context) (bool, error) {
	pending, err := m.provider.HasPending(ctx)
	if err != nil {
		return false, errors.Join(ErrFailedToApplyMigrations, err)
	}
	return pending, nil
}

// Up applies all pending migrations in version order and returns the versions
// that were applied. On failure the returned error carries the failing
// version, see FailedVersion.
func (m *Migrator) Up(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		if r != nil && r.Source != nil && r.Error == nil {
			applied = append(applied, r.Source.Version)
		}
	}
	if err != nil {
		return applied, errors.Join(ErrFailedToApplyMigrations, err)
	}
	return applied, nil
}

// Close releases the database/sql bridge.
func (m *Migrator) Close() error {
	return m.provider.Close()
}

// FailedVersion extracts the version of the migration that failed from an
// error returned by Up.
func FailedVersion(err error) (int64, bool) {
	var partial *goose.PartialError
	if errors.As(err, &partial) && partial.Failed != nil && partial.Failed.Source != nil {
		return partial.Failed.Source.Version, true
	}
	return 0, false
}

// Migrate brings the database behind pool up to date with fsys. It is meant
// for startup of the administrative database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, cfg Config, log logger) error {
	m, err := NewMigrator(pool, fsys, cfg.MigrationsTable)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close migration connection", "error", err)
		}
	}()

	applied, err := m.Up(ctx)
	for _, v := range applied {
		log.InfoContext(ctx, "Applied migration", "version", v)
	}
	return err
}
