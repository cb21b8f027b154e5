package tenant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niravscs/multiple-databases-demo/pkg/logger"
	"github.com/niravscs/multiple-databases-demo/pkg/pg"
)

// Migrator applies the versioned schema of tenant databases to one database.
// *pg.Migrator satisfies it.
type Migrator interface {
	HasPending(ctx context.Context) (bool, error)
	Up(ctx context.Context) ([]int64, error)
	Close() error
}

// MigratorFunc builds the Migrator for a tenant connection.
type MigratorFunc func(h Handle) (Migrator, error)

// PostgresMigrations returns a MigratorFunc running the goose migrations
// found in fsys against pgx pool handles.
func PostgresMigrations(fsys fs.FS, table string) MigratorFunc {
	return func(h Handle) (Migrator, error) {
		pool, ok := h.(*pgxpool.Pool)
		if !ok {
			return nil, fmt.Errorf("unsupported tenant handle %T", h)
		}
		return pg.NewMigrator(pool, fsys, table)
	}
}

// SchemaSynchronizer brings a tenant database up to date.
type SchemaSynchronizer interface {
	ApplyPending(ctx context.Context, conn *Conn) error
}

// SyncPolicy decides when the router synchronizes a tenant schema.
type SyncPolicy string

const (
	// SyncAlways checks for pending migrations on every request.
	SyncAlways SyncPolicy = "always"
	// SyncOnEstablish synchronizes once per newly established connection.
	SyncOnEstablish SyncPolicy = "once"
)

// UnmarshalText lets env parsing reject unknown policies.
func (p *SyncPolicy) UnmarshalText(text []byte) error {
	switch v := SyncPolicy(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case SyncAlways, SyncOnEstablish:
		*p = v
		return nil
	case "":
		*p = SyncAlways
		return nil
	default:
		return fmt.Errorf("unknown sync policy %q", string(text))
	}
}

// Synchronizer applies pending migrations to tenant connections. Runs on the
// same connection are serialized; the migrator itself takes a database lock
// against other processes.
type Synchronizer struct {
	newMigrator MigratorFunc
	timeout     time.Duration
	log         *slog.Logger
}

// NewSynchronizer creates a Synchronizer. A positive timeout bounds each run.
func NewSynchronizer(newMigrator MigratorFunc, timeout time.Duration, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{newMigrator: newMigrator, timeout: timeout, log: log}
}

// ApplyPending is idempotent: with nothing pending it only performs the
// version check. Migrations run in version order; on failure the ones already
// applied stay applied and the error is a *MigrationError naming the failing
// version.
func (s *Synchronizer) ApplyPending(ctx context.Context, conn *Conn) error {
	conn.syncMu.Lock()
	defer conn.syncMu.Unlock()

	if conn.migrator == nil {
		m, err := s.newMigrator(conn.handle)
		if err != nil {
			return &MigrationError{Err: err}
		}
		conn.migrator = m
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pending, err := conn.migrator.HasPending(ctx)
	if err != nil {
		return &MigrationError{Err: err}
	}
	if !pending {
		conn.synced.Store(true)
		return nil
	}

	start := time.Now()
	applied, err := conn.migrator.Up(ctx)
	if err != nil {
		var merr *MigrationError
		if errors.As(err, &merr) {
			return merr
		}
		version, _ := pg.FailedVersion(err)
		return &MigrationError{Version: version, Err: err}
	}

	conn.synced.Store(true)
	s.log.InfoContext(ctx, "Tenant schema synchronized",
		logger.TenantID(conn.TenantID),
		slog.Any("versions", applied),
		logger.Duration(time.Since(start)),
	)
	return nil
}
