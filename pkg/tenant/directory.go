package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/niravscs/multiple-databases-demo/pkg/pg"
)

const resolveQuery = `SELECT id, routing_key, unique_name, has_own_database, database_url, created_at, updated_at
FROM tenants
WHERE lower(routing_key) = $1
LIMIT 1`

// PostgresDirectory looks tenants up in the administrative database.
type PostgresDirectory struct {
	admin   Querier
	timeout time.Duration
}

// NewPostgresDirectory returns a directory querying admin. A positive timeout
// bounds each lookup.
func NewPostgresDirectory(admin Querier, timeout time.Duration) *PostgresDirectory {
	return &PostgresDirectory{admin: admin, timeout: timeout}
}

// Resolve runs the lookup with the administrative connection designated as
// active, whatever the caller had designated, and restores the caller's
// designation afterwards even when the query fails.
func (d *PostgresDirectory) Resolve(ctx context.Context, routingKey string) (*Tenant, error) {
	key := strings.ToLower(strings.TrimSpace(routingKey))
	if key == "" {
		return nil, ErrTenantNotFound
	}

	var t Tenant
	err := WithActive(ctx, Designation{Name: AdminDesignation, DB: d.admin}, func(ctx context.Context) error {
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		return ActiveDB(ctx).QueryRow(ctx, resolveQuery, key).Scan(
			&t.ID,
			&t.RoutingKey,
			&t.UniqueName,
			&t.HasOwnDatabase,
			&t.DatabaseURL,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
	})

	switch {
	case errors.Is(err, ErrRestoreFailed):
		return nil, err
	case pg.IsNotFoundError(err):
		return nil, ErrTenantNotFound
	case pg.IsUndefinedTableError(err):
		return nil, errors.Join(ErrDirectoryUnavailable, ErrDirectoryNotMigrated, err)
	case err != nil:
		return nil, errors.Join(ErrDirectoryUnavailable, err)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
