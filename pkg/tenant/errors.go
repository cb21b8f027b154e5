package tenant

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is returned when no tenant matches the routing key.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrDirectoryUnavailable is returned when the administrative database
	// could not be queried.
	ErrDirectoryUnavailable = errors.New("tenant directory unavailable")

	// ErrDirectoryNotMigrated accompanies ErrDirectoryUnavailable when the
	// tenants table does not exist in the administrative database.
	ErrDirectoryNotMigrated = errors.New("tenant directory schema is missing")

	// ErrInvalidTenant is returned for records violating the tenant invariants.
	ErrInvalidTenant = errors.New("invalid tenant record")

	// ErrConnectionEstablish is returned when a tenant database connection
	// could not be opened.
	ErrConnectionEstablish = errors.New("failed to establish tenant connection")

	// ErrNoDedicatedDatabase is returned when a connection is requested for a
	// tenant served by the shared database.
	ErrNoDedicatedDatabase = errors.New("tenant has no dedicated database")

	// ErrConnectionsClosed is returned after the connection cache was closed.
	ErrConnectionsClosed = errors.New("tenant connection cache is closed")

	// ErrMigration matches every *MigrationError.
	ErrMigration = errors.New("tenant schema migration failed")

	// ErrRestoreFailed signals that a connection designation could not be
	// restored. It is fatal for the request.
	ErrRestoreFailed = errors.New("failed to restore active connection")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")
)

// MigrationError reports a failed schema synchronization. Version is the
// migration that failed, zero when the failure happened before any step ran.
type MigrationError struct {
	Version int64
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("%s at version %d: %v", ErrMigration, e.Version, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrMigration, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMigration) hold for every MigrationError.
func (e *MigrationError) Is(target error) bool { return target == ErrMigration }
