package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tenant is the administrative record that routes a request to a database.
// Records are owned by administrative tooling; this package only reads them.
type Tenant struct {
	ID             uuid.UUID `json:"id"`
	RoutingKey     string    `json:"routing_key"`
	UniqueName     string    `json:"unique_name"`
	HasOwnDatabase bool      `json:"has_own_database"`
	DatabaseURL    string    `json:"database_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the record invariants: a routing key is present and the
// database URL is set exactly when the tenant owns a database.
func (t *Tenant) Validate() error {
	if t == nil {
		return ErrInvalidTenant
	}
	if t.RoutingKey == "" {
		return errors.Join(ErrInvalidTenant, errors.New("empty routing key"))
	}
	if t.HasOwnDatabase && t.DatabaseURL == "" {
		return errors.Join(ErrInvalidTenant, errors.New("dedicated database without url"))
	}
	if !t.HasOwnDatabase && t.DatabaseURL != "" {
		return errors.Join(ErrInvalidTenant, errors.New("database url on shared tenant"))
	}
	return nil
}

// Directory resolves tenants by routing key from the administrative database.
type Directory interface {
	// Resolve returns ErrTenantNotFound when nothing matches routingKey and
	// ErrDirectoryUnavailable when the lookup itself failed.
	Resolve(ctx context.Context, routingKey string) (*Tenant, error)
}

// DirectoryFunc adapts an ordinary function to Directory.
type DirectoryFunc func(ctx context.Context, routingKey string) (*Tenant, error)

// Resolve calls f.
func (f DirectoryFunc) Resolve(ctx context.Context, routingKey string) (*Tenant, error) {
	return f(ctx, routingKey)
}
