package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the query surface shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
// Application code reads the active Querier from the request context instead
// of holding a database handle of its own.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Well-known designation names.
const (
	AdminDesignation  = "admin"
	SharedDesignation = "shared"
)

// Designation names the connection that serves the current unit of work.
type Designation struct {
	Name string
	DB   Querier
}

// TenantDesignation returns the designation of a tenant's dedicated database.
func TenantDesignation(t *Tenant, db Querier) Designation {
	return Designation{Name: "tenant:" + t.UniqueName, DB: db}
}

// Release ends an activation. It reports ErrRestoreFailed when the previous
// designation could not be restored. Calling it more than once is a no-op.
type Release func() error

type scopeKey struct{}

type frame struct {
	d Designation
}

// scope is the stack of designations of one request. It is never shared
// between requests.
type scope struct {
	mu      sync.Mutex
	stack   []*frame
	outcome State
}

// NewScope returns a context carrying a fresh designation scope with baseline
// as its bottom entry. A zero baseline leaves the scope empty.
func NewScope(ctx context.Context, baseline Designation) context.Context {
	s := &scope{}
	if baseline.DB != nil {
		s.stack = append(s.stack, &frame{d: baseline})
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeFrom(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// Active returns the designation currently serving ctx.
func Active(ctx context.Context) (Designation, bool) {
	s := scopeFrom(ctx)
	if s == nil {
		return Designation{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return Designation{}, false
	}
	return s.stack[len(s.stack)-1].d, true
}

// ActiveDB returns the Querier currently serving ctx, or nil.
func ActiveDB(ctx context.Context) Querier {
	d, _ := Active(ctx)
	return d.DB
}

// Depth returns the number of designations stacked in the scope of ctx.
func Depth(ctx context.Context) int {
	s := scopeFrom(ctx)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// Activate designates d as active for ctx and returns the context to pass
// down together with the Release restoring the prior designation. When ctx
// carries no scope a new, empty one is created.
//
//	ctx, release := tenant.Activate(ctx, d)
//	defer release()
func Activate(ctx context.Context, d Designation) (context.Context, Release) {
	s := scopeFrom(ctx)
	if s == nil {
		ctx = NewScope(ctx, Designation{})
		s = scopeFrom(ctx)
	}

	f := &frame{d: d}
	s.mu.Lock()
	s.stack = append(s.stack, f)
	s.mu.Unlock()

	var once sync.Once
	return ctx, func() error {
		var err error
		once.Do(func() { err = s.pop(f) })
		return err
	}
}

// WithActive runs body with d designated as active and restores the previous
// designation on every exit path, including a panic in body. A restore
// failure is joined to body's error.
func WithActive(ctx context.Context, d Designation, body func(ctx context.Context) error) (err error) {
	ctx, release := Activate(ctx, d)
	defer func() {
		if rerr := release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return body(ctx)
}

// pop removes f. Anything stacked above f leaked out of its own scope; it is
// dropped as well so the designation below f becomes active again, and the
// leak is reported.
func (s *scope) pop(f *frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] != f {
			continue
		}
		leaked := len(s.stack) - 1 - i
		clear(s.stack[i:])
		s.stack = s.stack[:i]
		if leaked > 0 {
			return fmt.Errorf("%w: %d designation(s) still active above %q", ErrRestoreFailed, leaked, f.d.Name)
		}
		return nil
	}
	return fmt.Errorf("%w: %q is no longer active", ErrRestoreFailed, f.d.Name)
}

// truncate drops everything above depth and returns how many entries that was.
func (s *scope) truncate(depth int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) <= depth {
		return 0
	}
	n := len(s.stack) - depth
	clear(s.stack[depth:])
	s.stack = s.stack[:depth]
	return n
}
