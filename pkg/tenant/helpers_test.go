package tenant_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/niravscs/multiple-databases-demo/pkg/tenant"
)

var errNotSupported = errors.New("not supported by fake")

// fakeHandle stands in for a tenant connection pool.
type fakeHandle struct {
	name   string
	closed atomic.Bool
}

func (h *fakeHandle) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (h *fakeHandle) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNotSupported
}

func (h *fakeHandle) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: errNotSupported}
}

func (h *fakeHandle) Ping(context.Context) error { return nil }

func (h *fakeHandle) Close() { h.closed.Store(true) }

// fakeRow scans a tenant record in the column order of the directory query.
type fakeRow struct {
	t   tenant.Tenant
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 7 {
		return errors.New("unexpected column count")
	}
	*dest[0].(*uuid.UUID) = r.t.ID
	*dest[1].(*string) = r.t.RoutingKey
	*dest[2].(*string) = r.t.UniqueName
	*dest[3].(*bool) = r.t.HasOwnDatabase
	*dest[4].(*string) = r.t.DatabaseURL
	*dest[5].(*time.Time) = r.t.CreatedAt
	*dest[6].(*time.Time) = r.t.UpdatedAt
	return nil
}

// fakeQuerier answers QueryRow with queryRow.
type fakeQuerier struct {
	fakeHandle
	queryRow func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.queryRow(ctx, sql, args...)
}

// fakeDialer counts dials and hands out fakeHandles.
type fakeDialer struct {
	mu      sync.Mutex
	dials   atomic.Int32
	handles []*fakeHandle
	fail    atomic.Int32 // number of upcoming dials to fail
	gate    chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, t *tenant.Tenant) (tenant.Handle, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.fail.Load() > 0 {
		d.fail.Add(-1)
		return nil, errors.New("connection refused")
	}
	h := &fakeHandle{name: t.UniqueName}
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()
	return h, nil
}

func (d *fakeDialer) handle(i int) *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.handles) {
		return nil
	}
	return d.handles[i]
}

// fakeMigrator records how it was driven.
type fakeMigrator struct {
	pending    atomic.Bool
	upErr      error
	checks     atomic.Int32
	ups        atomic.Int32
	closed     atomic.Bool
	pendingErr error
}

func (m *fakeMigrator) HasPending(context.Context) (bool, error) {
	m.checks.Add(1)
	if m.pendingErr != nil {
		return false, m.pendingErr
	}
	return m.pending.Load(), nil
}

func (m *fakeMigrator) Up(context.Context) ([]int64, error) {
	m.ups.Add(1)
	if m.upErr != nil {
		return nil, m.upErr
	}
	m.pending.Store(false)
	return []int64{1, 2}, nil
}

func (m *fakeMigrator) Close() error {
	m.closed.Store(true)
	return nil
}

func sharedTenant(key string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:         uuid.New(),
		RoutingKey: key,
		UniqueName: key,
	}
}

func dedicatedTenant(key string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:             uuid.New(),
		RoutingKey:     key,
		UniqueName:     key,
		HasOwnDatabase: true,
		DatabaseURL:    "postgres://localhost:5432/" + key,
	}
}
