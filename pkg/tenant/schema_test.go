package tenant_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niravscs/multiple-databases-demo/pkg/tenant"
)

func acquire(t *testing.T, c *tenant.Connections, tn *tenant.Tenant) *tenant.Conn {
	t.Helper()
	conn, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	t.Cleanup(conn.Release)
	return conn
}

func staticMigrator(m *fakeMigrator, built *atomic.Int32) tenant.MigratorFunc {
	return func(tenant.Handle) (tenant.Migrator, error) {
		if built != nil {
			built.Add(1)
		}
		return m, nil
	}
}

func newTestSynchronizer(fn tenant.MigratorFunc) *tenant.Synchronizer {
	return tenant.NewSynchronizer(fn, 0, slog.New(slog.DiscardHandler))
}

func TestSynchronizer_NothingPending(t *testing.T) {
	t.Parallel()
	conn := acquire(t, newTestConnections(t, &fakeDialer{}), dedicatedTenant("acme"))
	m := &fakeMigrator{}
	var built atomic.Int32
	s := newTestSynchronizer(staticMigrator(m, &built))

	require.NoError(t, s.ApplyPending(context.Background(), conn))
	require.NoError(t, s.ApplyPending(context.Background(), conn))

	assert.True(t, conn.Synced())
	assert.Equal(t, int32(2), m.checks.Load())
	assert.Zero(t, m.ups.Load())
	assert.Equal(t, int32(1), built.Load(), "migrator is built once per connection")
}

func TestSynchronizer_AppliesPending(t *testing.T) {
	t.Parallel()
	conn := acquire(t, newTestConnections(t, &fakeDialer{}), dedicatedTenant("acme"))
	m := &fakeMigrator{}
	m.pending.Store(true)
	s := newTestSynchronizer(staticMigrator(m, nil))

	assert.False(t, conn.Synced())
	require.NoError(t, s.ApplyPending(context.Background(), conn))
	require.NoError(t, s.ApplyPending(context.Background(), conn))

	assert.True(t, conn.Synced())
	assert.Equal(t, int32(1), m.ups.Load())
}

func TestSynchronizer_ConcurrentRunsAreSerialized(t *testing.T) {
	t.Parallel()
	conn := acquire(t, newTestConnections(t, &fakeDialer{}), dedicatedTenant("acme"))
	m := &fakeMigrator{}
	m.pending.Store(true)
	s := newTestSynchronizer(staticMigrator(m, nil))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.ApplyPending(context.Background(), conn))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), m.ups.Load())
}

func TestSynchronizer_FailedVersion(t *testing.T) {
	t.Parallel()
	conn := acquire(t, newTestConnections(t, &fakeDialer{}), dedicatedTenant("acme"))
	cause := errors.New(`relation "accounts" does not exist`)
	m := &fakeMigrator{upErr: &goose.PartialError{
		Failed: &goose.MigrationResult{
			Source: &goose.Source{Type: goose.TypeSQL, Path: "00002_create_documents.sql", Version: 2},
			Error:  cause,
		},
		Err: cause,
	}}
	m.pending.Store(true)
	s := newTestSynchronizer(staticMigrator(m, nil))

	err := s.ApplyPending(context.Background(), conn)
	require.ErrorIs(t, err, tenant.ErrMigration)
	assert.ErrorIs(t, err, cause)

	var merr *tenant.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, int64(2), merr.Version)
	assert.False(t, conn.Synced())
}

func TestSynchronizer_CheckFailure(t *testing.T) {
	t.Parallel()
	conn := acquire(t, newTestConnections(t, &fakeDialer{}), dedicatedTenant("acme"))
	m := &fakeMigrator{pendingErr: errors.New("permission denied")}
	s := newTestSynchronizer(staticMigrator(m, nil))

	err := s.ApplyPending(context.Background(), conn)
	var merr *tenant.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Zero(t, merr.Version)
	assert.Zero(t, m.ups.Load())
}

func TestSynchronizer_MigratorBuildFailure(t *testing.T) {
	t.Parallel()
	conn := acquire(t, newTestConnections(t, &fakeDialer{}), dedicatedTenant("acme"))
	s := newTestSynchronizer(func(tenant.Handle) (tenant.Migrator, error) {
		return nil, errors.New("no migrations")
	})
	assert.ErrorIs(t, s.ApplyPending(context.Background(), conn), tenant.ErrMigration)
}

func TestSynchronizer_MigratorClosedWithConnection(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d)
	tn := dedicatedTenant("acme")
	m := &fakeMigrator{}

	conn, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	require.NoError(t, newTestSynchronizer(staticMigrator(m, nil)).ApplyPending(context.Background(), conn))
	conn.Release()

	c.Evict(tn.ID)
	require.Eventually(t, func() bool {
		return m.closed.Load() && d.handle(0).closed.Load()
	}, time.Second, 5*time.Millisecond)
}

func TestPostgresMigrations_RejectsForeignHandle(t *testing.T) {
	t.Parallel()
	_, err := tenant.PostgresMigrations(nil, "")(&fakeHandle{})
	assert.Error(t, err)
}

func TestSyncPolicy_UnmarshalText(t *testing.T) {
	t.Parallel()
	tests := map[string]tenant.SyncPolicy{
		"always": tenant.SyncAlways,
		"ONCE":   tenant.SyncOnEstablish,
		" once ": tenant.SyncOnEstablish,
		"":       tenant.SyncAlways,
	}
	for in, want := range tests {
		var p tenant.SyncPolicy
		require.NoError(t, p.UnmarshalText([]byte(in)), in)
		assert.Equal(t, want, p, in)
	}

	var p tenant.SyncPolicy
	assert.Error(t, p.UnmarshalText([]byte("sometimes")))
}
