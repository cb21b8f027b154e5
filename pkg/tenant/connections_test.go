package tenant_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niravscs/multiple-databases-demo/pkg/tenant"
)

func newTestConnections(t *testing.T, d *fakeDialer, opts ...tenant.ConnectionsOption) *tenant.Connections {
	t.Helper()
	opts = append([]tenant.ConnectionsOption{
		tenant.WithConnectionsLogger(slog.New(slog.DiscardHandler)),
		tenant.WithIdleTimeout(0),
	}, opts...)
	c := tenant.NewConnections(d.Dial, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnections_ReusesConnection(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d)
	tn := dedicatedTenant("acme")

	first, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	first.Release()

	second, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	defer second.Release()

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), d.dials.Load())
	assert.Equal(t, tn.ID, second.TenantID)
	assert.Same(t, d.handle(0), second.Handle())
	assert.False(t, second.Established().IsZero())

	stats := c.Stats()
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, int64(1), stats.Established)
}

func TestConnections_SingleDialUnderConcurrency(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{gate: make(chan struct{})}
	c := newTestConnections(t, d)
	tn := dedicatedTenant("acme")

	const n = 32
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns []*tenant.Conn
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := c.GetOrCreate(context.Background(), tn)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}()
	}

	require.Eventually(t, func() bool { return d.dials.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(d.gate)
	wg.Wait()

	require.Len(t, conns, n)
	for _, conn := range conns {
		assert.Same(t, conns[0], conn)
		conn.Release()
	}
	assert.Equal(t, int32(1), d.dials.Load())
	assert.Equal(t, 1, c.Len())
}

func TestConnections_FailedDialIsNotCached(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	d.fail.Store(1)
	c := newTestConnections(t, d)
	tn := dedicatedTenant("acme")

	_, err := c.GetOrCreate(context.Background(), tn)
	require.ErrorIs(t, err, tenant.ErrConnectionEstablish)
	assert.Zero(t, c.Len())

	conn, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	conn.Release()

	assert.Equal(t, int32(2), d.dials.Load())
	assert.Equal(t, int64(1), c.Stats().Failed)
}

func TestConnections_SharedTenant(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d)

	_, err := c.GetOrCreate(context.Background(), sharedTenant("acme"))
	assert.ErrorIs(t, err, tenant.ErrNoDedicatedDatabase)
	_, err = c.GetOrCreate(context.Background(), nil)
	assert.ErrorIs(t, err, tenant.ErrNoDedicatedDatabase)
	assert.Zero(t, d.dials.Load())
}

func TestConnections_CallerCancelDoesNotAbortDial(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{gate: make(chan struct{})}
	c := newTestConnections(t, d)
	tn := dedicatedTenant("acme")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCreate(ctx, tn)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return d.dials.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, tenant.ErrConnectionEstablish)
	assert.ErrorIs(t, err, context.Canceled)

	close(d.gate)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)

	conn, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	conn.Release()
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestConnections_LRUEviction(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d, tenant.WithMaxConnections(1))
	a, b := dedicatedTenant("a"), dedicatedTenant("b")

	connA, err := c.GetOrCreate(context.Background(), a)
	require.NoError(t, err)

	connB, err := c.GetOrCreate(context.Background(), b)
	require.NoError(t, err)
	defer connB.Release()

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evicted)

	// a is still held, so its handle stays open until released.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, d.handle(0).closed.Load())
	_, err = connA.DB().Exec(context.Background(), "SELECT 1")
	assert.NoError(t, err)

	connA.Release()
	require.Eventually(t, func() bool { return d.handle(0).closed.Load() }, time.Second, 5*time.Millisecond)
	assert.False(t, d.handle(1).closed.Load())

	again, err := c.GetOrCreate(context.Background(), a)
	require.NoError(t, err)
	again.Release()
	assert.Equal(t, int32(3), d.dials.Load(), "evicted tenant is dialed again")
}

func TestConnections_Evict(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d)
	tn := dedicatedTenant("acme")

	conn, err := c.GetOrCreate(context.Background(), tn)
	require.NoError(t, err)
	conn.Release()

	assert.True(t, c.Evict(tn.ID))
	assert.False(t, c.Evict(tn.ID))
	require.Eventually(t, func() bool { return d.handle(0).closed.Load() }, time.Second, 5*time.Millisecond)
}

func TestConnections_Reap(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d,
		tenant.WithIdleTimeout(10*time.Millisecond),
		tenant.WithReapInterval(time.Hour),
	)
	idle, busy := dedicatedTenant("idle"), dedicatedTenant("busy")

	conn, err := c.GetOrCreate(context.Background(), idle)
	require.NoError(t, err)
	conn.Release()

	held, err := c.GetOrCreate(context.Background(), busy)
	require.NoError(t, err)
	assert.True(t, held.InUse())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, c.Reap())
	assert.Equal(t, 1, c.Len())
	require.Eventually(t, func() bool { return d.handle(0).closed.Load() }, time.Second, 5*time.Millisecond)
	assert.False(t, d.handle(1).closed.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Reaped)
	assert.Equal(t, int64(1), stats.Evicted)

	held.Release()
}

func TestConnections_ReapLoop(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d,
		tenant.WithIdleTimeout(10*time.Millisecond),
		tenant.WithReapInterval(10*time.Millisecond),
	)

	conn, err := c.GetOrCreate(context.Background(), dedicatedTenant("acme"))
	require.NoError(t, err)
	conn.Release()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return d.handle(0).closed.Load() }, time.Second, 5*time.Millisecond)
}

func TestConnections_Close(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := tenant.NewConnections(d.Dial, tenant.WithConnectionsLogger(slog.New(slog.DiscardHandler)))

	idle, err := c.GetOrCreate(context.Background(), dedicatedTenant("idle"))
	require.NoError(t, err)
	idle.Release()

	held, err := c.GetOrCreate(context.Background(), dedicatedTenant("held"))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.True(t, d.handle(0).closed.Load())
	assert.False(t, d.handle(1).closed.Load(), "held connection closes on release")
	held.Release()
	assert.True(t, d.handle(1).closed.Load())

	_, err = c.GetOrCreate(context.Background(), dedicatedTenant("late"))
	assert.ErrorIs(t, err, tenant.ErrConnectionsClosed)
}

func TestConfig_Options(t *testing.T) {
	t.Parallel()
	cfg := tenant.Config{
		MaxConnections: 2,
		SyncPolicy:     tenant.SyncOnEstablish,
		HostHeader:     "X-Tenant-Host",
		SkipPaths:      []string{"/healthz"},
	}
	assert.Len(t, cfg.ConnectionsOptions(), 5)
	assert.Len(t, cfg.MiddlewareOptions(), 3)

	cfg.HostHeader = ""
	assert.Len(t, cfg.MiddlewareOptions(), 2)
}

func TestConnections_DialRateLimit(t *testing.T) {
	t.Parallel()
	d := &fakeDialer{}
	c := newTestConnections(t, d,
		tenant.WithDialRateLimit(0.001, 1),
		tenant.WithDialTimeout(50*time.Millisecond),
	)

	conn, err := c.GetOrCreate(context.Background(), dedicatedTenant("first"))
	require.NoError(t, err)
	conn.Release()

	_, err = c.GetOrCreate(context.Background(), dedicatedTenant("second"))
	assert.ErrorIs(t, err, tenant.ErrConnectionEstablish)
	assert.Equal(t, int32(1), d.dials.Load(), "throttled attempt never dials")
	assert.Equal(t, int64(1), c.Stats().Failed)
}
