package tenant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/niravscs/multiple-databases-demo/pkg/cache"
	"github.com/niravscs/multiple-databases-demo/pkg/logger"
	"github.com/niravscs/multiple-databases-demo/pkg/pg"
)

// Handle is a live connection to a tenant database. *pgxpool.Pool satisfies it.
type Handle interface {
	Querier
	Ping(ctx context.Context) error
	Close()
}

// DialFunc opens a connection to the dedicated database of t.
type DialFunc func(ctx context.Context, t *Tenant) (Handle, error)

// PostgresDialer opens a pgx pool per tenant with the sizing of base and a
// single attempt; retrying is left to the next request.
func PostgresDialer(base pg.Config) DialFunc {
	return func(ctx context.Context, t *Tenant) (Handle, error) {
		cfg := base.WithConnectionString(t.DatabaseURL)
		cfg.RetryAttempts = 1
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// Conn is a cached tenant connection. It stays open while any request holds
// it, even after it has been evicted.
type Conn struct {
	TenantID    uuid.UUID
	handle      Handle
	established time.Time
	lastUsed    atomic.Int64
	refs        atomic.Int64
	retired     atomic.Bool
	closeOnce   sync.Once

	// guarded by syncMu
	syncMu   sync.Mutex
	migrator Migrator
	synced   atomic.Bool
}

func newConn(id uuid.UUID, h Handle) *Conn {
	now := time.Now()
	c := &Conn{TenantID: id, handle: h, established: now}
	c.lastUsed.Store(now.UnixNano())
	return c
}

// DB returns the connection's query surface.
func (c *Conn) DB() Querier { return c.handle }

// Handle returns the underlying connection.
func (c *Conn) Handle() Handle { return c.handle }

// Established reports when the connection was opened.
func (c *Conn) Established() time.Time { return c.established }

// LastUsed reports when the connection was last handed out.
func (c *Conn) LastUsed() time.Time { return time.Unix(0, c.lastUsed.Load()) }

// Synced reports whether the schema has been synchronized on this connection.
func (c *Conn) Synced() bool { return c.synced.Load() }

// InUse reports whether any request currently holds the connection.
func (c *Conn) InUse() bool { return c.refs.Load() > 0 }

// tryAcquire registers a holder. It fails once the connection is retired.
func (c *Conn) tryAcquire() bool {
	c.refs.Add(1)
	if c.retired.Load() {
		c.Release()
		return false
	}
	c.lastUsed.Store(time.Now().UnixNano())
	return true
}

// Release hands the connection back after a request. Every successful
// Connections.GetOrCreate must be paired with exactly one Release.
func (c *Conn) Release() {
	if c.refs.Add(-1) <= 0 && c.retired.Load() {
		c.shutdown()
	}
}

// retire marks the connection as no longer cached and closes it once the
// last holder releases it.
func (c *Conn) retire() {
	c.retired.Store(true)
	if c.refs.Load() <= 0 {
		c.shutdown()
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.syncMu.Lock()
		if c.migrator != nil {
			_ = c.migrator.Close()
			c.migrator = nil
		}
		c.syncMu.Unlock()
		c.handle.Close()
	})
}

// ConnectionSource hands out tenant connections.
type ConnectionSource interface {
	GetOrCreate(ctx context.Context, t *Tenant) (*Conn, error)
}

// ConnectionStats is a snapshot of the connection cache counters.
// Evicted counts every connection dropped from the cache, Reaped only those
// dropped for being idle.
type ConnectionStats struct {
	Open        int   `json:"open"`
	Established int64 `json:"established"`
	Failed      int64 `json:"failed"`
	Evicted     int64 `json:"evicted"`
	Reaped      int64 `json:"reaped"`
}

var errConnRetired = errors.New("connection evicted before use")

// Connections memoizes one live connection per tenant. Creation is
// single-flighted per tenant, the number of cached connections is bounded
// with LRU eviction, and connections idle for longer than the idle timeout
// are closed by a background reaper.
type Connections struct {
	dial         DialFunc
	dialTimeout  time.Duration
	idleTimeout  time.Duration
	reapInterval time.Duration
	dialLimiter  *rate.Limiter
	log          *slog.Logger

	group singleflight.Group
	conns *cache.LRUCache[uuid.UUID, *Conn]

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}
	done   chan struct{}

	established atomic.Int64
	failed      atomic.Int64
	evicted     atomic.Int64
	reaped      atomic.Int64
}

// ConnectionsOption configures Connections.
type ConnectionsOption func(*Connections)

// WithMaxConnections bounds the number of cached tenant connections.
func WithMaxConnections(n int) ConnectionsOption {
	return func(c *Connections) {
		if n > 0 {
			c.conns = cache.NewLRUCache[uuid.UUID, *Conn](n)
		}
	}
}

// WithIdleTimeout closes connections unused for longer than d. Zero disables reaping.
func WithIdleTimeout(d time.Duration) ConnectionsOption {
	return func(c *Connections) { c.idleTimeout = d }
}

// WithReapInterval sets how often idle connections are looked for.
func WithReapInterval(d time.Duration) ConnectionsOption {
	return func(c *Connections) {
		if d > 0 {
			c.reapInterval = d
		}
	}
}

// WithDialTimeout bounds a single connection attempt.
func WithDialTimeout(d time.Duration) ConnectionsOption {
	return func(c *Connections) { c.dialTimeout = d }
}

// WithDialRateLimit throttles how fast new tenant connections are opened
// across all tenants, so a burst of first requests cannot storm the database
// servers. A non-positive limit disables throttling.
func WithDialRateLimit(limit float64, burst int) ConnectionsOption {
	return func(c *Connections) {
		if limit > 0 {
			c.dialLimiter = rate.NewLimiter(rate.Limit(limit), max(burst, 1))
		}
	}
}

// WithConnectionsLogger sets the logger.
func WithConnectionsLogger(l *slog.Logger) ConnectionsOption {
	return func(c *Connections) {
		if l != nil {
			c.log = l
		}
	}
}

// DefaultMaxConnections is the default bound of cached tenant connections.
const DefaultMaxConnections = 100

// NewConnections creates a connection cache dialing with dial.
// Close must be called to stop the reaper and close all connections.
func NewConnections(dial DialFunc, opts ...ConnectionsOption) *Connections {
	c := &Connections{
		dial:         dial,
		dialTimeout:  10 * time.Second,
		idleTimeout:  15 * time.Minute,
		reapInterval: time.Minute,
		log:          slog.Default(),
		conns:        cache.NewLRUCache[uuid.UUID, *Conn](DefaultMaxConnections),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.conns.SetEvictCallback(func(_ uuid.UUID, conn *Conn) {
		c.evicted.Add(1)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			conn.retire()
		}()
	})

	if c.idleTimeout > 0 {
		go c.reapLoop()
	} else {
		close(c.done)
	}
	return c
}

// GetOrCreate returns the cached connection for t, opening it on first use.
// Concurrent first calls for the same tenant share a single dial. A failed
// dial leaves nothing behind, so the next call tries again. The returned
// connection must be released with Conn.Release.
func (c *Connections) GetOrCreate(ctx context.Context, t *Tenant) (*Conn, error) {
	if t == nil || !t.HasOwnDatabase {
		return nil, ErrNoDedicatedDatabase
	}
	if c.isClosed() {
		return nil, ErrConnectionsClosed
	}

	if conn, ok := c.conns.Get(t.ID); ok && conn.tryAcquire() {
		return conn, nil
	}

	ch := c.group.DoChan(t.ID.String(), func() (any, error) {
		return c.establish(ctx, t)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		conn := res.Val.(*Conn)
		if !conn.tryAcquire() {
			return nil, errors.Join(ErrConnectionEstablish, errConnRetired)
		}
		return conn, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrConnectionEstablish, ctx.Err())
	}
}

// establish runs inside the single flight for t.ID.
func (c *Connections) establish(ctx context.Context, t *Tenant) (*Conn, error) {
	// A previous flight may have stored the connection between our cache
	// miss and entering this flight.
	if conn, ok := c.conns.Peek(t.ID); ok {
		return conn, nil
	}

	// The dial is shared by every waiter, so one caller going away must not
	// cancel it.
	dctx := context.WithoutCancel(ctx)
	if c.dialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, c.dialTimeout)
		defer cancel()
	}

	if c.dialLimiter != nil {
		if err := c.dialLimiter.Wait(dctx); err != nil {
			c.failed.Add(1)
			return nil, errors.Join(ErrConnectionEstablish, err)
		}
	}

	start := time.Now()
	h, err := c.dial(dctx, t)
	if err != nil {
		c.failed.Add(1)
		return nil, errors.Join(ErrConnectionEstablish, err)
	}

	conn := newConn(t.ID, h)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		h.Close()
		return nil, ErrConnectionsClosed
	}
	c.conns.Put(t.ID, conn)
	c.established.Add(1)

	c.log.InfoContext(ctx, "Tenant connection established",
		logger.TenantID(t.ID),
		logger.Duration(time.Since(start)),
	)
	return conn, nil
}

// Evict drops the cached connection of a tenant. It is closed once no
// request holds it anymore.
func (c *Connections) Evict(id uuid.UUID) bool {
	_, ok := c.conns.Remove(id)
	return ok
}

// Reap closes every idle connection not held by a request and returns how
// many were closed.
func (c *Connections) Reap() int {
	if c.idleTimeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-c.idleTimeout)

	n := c.conns.PruneFunc(func(_ uuid.UUID, conn *Conn) bool {
		return !conn.InUse() && conn.LastUsed().Before(cutoff)
	})

	c.reaped.Add(int64(n))
	return n
}

func (c *Connections) reapLoop() {
	ticker := time.NewTicker(c.reapInterval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			if n := c.Reap(); n > 0 {
				c.log.Debug("Closed idle tenant connections", slog.Int("count", n))
			}
		case <-c.stop:
			return
		}
	}
}

// Len returns the number of cached connections.
func (c *Connections) Len() int { return c.conns.Len() }

// Stats returns a snapshot of the cache counters.
func (c *Connections) Stats() ConnectionStats {
	return ConnectionStats{
		Open:        c.conns.Len(),
		Established: c.established.Load(),
		Failed:      c.failed.Load(),
		Evicted:     c.evicted.Load(),
		Reaped:      c.reaped.Load(),
	}
}

func (c *Connections) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close stops the reaper and closes every cached connection. Connections held
// by in-flight requests are closed when released.
func (c *Connections) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.idleTimeout > 0 {
		close(c.stop)
	}
	<-c.done

	c.conns.Clear()
	c.wg.Wait()
	return nil
}
