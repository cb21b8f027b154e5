package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/niravscs/multiple-databases-demo/pkg/logger"
)

// State is a step of the per-request routing state machine.
type State int

const (
	StateIdle State = iota
	StateResolvingTenant
	StateTenantNotFound
	StateSharedTenant
	StateDedicatedTenant
	StateEnsuringConnection
	StateSynchronizingSchema
	StateActivatingConnection
	StateDelegate
	StateFailed
	StateCleanup
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateResolvingTenant:      "resolving_tenant",
	StateTenantNotFound:       "tenant_not_found",
	StateSharedTenant:         "shared_tenant",
	StateDedicatedTenant:      "dedicated_tenant",
	StateEnsuringConnection:   "ensuring_connection",
	StateSynchronizingSchema:  "synchronizing_schema",
	StateActivatingConnection: "activating_connection",
	StateDelegate:             "delegate",
	StateFailed:               "failed",
	StateCleanup:              "cleanup",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// terminal reports whether s decides how a request ends. A later StateFailed
// overrides an earlier StateSharedTenant or StateDedicatedTenant.
func (s State) terminal() bool {
	switch s {
	case StateTenantNotFound, StateSharedTenant, StateDedicatedTenant, StateFailed:
		return true
	}
	return false
}

// Outcome returns the state that decided how the routed request carried by
// ctx ended so far. It is final once StateCleanup has been observed.
func Outcome(ctx context.Context) (State, bool) {
	s := scopeFrom(ctx)
	if s == nil {
		return StateIdle, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.outcome != StateIdle
}

// Middleware routes every request to its tenant's database.
//
// The tenant is resolved from the routing key through dir. Shared tenants are
// served with whatever designation was active when the request arrived
// (see WithBaseline). For tenants owning a database the connection is taken
// from conns, its schema synchronized with schema, and the connection
// designated as active in the request context for the downstream handler.
// The designation is restored before the middleware returns on every path.
//
// Unknown routing keys get 404 "Domain not found"; every other failure gets
// 500 "Internal Server Error" and is logged. Nothing is retried.
func Middleware(dir Directory, conns ConnectionSource, schema SchemaSynchronizer, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		resolver:     NewHostResolver(),
		errorHandler: defaultErrorHandler,
		logger:       slog.Default(),
		syncPolicy:   SyncAlways,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	rt := &router{cfg: cfg, dir: dir, conns: conns, schema: schema}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if skip != "" && strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			rt.serve(w, r, next)
		})
	}
}

type router struct {
	cfg    *config
	dir    Directory
	conns  ConnectionSource
	schema SchemaSynchronizer
}

func (rt *router) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := NewScope(r.Context(), rt.baseline(r.Context()))
	baseDepth := Depth(ctx)
	r = r.WithContext(ctx)
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

	rt.transition(r, StateIdle)
	defer rt.cleanup(r, baseDepth)
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			rt.fail(ww, r, "", fmt.Errorf("panic: %v", p))
		}
	}()

	if key, err := rt.route(ww, r, next); err != nil {
		rt.fail(ww, r, key, err)
	}
}

func (rt *router) baseline(ctx context.Context) Designation {
	if rt.cfg.baseline.DB != nil {
		return rt.cfg.baseline
	}
	d, _ := Active(ctx)
	return d
}

func (rt *router) route(w http.ResponseWriter, r *http.Request, next http.Handler) (string, error) {
	rt.transition(r, StateResolvingTenant)

	key, err := rt.cfg.resolver.Resolve(r)
	if err != nil {
		return key, err
	}

	t, err := rt.resolve(r.Context(), key)
	if err != nil {
		return key, err
	}

	r = r.WithContext(WithTenant(r.Context(), t))
	if !t.HasOwnDatabase {
		rt.transition(r, StateSharedTenant)
		rt.transition(r, StateDelegate)
		next.ServeHTTP(w, r)
		return key, nil
	}

	rt.transition(r, StateDedicatedTenant)
	return key, rt.serveDedicated(w, r, t, next)
}

func (rt *router) resolve(ctx context.Context, key string) (*Tenant, error) {
	if key == "" {
		return nil, ErrTenantNotFound
	}
	if rt.cfg.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.resolveTimeout)
		defer cancel()
	}
	return rt.dir.Resolve(ctx, key)
}

func (rt *router) serveDedicated(w http.ResponseWriter, r *http.Request, t *Tenant, next http.Handler) (err error) {
	ctx := r.Context()
	log := rt.cfg.logger

	rt.transition(r, StateEnsuringConnection)
	log.InfoContext(ctx, "Tenant resolved, ensuring database connection", logger.TenantID(t.ID))
	conn, err := rt.conns.GetOrCreate(ctx, t)
	if err != nil {
		return err
	}
	defer conn.Release()

	if rt.cfg.syncPolicy != SyncOnEstablish || !conn.Synced() {
		rt.transition(r, StateSynchronizingSchema)
		if err := rt.schema.ApplyPending(ctx, conn); err != nil {
			return err
		}
	}

	log.InfoContext(ctx, "Tenant database ready", logger.TenantID(t.ID))

	rt.transition(r, StateActivatingConnection)
	actx, release := Activate(ctx, TenantDesignation(t, conn.DB()))
	defer func() {
		if rerr := release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	rt.transition(r, StateDelegate)
	next.ServeHTTP(w, r.WithContext(actx))
	return nil
}

// fail logs err and answers the request unless the handler already started
// the response. A restore failure after the response started aborts it.
func (rt *router) fail(w middleware.WrapResponseWriter, r *http.Request, key string, err error) {
	ctx := r.Context()
	log := rt.cfg.logger

	if errors.Is(err, ErrTenantNotFound) {
		rt.transition(r, StateTenantNotFound)
		log.InfoContext(ctx, "Tenant not found", logger.RoutingKey(key))
	} else {
		rt.transition(r, StateFailed)
		log.ErrorContext(ctx, failureMessage(err), logger.RoutingKey(key), logger.Error(err))
	}

	if w.Status() != 0 {
		if errors.Is(err, ErrRestoreFailed) {
			panic(http.ErrAbortHandler)
		}
		return
	}
	rt.cfg.errorHandler(w, r, err)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrRestoreFailed):
		return "Active connection could not be restored"
	case errors.Is(err, ErrDirectoryNotMigrated):
		return "Tenant directory table is missing, administrative migrations have not run"
	case errors.Is(err, ErrDirectoryUnavailable):
		return "Tenant directory unavailable"
	case errors.Is(err, ErrConnectionEstablish):
		return "Failed to establish tenant database connection"
	case errors.Is(err, ErrMigration):
		return "Failed to synchronize tenant schema"
	default:
		return "An unexpected error occurred"
	}
}

// cleanup returns the scope to the depth it had when the request arrived.
func (rt *router) cleanup(r *http.Request, baseDepth int) {
	rt.transition(r, StateCleanup)
	if s := scopeFrom(r.Context()); s != nil {
		if n := s.truncate(baseDepth); n > 0 {
			rt.cfg.logger.ErrorContext(r.Context(), "Dropped leaked connection designations",
				slog.Int("count", n),
			)
		}
	}
}

func (rt *router) transition(r *http.Request, s State) {
	if s.terminal() {
		if sc := scopeFrom(r.Context()); sc != nil {
			sc.mu.Lock()
			sc.outcome = s
			sc.mu.Unlock()
		}
	}
	rt.cfg.logger.DebugContext(r.Context(), "Tenant router", slog.String("state", s.String()))
	if rt.cfg.observer != nil {
		rt.cfg.observer(r, s)
	}
}

// RequireTenant rejects requests that reach it without a resolved tenant.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
			writePlain(w, http.StatusNotFound, NotFoundBody)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
