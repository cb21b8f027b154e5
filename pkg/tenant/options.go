package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ErrorHandler writes the response for a request the router could not serve.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// StateObserver is notified of every router state transition.
type StateObserver func(r *http.Request, s State)

// config holds middleware configuration.
type config struct {
	resolver       Resolver
	errorHandler   ErrorHandler
	skipPaths      []string
	logger         *slog.Logger
	baseline       Designation
	syncPolicy     SyncPolicy
	resolveTimeout time.Duration
	observer       StateObserver
}

// Option configures the middleware.
type Option func(*config)

// WithResolver sets how the routing key is extracted. Defaults to the Host header.
func WithResolver(resolver Resolver) Option {
	return func(c *config) {
		if resolver != nil {
			c.resolver = resolver
		}
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithSkipPaths sets path prefixes that bypass tenant routing.
func WithSkipPaths(paths []string) Option {
	return func(c *config) {
		c.skipPaths = paths
	}
}

// WithLogger sets a custom logger for the middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBaseline sets the designation active at the start of every request,
// which is what shared tenants are served with.
func WithBaseline(d Designation) Option {
	return func(c *config) {
		c.baseline = d
	}
}

// WithSyncPolicy sets when schemas of dedicated databases are synchronized.
func WithSyncPolicy(p SyncPolicy) Option {
	return func(c *config) {
		if p != "" {
			c.syncPolicy = p
		}
	}
}

// WithResolveTimeout bounds the directory lookup of each request.
func WithResolveTimeout(d time.Duration) Option {
	return func(c *config) {
		c.resolveTimeout = d
	}
}

// WithStateObserver registers a callback for router state transitions.
func WithStateObserver(o StateObserver) Option {
	return func(c *config) {
		c.observer = o
	}
}

// Response bodies written by the default error handler.
const (
	NotFoundBody      = "Domain not found"
	InternalErrorBody = "Internal Server Error"
)

// defaultErrorHandler never writes error details into the response.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrTenantNotFound) {
		writePlain(w, http.StatusNotFound, NotFoundBody)
		return
	}
	writePlain(w, http.StatusInternalServerError, InternalErrorBody)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
