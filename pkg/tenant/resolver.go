package tenant

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Resolver extracts the routing key from an HTTP request.
type Resolver interface {
	// Resolve returns the routing key, or an empty string if the request
	// carries none.
	Resolve(r *http.Request) (string, error)
}

// ResolverFunc is an adapter to allow the use of ordinary functions as Resolvers.
type ResolverFunc func(r *http.Request) (string, error)

// Resolve calls the function.
func (f ResolverFunc) Resolve(r *http.Request) (string, error) {
	return f(r)
}

// HostResolver uses the requested host name as the routing key.
type HostResolver struct{}

// NewHostResolver creates a resolver keyed by the Host header.
func NewHostResolver() *HostResolver { return &HostResolver{} }

// Resolve returns the lower-cased host without port.
func (HostResolver) Resolve(r *http.Request) (string, error) {
	return HostKey(r.Host), nil
}

// HostKey normalizes a host header value into a routing key.
func HostKey(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// HeaderResolver reads the routing key from a header, typically one set by a
// trusted reverse proxy.
type HeaderResolver struct {
	HeaderName string
}

// NewHeaderResolver creates a new header resolver.
func NewHeaderResolver(headerName string) *HeaderResolver {
	if headerName == "" {
		headerName = "X-Forwarded-Host"
	}
	return &HeaderResolver{HeaderName: headerName}
}

// Resolve extracts the routing key from the configured header. For
// comma-separated proxy chains the first value is used.
func (r *HeaderResolver) Resolve(req *http.Request) (string, error) {
	value := req.Header.Get(r.HeaderName)
	if first, _, ok := strings.Cut(value, ","); ok {
		value = first
	}
	return HostKey(value), nil
}

// CompositeResolver tries multiple resolvers in order until one succeeds.
type CompositeResolver struct {
	Resolvers []Resolver
}

// NewCompositeResolver creates a new composite resolver.
func NewCompositeResolver(resolvers ...Resolver) *CompositeResolver {
	return &CompositeResolver{Resolvers: resolvers}
}

// Resolve tries each resolver in order, returning the first non-empty result.
func (c *CompositeResolver) Resolve(r *http.Request) (string, error) {
	var errs []error

	for _, resolver := range c.Resolvers {
		key, err := resolver.Resolve(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if key != "" {
			return key, nil
		}
	}

	if len(errs) > 0 {
		return "", fmt.Errorf("composite resolver errors: %w", errors.Join(errs...))
	}

	return "", nil
}
