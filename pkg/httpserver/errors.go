package httpserver

import "errors"

var (
	// ErrStart is returned by Run when the server could not start or stopped
	// for any reason other than a shutdown.
	ErrStart = errors.New("http server failed to start")
	// ErrShutdown is returned when in-flight requests did not drain in time.
	ErrShutdown = errors.New("http server did not shut down gracefully")
)
