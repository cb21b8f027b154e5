// Package requestid attaches a correlation ID to every HTTP request.
//
// Middleware accepts a client supplied X-Request-ID when it is at most 128
// characters of [a-zA-Z0-9_-], and otherwise generates a UUIDv7. The ID is
// stored in the request context, echoed in the response header and made
// available to chi middlewares. LoggerExtractor adds it to every record
// logged through pkg/logger with the request context.
package requestid
