// Package environment carries the deployment environment (development,
// staging, production) through request contexts.
//
// Parse normalizes configuration values, Middleware stores the environment in
// every request context, and LoggerExtractor exposes it to pkg/logger.
package environment
