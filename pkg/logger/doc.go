// Package logger builds *slog.Logger instances with environment presets and
// context-driven attributes.
//
// New applies Option values on top of a JSON, info-level default. Presets
// (WithDevelopment, WithStaging, WithProduction, or WithEnvironment picking
// one by name) set format, level and the service/env attributes. FromConfig
// turns the environment-populated Config into options.
//
// Context extractors add request-scoped attributes, such as the request id or
// the tenant being served, to every record logged with that context:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, cfg.Service),
//		logger.WithContextExtractors(
//			requestid.LoggerExtractor(),
//			tenant.LoggerExtractor(),
//		),
//	)
//	log.InfoContext(r.Context(), "served", logger.Duration(time.Since(start)))
//
// Attribute helpers in attr.go keep key names consistent. Error and Errors
// return an empty attribute for nil errors, so they can be passed
// unconditionally.
package logger
