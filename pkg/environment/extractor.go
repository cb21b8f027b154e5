package environment

import (
	"context"
	"log/slog"
)

// LoggerExtractor adds env to records logged with a context carrying an
// Environment. It matches logger.ContextExtractor.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		env := FromContext(ctx)
		return slog.String("env", string(env)), env != ""
	}
}
