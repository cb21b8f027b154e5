package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niravscs/multiple-databases-demo/pkg/logger"
)

type ctxKey struct{}

func valueExtractor(ctx context.Context) (slog.Attr, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return slog.String("value", v), ok
}

func decodeAndReset(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	buf.Reset()
	return m
}

func TestLogHandlerDecorator(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	empty := func(context.Context) (slog.Attr, bool) { return slog.Attr{}, true }
	log := slog.New(logger.NewLogHandlerDecorator(
		slog.NewJSONHandler(&buf, nil),
		valueExtractor, nil, empty,
	))

	log.InfoContext(context.Background(), "no value")
	rec := decodeAndReset(t, &buf)
	assert.NotContains(t, rec, "value")
	assert.NotContains(t, rec, "")

	ctx := context.WithValue(context.Background(), ctxKey{}, "first")
	log.InfoContext(ctx, "with value")
	assert.Equal(t, "first", decodeAndReset(t, &buf)["value"])

	ctx = context.WithValue(ctx, ctxKey{}, "second")
	log.With("component", "x").InfoContext(ctx, "derived logger")
	rec = decodeAndReset(t, &buf)
	assert.Equal(t, "second", rec["value"], "extractors run per record")
	assert.Equal(t, "x", rec["component"])

	log.WithGroup("g").InfoContext(ctx, "grouped", "k", 1)
	rec = decodeAndReset(t, &buf)
	group, ok := rec["g"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "second", group["value"])
}
