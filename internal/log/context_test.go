// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestContextIDs(t *testing.T) {
	//nolint:staticcheck // nil context is accepted
	ctx := ContextWithRequestID(nil, "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-2")
	ctx = ContextWithSessionKey(ctx, "abc123")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "corr-2", CorrelationIDFromContext(ctx))
	assert.Equal(t, "abc123", SessionKeyFromContext(ctx))

	assert.Empty(t, RequestIDFromContext(context.Background()))
	//nolint:staticcheck // nil context is accepted
	assert.Empty(t, SessionKeyFromContext(nil))
}

func TestWithContextAddsIDsAndSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = ContextWithRequestID(ctx, "req-9")
	ctx = ContextWithSessionKey(ctx, "sess-key")

	l := WithContext(ctx, logger)
	l.Info().Msg("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-9", entry[FieldRequestID])
	assert.Equal(t, "sess-key", entry[FieldSessionKey])
	assert.Equal(t, traceID.String(), entry[FieldTraceID])
	assert.Equal(t, spanID.String(), entry[FieldSpanID])
	assert.NotContains(t, entry, FieldCorrelationID)
}

func TestWithContextWithoutValuesKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := WithContext(context.Background(), zerolog.New(&buf))
	l.Info().Msg("plain")
	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, FieldRequestID)
	assert.NotContains(t, entry, FieldTraceID)
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	FromContext(ContextWithCorrelationID(context.Background(), "c-1")).Info().Msg("fallback")
	assert.Equal(t, "c-1", decodeLine(t, &buf)[FieldCorrelationID])

	buf.Reset()
	installed := zerolog.New(&buf).With().Str("installed", "yes").Logger()
	FromContext(installed.WithContext(context.Background())).Info().Msg("installed")
	assert.Equal(t, "yes", decodeLine(t, &buf)["installed"])
}
