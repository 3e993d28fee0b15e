// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
	sessionKeyKey
)

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func valueFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores the id of an in-flight worker operation.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return withValue(ctx, correlationIDKey, id)
}

// ContextWithSessionKey stores the streaming session a request belongs to.
func ContextWithSessionKey(ctx context.Context, key string) context.Context {
	return withValue(ctx, sessionKeyKey, key)
}

func RequestIDFromContext(ctx context.Context) string {
	return valueFrom(ctx, requestIDKey)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return valueFrom(ctx, correlationIDKey)
}

func SessionKeyFromContext(ctx context.Context) string {
	return valueFrom(ctx, sessionKeyKey)
}

// WithContext adds the ids carried by ctx, and the active span when there
// is one, to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	fields := map[string]any{}
	for name, key := range map[string]ctxKey{
		FieldRequestID:     requestIDKey,
		FieldCorrelationID: correlationIDKey,
		FieldSessionKey:    sessionKeyKey,
	} {
		if v := valueFrom(ctx, key); v != "" {
			fields[name] = v
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields[FieldTraceID] = sc.TraceID().String()
		fields[FieldSpanID] = sc.SpanID().String()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With().Fields(fields).Logger()
}

// FromContext returns the request logger installed by Middleware, or the
// base logger enriched from ctx when there is none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	l := WithContext(ctx, Base())
	return &l
}
