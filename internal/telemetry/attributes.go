// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys.
const (
	MediaKindKey      = "media.kind"
	MediaPathKey      = "media.path"
	MediaOutcomeKey   = "media.outcome"
	MetadataSourceKey = "media.metadata.source"
	HeatmapStartedKey = "media.heatmap.started"
	SessionKeyKey     = "session.key"
	ErrorTypeKey      = "error.type"
)

// MediaAttributes describes one façade request.
func MediaAttributes(kind, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(MediaKindKey, kind),
		attribute.String(MediaPathKey, path),
	}
}

// SessionAttributes identifies the transcode session serving a request.
func SessionAttributes(key string) []attribute.KeyValue {
	if key == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String(SessionKeyKey, key)}
}

// OutcomeAttributes marks how a request ended; errorType is empty on success.
func OutcomeAttributes(outcome, errorType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(MediaOutcomeKey, outcome)}
	if errorType != "" {
		attrs             = append(attrs, attribute.String(ErrorTypeKey, errorType))
	}
	return attrs
}
