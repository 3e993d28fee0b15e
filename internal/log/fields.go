// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldSessionKey    = "session_key"
	FieldOpType        = "op_type"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media fields
	FieldSource   = "source"
	FieldKind     = "kind"
	FieldRoot     = "root"
	FieldProvider = "provider"

	// Path fields
	FieldPath         = "path"
	FieldRealPath     = "real_path"
	FieldSessionDir   = "session_dir"
	FieldPlaylistPath = "playlist_path"
)
