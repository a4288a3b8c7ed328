package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
//
// SECURITY WARNING: Never attach sensitive values (plaintext author IDs,
// encryption keys, full comment content) to traces or metrics. Only attach
// metadata such as platforms, statuses, rule names, and hashed identifiers.
// Traces are persisted for extended periods, accessible to wider audiences
// than production systems, and replicated across monitoring infrastructure.
const (
	// Comment lifecycle attributes - metadata only
	AttrCommentID      = "comment.id"
	AttrUserIDHash     = "comment.user_id_hash" // hashed, never the raw user id
	AttrPlatform       = "comment.platform"
	AttrStatus         = "comment.status"
	AttrTargetStatus   = "comment.target_status"
	AttrValidationRule = "comment.validation_rule"
	AttrContentLength  = "comment.content_length"

	// RESERVED - DO NOT USE: never set these to actual values. Use
	// AttrContentLength or a boolean presence flag instead.
	AttrContent  = "comment.content"
	AttrAuthorID = "comment.author_id"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Security attributes
	AttrRateLimitClass      = "security.rate_limit.class"
	AttrClientIP            = "security.client_ip"
	AttrAuditEventType      = "security.audit.event_type"
	AttrAttackCategory      = "security.attack.category"
	AttrEncryptionOperation = "security.encryption.operation"
	AttrKeyVersion          = "security.key_version"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddCommentAttributes adds comment lifecycle attributes to a span (nil-safe)
func AddCommentAttributes(span trace.Span, commentID, platform, status string) {
	if commentID != "" {
		SetSpanAttributes(span, attribute.String(AttrCommentID, commentID))
	}
	if platform != "" {
		SetSpanAttributes(span, attribute.String(AttrPlatform, platform))
	}
	if status != "" {
		SetSpanAttributes(span, attribute.String(AttrStatus, status))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddSecurityAttributes adds security attributes to a span (nil-safe).
//
// PRIVACY NOTE: client IPs may be PII. Check ShouldLogClientIPs() before
// calling:
//
//	if inst.ShouldLogClientIPs() {
//	    AddSecurityAttributes(span, clientIP)
//	}
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
