package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the comment pipeline
type Metrics struct {
	// Lifecycle metrics
	CommentsCreated   metric.Int64Counter
	CommentsRejected  metric.Int64Counter
	CommentsModerated metric.Int64Counter
	CommentsDeleted   metric.Int64Counter
	DuplicatesBlocked metric.Int64Counter

	// Security metrics
	RateLimitExceeded metric.Int64Counter
	RateLimitFailOpen metric.Int64Counter
	AttacksDetected   metric.Int64Counter
	TamperDetected    metric.Int64Counter
	IdentitiesBlocked metric.Int64Counter

	// In-process state gauges, observed via RegisterSizeCallbacks
	DuplicateCacheSize        metric.Int64ObservableGauge
	ThrottleTrackedIdentities metric.Int64ObservableGauge

	// Storage metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Crypto metrics
	EncryptionOperationsTotal metric.Int64Counter
	EncryptionDuration        metric.Float64Histogram

	// Audit metrics
	AuditEventsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	pipelineMeter := inst.Meter("pipeline")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	m.CommentsCreated, err = pipelineMeter.Int64Counter(
		"comments.created",
		metric.WithDescription("Number of comments accepted and persisted"),
		metric.WithUnit("{comment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments.created counter: %w", err)
	}

	m.CommentsRejected, err = pipelineMeter.Int64Counter(
		"comments.rejected",
		metric.WithDescription("Number of comments rejected by validation, by rule"),
		metric.WithUnit("{comment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments.rejected counter: %w", err)
	}

	m.CommentsModerated, err = pipelineMeter.Int64Counter(
		"comments.moderated",
		metric.WithDescription("Number of moderation transitions applied, by target status"),
		metric.WithUnit("{comment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments.moderated counter: %w", err)
	}

	m.CommentsDeleted, err = pipelineMeter.Int64Counter(
		"comments.deleted",
		metric.WithDescription("Number of comments soft-deleted"),
		metric.WithUnit("{comment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments.deleted counter: %w", err)
	}

	m.DuplicatesBlocked, err = pipelineMeter.Int64Counter(
		"comments.duplicates_blocked",
		metric.WithDescription("Number of submissions rejected as duplicate content"),
		metric.WithUnit("{comment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comments.duplicates_blocked counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"rate_limit.exceeded",
		metric.WithDescription("Number of rate limit denials, by operation class"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	m.RateLimitFailOpen, err = securityMeter.Int64Counter(
		"rate_limit.fail_open",
		metric.WithDescription("Number of requests permitted because the counter store was unreachable"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.fail_open counter: %w", err)
	}

	m.AttacksDetected, err = securityMeter.Int64Counter(
		"attacks.detected",
		metric.WithDescription("Number of attack patterns detected in submissions, by category"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attacks.detected counter: %w", err)
	}

	m.TamperDetected, err = securityMeter.Int64Counter(
		"content.tamper_detected",
		metric.WithDescription("Number of content hash verification failures on read"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create content.tamper_detected counter: %w", err)
	}

	m.IdentitiesBlocked, err = securityMeter.Int64Counter(
		"identities.blocked",
		metric.WithDescription("Number of identities blocked for repeated failures"),
		metric.WithUnit("{identity}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create identities.blocked counter: %w", err)
	}

	m.DuplicateCacheSize, err = pipelineMeter.Int64ObservableGauge(
		"duplicate_cache.size",
		metric.WithDescription("Entries in the in-process duplicate-check cache"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duplicate_cache.size gauge: %w", err)
	}

	m.ThrottleTrackedIdentities, err = pipelineMeter.Int64ObservableGauge(
		"throttle.tracked_identities",
		metric.WithDescription("Identities tracked by the in-process throttle"),
		metric.WithUnit("{identity}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create throttle.tracked_identities gauge: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.EncryptionOperationsTotal, err = securityMeter.Int64Counter(
		"encryption.operations.total",
		metric.WithDescription("Total number of encryption/decryption operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.operations.total counter: %w", err)
	}

	m.EncryptionDuration, err = securityMeter.Float64Histogram(
		"encryption.duration",
		metric.WithDescription("Encryption/decryption operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryption.duration histogram: %w", err)
	}

	m.AuditEventsTotal, err = securityMeter.Int64Counter(
		"audit.events.total",
		metric.WithDescription("Total number of audit events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordCommentCreated records an accepted comment
func (m *Metrics) RecordCommentCreated(ctx context.Context, platform string) {
	m.CommentsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
	))
}

// RecordCommentRejected records a validation rejection
func (m *Metrics) RecordCommentRejected(ctx context.Context, rule string) {
	m.CommentsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule", rule),
	))
}

// RecordModeration records an applied moderation transition
func (m *Metrics) RecordModeration(ctx context.Context, toStatus string) {
	m.CommentsModerated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", toStatus),
	))
}

// RecordCommentDeleted records a soft deletion
func (m *Metrics) RecordCommentDeleted(ctx context.Context) {
	m.CommentsDeleted.Add(ctx, 1)
}

// RecordDuplicateBlocked records a duplicate-content rejection
func (m *Metrics) RecordDuplicateBlocked(ctx context.Context) {
	m.DuplicatesBlocked.Add(ctx, 1)
}

// RecordRateLimitExceeded records a quota denial
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, operationClass string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operationClass),
	))
}

// RecordFailOpen records a request permitted by the fail-open policy
func (m *Metrics) RecordFailOpen(ctx context.Context, operationClass string) {
	m.RateLimitFailOpen.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operationClass),
	))
}

// RecordAttackDetected records an attack pattern hit
func (m *Metrics) RecordAttackDetected(ctx context.Context, category string) {
	m.AttacksDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}

// RecordTamperDetected records a content hash verification failure
func (m *Metrics) RecordTamperDetected(ctx context.Context) {
	m.TamperDetected.Add(ctx, 1)
}

// RecordIdentityBlocked records a repeated-failure block
func (m *Metrics) RecordIdentityBlocked(ctx context.Context) {
	m.IdentitiesBlocked.Add(ctx, 1)
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordEncryptionOperation records an encryption/decryption operation
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}

	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.EncryptionDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
