package instrumentation

import (
	"context"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
	if inst.Metrics() == nil {
		t.Error("Metrics() = nil")
	}
	if inst.MeterProvider() == nil {
		t.Error("MeterProvider() = nil")
	}
	if inst.TracerProvider() == nil {
		t.Error("TracerProvider() = nil")
	}
}

func TestNewDisabledUsesNoopProviders(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording against no-op instruments must not panic
	ctx := context.Background()
	m := inst.Metrics()
	m.RecordCommentCreated(ctx, "instagram")
	m.RecordCommentRejected(ctx, "xss_detected")
	m.RecordModeration(ctx, "approved")
	m.RecordCommentDeleted(ctx)
	m.RecordDuplicateBlocked(ctx)
	m.RecordRateLimitExceeded(ctx, "write")
	m.RecordFailOpen(ctx, "read")
	m.RecordAttackDetected(ctx, "xss")
	m.RecordTamperDetected(ctx)
	m.RecordIdentityBlocked(ctx)
	m.RecordStorageOperation(ctx, "insert", "success", 1.5)
	m.RecordEncryptionOperation(ctx, "encrypt", 0.2)
	m.RecordAuditEvent(ctx, "comment_created")
}

func TestMeterAndTracerScopes(t *testing.T) {
	inst, err := New(Config{ServiceName: "test-service", Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Meter("pipeline") == nil {
		t.Error("Meter() = nil")
	}
	if inst.Tracer("pipeline") == nil {
		t.Error("Tracer() = nil")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestShouldLogClientIPs(t *testing.T) {
	inst, err := New(Config{LogClientIPs: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs() = false, want true")
	}

	inst, err = New(Config{LogClientIPs: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs() = true, want false")
	}
}

func TestRegisterSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = inst.RegisterSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 7 },
	)
	if err != nil {
		t.Errorf("RegisterSizeCallbacks() error = %v", err)
	}

	// Nil callbacks are permitted
	if err := inst.RegisterSizeCallbacks(nil, nil); err != nil {
		t.Errorf("RegisterSizeCallbacks(nil, nil) error = %v", err)
	}
}
