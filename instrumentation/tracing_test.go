package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

// The tracing helpers must tolerate nil spans so callers never guard them.
func TestTracingHelpersNilSafe(t *testing.T) {
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "failed")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddCommentAttributes(nil, "id", "instagram", "pending")
	AddStorageAttributes(nil, "insert", "memory")
	AddSecurityAttributes(nil, "203.0.113.9")
}

func TestTracingHelpersWithSpan(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("pipeline").Start(context.Background(), "test")
	defer span.End()

	RecordError(span, errors.New("boom"))
	RecordError(span, nil) // nil error is a no-op
	SetSpanSuccess(span)
	AddCommentAttributes(span, "c-1", "tiktok", "approved")
	AddCommentAttributes(span, "", "", "") // empty values omitted
	AddSecurityAttributes(span, "")
}
