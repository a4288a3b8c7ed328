// Package instrumentation provides OpenTelemetry metrics and tracing for
// the comment pipeline.
//
// When disabled (Config.Enabled = false) every instrument is backed by a
// no-op provider, so instrumentation calls cost nothing and callers never
// need nil checks. The Metrics holder exposes pre-configured instruments
// for lifecycle outcomes (created, rejected, moderated, deleted, duplicate
// blocked), security signals (rate limit denials, fail-opens, attack and
// tamper detections, identity blocks), storage operations, and crypto
// operations.
//
// Sensitive values never reach telemetry: user identifiers are hashed
// before use as attributes and comment content is represented only by its
// length. The attribute constants in tracing.go document which keys are
// safe and which are reserved.
//
// Basic usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName: "comment-api",
//	    Enabled:     true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer inst.Shutdown(ctx)
//
//	inst.Metrics().RecordCommentCreated(ctx, "instagram")
package instrumentation
