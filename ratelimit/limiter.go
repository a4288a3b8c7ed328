package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/socialpulse/commentguard/security"
	"github.com/socialpulse/commentguard/storage"
)

// Operation classifies a pipeline call for quota purposes. Each class has
// its own limit shape and its own keys, so a burst of reads never starves
// writes.
type Operation string

const (
	// OpRead covers single and list retrievals (fixed window)
	OpRead Operation = "read"

	// OpWrite covers creates and content updates (token bucket)
	OpWrite Operation = "write"

	// OpModerate covers status transitions and deletions (fixed window)
	OpModerate Operation = "moderate"
)

// Key prefixes in the counter store. All keys are namespaced per identity
// so Reset can clear one caller without touching anyone else.
const (
	counterKeyPrefix = "rl:"
	bucketKeyPrefix  = "tb:"
	failureKeyPrefix = "fa:"
	blockKeyPrefix   = "bl:"
)

// Config holds the limiter's quota shapes and failure policy.
type Config struct {
	// ReadLimit requests per ReadWindow for read-class operations
	ReadLimit  int
	ReadWindow time.Duration

	// ModerateLimit requests per ModerateWindow for moderation operations
	ModerateLimit  int
	ModerateWindow time.Duration

	// WriteCapacity and WriteRefillPerSecond shape the write token bucket
	WriteCapacity        int
	WriteRefillPerSecond float64

	// FailClosed denies requests when the counter store is unreachable.
	// Default is fail-open: an infrastructure outage must not take comment
	// ingestion down with it.
	FailClosed bool

	// FailureThreshold failed attempts within FailureWindow block the
	// identity for BlockDuration
	FailureThreshold int
	FailureWindow    time.Duration
	BlockDuration    time.Duration
}

// Result is the outcome of a limit check.
type Result struct {
	// Allowed reports whether the request may proceed
	Allowed bool

	// Remaining is the quota left in the current window or bucket
	Remaining int

	// RetryAfter is how long to wait before retrying, zero when allowed
	RetryAfter time.Duration

	// ResetAt is when the window expires or the bucket refills to one token
	ResetAt time.Time

	// FailedOpen reports that the store was unreachable and the request was
	// permitted by the fail-open policy rather than by quota
	FailedOpen bool
}

// Limiter enforces per-identity quotas against a shared counter store, so
// the decision holds across every process serving traffic. Writes use a
// token bucket (burst-friendly, steady refill); reads and moderation use
// fixed windows.
type Limiter struct {
	store   storage.CounterStore
	cfg     Config
	auditor *security.Auditor
	logger  *slog.Logger
}

// New creates a limiter over the given counter store.
func New(store storage.CounterStore, cfg Config, auditor *security.Auditor, logger *slog.Logger) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = security.NewAuditor(logger, false)
	}
	return &Limiter{store: store, cfg: cfg, auditor: auditor, logger: logger}, nil
}

// Check consumes one unit of quota for the identity and operation class.
// The error return is reserved for programmer mistakes (unknown operation);
// store failures are absorbed by the configured fail mode and reported
// through Result.FailedOpen.
func (l *Limiter) Check(ctx context.Context, identity string, op Operation) (Result, error) {
	if identity == "" {
		return Result{}, fmt.Errorf("identity is required")
	}

	blocked, retryAfter, err := l.IsBlocked(ctx, identity)
	if err != nil {
		return l.failMode(identity, string(op), "block check", err), nil
	}
	if blocked {
		return Result{Allowed: false, RetryAfter: retryAfter, ResetAt: time.Now().Add(retryAfter)}, nil
	}

	switch op {
	case OpWrite:
		return l.checkBucket(ctx, identity)
	case OpRead:
		return l.checkWindow(ctx, identity, op, l.cfg.ReadLimit, l.cfg.ReadWindow)
	case OpModerate:
		return l.checkWindow(ctx, identity, op, l.cfg.ModerateLimit, l.cfg.ModerateWindow)
	default:
		return Result{}, fmt.Errorf("unknown operation class: %q", op)
	}
}

func (l *Limiter) checkWindow(ctx context.Context, identity string, op Operation, limit int, window time.Duration) (Result, error) {
	key := counterKeyPrefix + identity + ":" + string(op)

	count, remaining, err := l.store.IncrementWithWindow(ctx, key, window)
	if err != nil {
		return l.failMode(identity, string(op), "window increment", err), nil
	}

	resetAt := time.Now().Add(remaining)
	if count > int64(limit) {
		return Result{Allowed: false, RetryAfter: remaining, ResetAt: resetAt}, nil
	}

	return Result{Allowed: true, Remaining: limit - int(count), ResetAt: resetAt}, nil
}

func (l *Limiter) checkBucket(ctx context.Context, identity string) (Result, error) {
	key := bucketKeyPrefix + identity + ":" + string(OpWrite)

	res, err := l.store.TakeToken(ctx, key, l.cfg.WriteCapacity, l.cfg.WriteRefillPerSecond)
	if err != nil {
		return l.failMode(identity, string(OpWrite), "token bucket", err), nil
	}

	out := Result{Allowed: res.Allowed, Remaining: res.Remaining, ResetAt: res.ResetAt}
	if !res.Allowed {
		out.RetryAfter = time.Until(res.ResetAt)
		if out.RetryAfter < 0 {
			out.RetryAfter = 0
		}
	}
	return out, nil
}

// Status reports the identity's current quota state without consuming any.
// A blocked identity reports denied with the block's remaining duration,
// the same shape Check returns for it.
func (l *Limiter) Status(ctx context.Context, identity string, op Operation) (Result, error) {
	if identity == "" {
		return Result{}, fmt.Errorf("identity is required")
	}

	blocked, retryAfter, err := l.IsBlocked(ctx, identity)
	if err != nil {
		return l.failMode(identity, string(op), "block check", err), nil
	}
	if blocked {
		return Result{Allowed: false, RetryAfter: retryAfter, ResetAt: time.Now().Add(retryAfter)}, nil
	}

	switch op {
	case OpWrite:
		key := bucketKeyPrefix + identity + ":" + string(OpWrite)
		res, err := l.store.PeekToken(ctx, key, l.cfg.WriteCapacity, l.cfg.WriteRefillPerSecond)
		if err != nil {
			return l.failMode(identity, string(op), "bucket peek", err), nil
		}
		return Result{Allowed: res.Remaining > 0, Remaining: res.Remaining, ResetAt: res.ResetAt}, nil

	case OpRead, OpModerate:
		limit := l.cfg.ReadLimit
		if op == OpModerate {
			limit = l.cfg.ModerateLimit
		}
		key := counterKeyPrefix + identity + ":" + string(op)

		raw, err := l.store.Get(ctx, key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Result{Allowed: true, Remaining: limit}, nil
		}
		if err != nil {
			return l.failMode(identity, string(op), "window read", err), nil
		}

		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Result{}, fmt.Errorf("corrupt counter value for %s: %w", key, err)
		}
		ttl, err := l.store.TTL(ctx, key)
		if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return l.failMode(identity, string(op), "window ttl", err), nil
		}

		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		return Result{Allowed: remaining > 0, Remaining: remaining, ResetAt: time.Now().Add(ttl)}, nil

	default:
		return Result{}, fmt.Errorf("unknown operation class: %q", op)
	}
}

// RecordFailedAttempt counts a failed authentication or authorization
// attempt for the identity and blocks it once the threshold is reached
// within the window. Returns whether the identity is now blocked.
func (l *Limiter) RecordFailedAttempt(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, fmt.Errorf("identity is required")
	}

	count, _, err := l.store.IncrementWithWindow(ctx, failureKeyPrefix+identity, l.cfg.FailureWindow)
	if err != nil {
		// Losing a failure count is the fail-open trade again: worst case
		// the block arrives a few attempts late.
		l.logger.Warn("Failed attempt counter unavailable",
			"identity_hash", security.HashForLogging(identity),
			"error", err)
		return false, nil
	}

	if count < int64(l.cfg.FailureThreshold) {
		return false, nil
	}

	if err := l.store.Set(ctx, blockKeyPrefix+identity, "1", l.cfg.BlockDuration); err != nil {
		l.logger.Warn("Failed to set block flag",
			"identity_hash", security.HashForLogging(identity),
			"error", err)
		return false, nil
	}

	l.auditor.LogIdentityBlocked(identity, int(count), l.cfg.BlockDuration)
	return true, nil
}

// IsBlocked reports whether the identity carries a block flag and how long
// until it expires.
func (l *Limiter) IsBlocked(ctx context.Context, identity string) (bool, time.Duration, error) {
	key := blockKeyPrefix + identity

	_, err := l.store.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	ttl, err := l.store.TTL(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		// Flag expired between the two reads
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, ttl, nil
}

// Reset clears every limit artifact for the identity: window counters,
// the write bucket, the failure counter, and the block flag. Reserved for
// administrative unblocking.
func (l *Limiter) Reset(ctx context.Context, identity string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}

	keys := []string{
		counterKeyPrefix + identity + ":" + string(OpRead),
		counterKeyPrefix + identity + ":" + string(OpModerate),
		bucketKeyPrefix + identity + ":" + string(OpWrite),
		failureKeyPrefix + identity,
		blockKeyPrefix + identity,
	}
	if err := l.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to reset limits: %w", err)
	}
	return nil
}

// failMode resolves a counter store failure into a Result per the
// configured policy. Fail-open permits the request and leaves an audit
// trail; fail-closed denies it.
func (l *Limiter) failMode(identity, operation, stage string, err error) Result {
	l.logger.Error("Counter store failure during rate limit check",
		"stage", stage,
		"operation", operation,
		"identity_hash", security.HashForLogging(identity),
		"fail_closed", l.cfg.FailClosed,
		"error", err)

	if l.cfg.FailClosed {
		return Result{Allowed: false, RetryAfter: time.Second}
	}

	l.auditor.LogFailOpen(identity, operation)
	return Result{Allowed: true, FailedOpen: true}
}
