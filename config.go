package commentguard

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/socialpulse/commentguard/instrumentation"
	"github.com/socialpulse/commentguard/security"
)

// Default configuration values. The duplicate window, failure threshold, and
// block duration are product defaults, not load-bearing constants; override
// them per deployment.
const (
	DefaultMaxContentLength  = 10000
	DefaultMaxURLCount       = 3
	DefaultDuplicateWindow   = 24 * time.Hour
	DefaultDuplicateCacheTTL = 30 * time.Second
	DefaultFailureThreshold  = 10
	DefaultFailureWindow     = time.Hour
	DefaultBlockDuration     = time.Hour
)

// Config holds the comment pipeline configuration.
// Structured using composition for better organization and maintainability.
type Config struct {
	// Crypto holds encryption key material
	Crypto CryptoConfig

	// RateLimit holds per-operation-class quota configuration
	RateLimit RateLimitConfig

	// Validation holds content validation settings
	Validation ValidationConfig

	// Lifecycle holds comment lifecycle settings
	Lifecycle LifecycleConfig

	// Production enables the production error posture: internal and crypto
	// failures are surfaced to callers with generic messages only.
	Production bool

	// EnableAuditLogging enables structured security audit events
	// (sensitive identifiers hashed before logging).
	EnableAuditLogging bool

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Instrumentation provides OpenTelemetry metrics and tracing.
	// Optional; nil selects a disabled (no-op) instance.
	Instrumentation *instrumentation.Instrumentation
}

// CryptoConfig holds encryption key material for the crypto engine.
type CryptoConfig struct {
	// EncryptionKey is the current symmetric key as a 64-character hex
	// string (32 bytes, AES-256). Required.
	// Generate with security.GenerateEncryptionKey().
	EncryptionKey string

	// PreviousEncryptionKey optionally holds the prior key during rotation.
	// Decryption falls back to it when the current key does not match.
	PreviousEncryptionKey string
}

// RateLimitConfig holds rate limiting configuration for the three
// operation classes. Zero values select the documented defaults.
type RateLimitConfig struct {
	// ReadLimit is the fixed-window limit for read-class operations.
	ReadLimit  int
	ReadWindow time.Duration

	// ModerateLimit is the fixed-window limit for moderation operations.
	ModerateLimit  int
	ModerateWindow time.Duration

	// WriteCapacity is the token bucket capacity for write-class operations.
	WriteCapacity int

	// WriteRefillPerSecond is the bucket refill rate in tokens per second.
	WriteRefillPerSecond float64

	// FailClosed selects the strict mode: counter-store failures deny the
	// request instead of permitting it. The default (fail-open) is a
	// deliberate availability-over-strictness trade-off.
	FailClosed bool

	// FailureThreshold is how many failed attempts within FailureWindow
	// trigger a temporary block.
	FailureThreshold int
	FailureWindow    time.Duration

	// BlockDuration is how long a blocked identity stays blocked.
	BlockDuration time.Duration

	// ThrottleRate/ThrottleBurst configure the in-process pre-filter that
	// runs ahead of the shared counter store. Zero disables it.
	ThrottleRate  int
	ThrottleBurst int
}

// ValidationConfig holds content validation settings.
type ValidationConfig struct {
	// MaxContentLength bounds sanitized comment content. Default: 10000.
	MaxContentLength int

	// MaxURLCount is the spam heuristic URL threshold. Default: 3.
	MaxURLCount int
}

// LifecycleConfig holds comment lifecycle settings.
type LifecycleConfig struct {
	// DuplicateWindow is how far back identical content from the same owner
	// is suppressed. Default: 24h.
	DuplicateWindow time.Duration

	// DuplicateCacheTTL is how long a duplicate-check result is cached
	// in-process to absorb bursty retries. Default: 30s.
	DuplicateCacheTTL time.Duration
}

// Validate checks required fields and fills defaults in place.
func (c *Config) Validate() error {
	if err := security.ValidateEncryptionKey(c.Crypto.EncryptionKey); err != nil {
		return fmt.Errorf("crypto.encryption_key: %w", err)
	}
	if c.Crypto.PreviousEncryptionKey != "" {
		if err := security.ValidateEncryptionKey(c.Crypto.PreviousEncryptionKey); err != nil {
			return fmt.Errorf("crypto.previous_encryption_key: %w", err)
		}
	}

	if c.RateLimit.ReadLimit <= 0 {
		c.RateLimit.ReadLimit = 100
	}
	if c.RateLimit.ReadWindow <= 0 {
		c.RateLimit.ReadWindow = time.Minute
	}
	if c.RateLimit.ModerateLimit <= 0 {
		c.RateLimit.ModerateLimit = 30
	}
	if c.RateLimit.ModerateWindow <= 0 {
		c.RateLimit.ModerateWindow = time.Minute
	}
	if c.RateLimit.WriteCapacity <= 0 {
		c.RateLimit.WriteCapacity = 10
	}
	if c.RateLimit.WriteRefillPerSecond <= 0 {
		c.RateLimit.WriteRefillPerSecond = 0.5
	}
	if c.RateLimit.FailureThreshold <= 0 {
		c.RateLimit.FailureThreshold = DefaultFailureThreshold
	}
	if c.RateLimit.FailureWindow <= 0 {
		c.RateLimit.FailureWindow = DefaultFailureWindow
	}
	if c.RateLimit.BlockDuration <= 0 {
		c.RateLimit.BlockDuration = DefaultBlockDuration
	}

	if c.Validation.MaxContentLength <= 0 {
		c.Validation.MaxContentLength = DefaultMaxContentLength
	}
	if c.Validation.MaxURLCount <= 0 {
		c.Validation.MaxURLCount = DefaultMaxURLCount
	}

	if c.Lifecycle.DuplicateWindow <= 0 {
		c.Lifecycle.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.Lifecycle.DuplicateCacheTTL <= 0 {
		c.Lifecycle.DuplicateCacheTTL = DefaultDuplicateCacheTTL
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return nil
}
