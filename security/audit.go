package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/socialpulse/commentguard/internal/util"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	CommentID string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", HashForLogging(event.UserID),
		"comment_id", event.CommentID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogCommentCreated logs a successful comment creation
func (a *Auditor) LogCommentCreated(userID, commentID string, platform string) {
	a.LogEvent(Event{
		Type:      EventCommentCreated,
		UserID:    userID,
		CommentID: commentID,
		Details: map[string]any{
			"platform": platform,
		},
	})
}

// LogCommentRejected logs a comment rejected by validation or detection
func (a *Auditor) LogCommentRejected(userID, field, rule string) {
	a.LogEvent(Event{
		Type:   EventCommentRejected,
		UserID: userID,
		Details: map[string]any{
			"field": field,
			"rule":  rule,
		},
	})
}

// LogDuplicateBlocked logs a duplicate-content rejection
func (a *Auditor) LogDuplicateBlocked(userID, contentHash string) {
	a.LogEvent(Event{
		Type:   EventDuplicateBlocked,
		UserID: userID,
		Details: map[string]any{
			"content_hash": util.SafeTruncate(contentHash, 16),
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(userID, ipAddress, operation string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"operation": operation,
		},
	})
}

// LogIdentityBlocked logs a temporary block placed after repeated failures
func (a *Auditor) LogIdentityBlocked(identity string, failures int, duration time.Duration) {
	a.LogEvent(Event{
		Type:   EventIdentityBlocked,
		UserID: identity,
		Details: map[string]any{
			"failures": failures,
			"duration": duration.String(),
		},
	})
}

// LogModeration logs an applied moderation transition
func (a *Auditor) LogModeration(moderatorID, commentID, fromStatus, toStatus string) {
	a.LogEvent(Event{
		Type:      EventModerationApplied,
		UserID:    moderatorID,
		CommentID: commentID,
		Details: map[string]any{
			"from": fromStatus,
			"to":   toStatus,
		},
	})
}

// LogModerationDenied logs a moderation attempt rejected for privilege reasons
func (a *Auditor) LogModerationDenied(userID, commentID, reason string) {
	a.LogEvent(Event{
		Type:      EventModerationDenied,
		UserID:    userID,
		CommentID: commentID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCommentDeleted logs a soft delete, preserving the prior status for the
// audit trail
func (a *Auditor) LogCommentDeleted(userID, commentID, previousStatus string) {
	a.LogEvent(Event{
		Type:      EventCommentDeleted,
		UserID:    userID,
		CommentID: commentID,
		Details: map[string]any{
			"previous_status": previousStatus,
		},
	})
}

// LogTamperDetected logs a content hash verification failure
func (a *Auditor) LogTamperDetected(commentID string) {
	a.LogEvent(Event{
		Type:      EventTamperDetected,
		CommentID: commentID,
	})
}

// LogDecryptionFailure logs a decryption failure. The cause stays server-side;
// callers only ever see the generic error.
func (a *Auditor) LogDecryptionFailure(commentID, detail string) {
	a.LogEvent(Event{
		Type:      EventDecryptionFailure,
		CommentID: commentID,
		Details: map[string]any{
			"detail": detail,
		},
	})
}

// LogFailOpen logs a counter-store failure converted to a permissive result
func (a *Auditor) LogFailOpen(identity, operation string) {
	a.LogEvent(Event{
		Type:   EventStoreFailureFailOpen,
		UserID: identity,
		Details: map[string]any{
			"operation": operation,
		},
	})
}

// LogAttackDetected logs a detector hit with the matching pattern name
func (a *Auditor) LogAttackDetected(userID, category, patternName string) {
	a.LogEvent(Event{
		Type:   EventAttackDetected,
		UserID: userID,
		Details: map[string]any{
			"category": category,
			"pattern":  patternName,
		},
	})
}

// LogKeyRotated logs a completed key rotation
func (a *Auditor) LogKeyRotated(newVersion int, reEncrypted int) {
	a.LogEvent(Event{
		Type: EventKeyRotated,
		Details: map[string]any{
			"key_version":  newVersion,
			"re_encrypted": reEncrypted,
		},
	})
}

// HashForLogging creates a SHA256 hash of sensitive data for logging
func HashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
