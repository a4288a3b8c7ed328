package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Comment lifecycle events

	// EventCommentCreated is logged when a comment passes the full write
	// pipeline and is persisted
	EventCommentCreated = "comment_created"

	// EventCommentRejected is logged when validation or content checks
	// reject an inbound payload
	EventCommentRejected = "comment_rejected"

	// EventDuplicateBlocked is logged when identical content from the same
	// owner is suppressed within the duplicate window
	EventDuplicateBlocked = "duplicate_content_blocked"

	// EventCommentDeleted is logged on soft delete; the prior status is
	// preserved in the event details
	EventCommentDeleted = "comment_deleted"

	// Moderation events

	// EventModerationApplied is logged when a moderation transition is applied
	EventModerationApplied = "moderation_applied"

	// EventModerationDenied is logged when a moderation attempt lacks the
	// required privilege
	EventModerationDenied = "moderation_denied"

	// Rate limiting events

	// EventRateLimitExceeded is logged when a quota is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventIdentityBlocked is logged when repeated failures trigger a
	// temporary block
	EventIdentityBlocked = "identity_blocked"

	// EventStoreFailureFailOpen is logged when a counter-store failure is
	// converted to a permissive result. This is the documented
	// availability-over-strictness trade-off, not an error path.
	EventStoreFailureFailOpen = "store_failure_fail_open"

	// Attack and integrity events

	// EventAttackDetected is logged when the detector flags an injection
	// or XSS vector
	EventAttackDetected = "attack_detected"

	// EventTamperDetected is logged when a stored content hash fails
	// verification
	EventTamperDetected = "content_tamper_detected"

	// EventDecryptionFailure is logged when an envelope fails to decrypt;
	// the caller-visible error stays generic
	EventDecryptionFailure = "decryption_failure"

	// EventKeyRotated is logged when the key ring is rotated
	EventKeyRotated = "key_rotated"
)
