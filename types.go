package commentguard

import (
	"time"
)

// Platform identifies the social network a comment originated from.
type Platform string

// Supported platforms
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformFacebook  Platform = "facebook"
)

// Valid reports whether the platform is one of the supported values.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformTikTok, PlatformFacebook:
		return true
	}
	return false
}

// Status is the moderation state of a comment.
type Status string

// Comment lifecycle states
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSpam     Status = "spam"
	StatusDeleted  Status = "deleted"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSpam, StatusDeleted:
		return true
	}
	return false
}

// moderationTargets are the states an authorized moderation action may
// transition a pending comment into. Deletion is a separate soft-delete
// operation, never a moderation target.
var moderationTargets = map[Status]bool{
	StatusApproved: true,
	StatusRejected: true,
	StatusSpam:     true,
}

// IsModerationTarget reports whether s is a legal moderation outcome.
func (s Status) IsModerationTarget() bool {
	return moderationTargets[s]
}

// Role is the privilege level of an authenticated principal.
// Identity is established by an external provider; the pipeline never
// re-derives it.
type Role int

// Privilege levels, ordered
const (
	RoleUser Role = iota
	RoleModerator
	RoleSuperAdmin
)

// String returns the role name for logging.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleSuperAdmin:
		return "super_admin"
	default:
		return "unknown"
	}
}

// Principal is the authenticated caller of a pipeline operation.
type Principal struct {
	UserID string
	Role   Role

	// IP is the client address used as a secondary rate-limit identity.
	// Optional; empty disables IP-keyed limiting for the call.
	IP string
}

// IsModerator reports whether the principal holds moderator privilege or above.
func (p Principal) IsModerator() bool {
	return p.Role >= RoleModerator
}

// IsSuperAdmin reports whether the principal holds the elevated privilege
// required to moderate comments owned by other users.
func (p Principal) IsSuperAdmin() bool {
	return p.Role >= RoleSuperAdmin
}

// EngagementMetrics holds non-negative engagement counters for a comment.
type EngagementMetrics struct {
	Likes   int `json:"likes"`
	Replies int `json:"replies"`
	Shares  int `json:"shares"`
}

// Comment is the persisted comment record.
//
// The platform author identifier is stored only in encrypted form
// (EncryptedAuthorID), bound to the "ownerID:platform" context. ContentHash is
// a keyed digest over content + owning user and must be recomputed and
// verified before the content is trusted as unmodified.
type Comment struct {
	ID     string   `json:"id"`
	UserID string   `json:"user_id"` // owning dashboard user

	Platform          Platform `json:"platform"`
	PlatformPostID    string   `json:"platform_post_id"`
	PlatformCommentID string   `json:"platform_comment_id"`

	// EncryptedAuthorID is the compact envelope encoding of the platform
	// author identifier. Decrypted only for moderator-level reads.
	EncryptedAuthorID string `json:"encrypted_author_id,omitempty"`

	// AuthorID carries the decrypted platform author identifier on reads
	// where the caller's privilege permits it. Never persisted.
	AuthorID string `json:"author_id,omitempty"`

	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`

	Status Status `json:"status"`

	// SentimentScore is in [-1, 1] when present.
	SentimentScore *float64 `json:"sentiment_score,omitempty"`

	Metrics EngagementMetrics `json:"metrics"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the comment has been soft deleted.
// Deleted is terminal: no transition leaves it.
func (c *Comment) IsDeleted() bool {
	return c.Status == StatusDeleted
}

// BulkFailure describes one id that could not be moderated in a bulk request.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult reports the outcome of a bulk moderation request. Partial
// success is a normal, reportable outcome, not a transaction abort.
type BulkResult struct {
	TotalRequested      int           `json:"total_requested"`
	SuccessfullyUpdated int           `json:"successfully_updated"`
	Failed              int           `json:"failed"`
	Failures            []BulkFailure `json:"failures,omitempty"`
}
