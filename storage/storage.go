// Package storage defines interfaces for the pipeline's two external stores:
// the persisted comment store and the shared atomic counter/bucket store.
// It supports various backend implementations including in-memory, Valkey,
// and SQL databases.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all backends
var (
	// ErrCommentNotFound indicates no row matched the id (and ownership
	// predicate, when one was supplied)
	ErrCommentNotFound = errors.New("comment not found")

	// ErrDuplicateComment indicates an insert collided with the uniqueness
	// guarantee on (owner, content hash) over non-deleted rows
	ErrDuplicateComment = errors.New("duplicate comment content")

	// ErrKeyNotFound indicates the counter key does not exist
	ErrKeyNotFound = errors.New("key not found")
)

// Comment is the persisted comment record. The platform author identifier is
// stored only as its encrypted envelope encoding; plaintext never reaches a
// backend. Status "deleted" never physically removes the row.
type Comment struct {
	ID     string
	UserID string

	Platform          string
	PlatformPostID    string
	PlatformCommentID string
	EncryptedAuthorID string

	Content     string
	ContentHash string

	Status string

	SentimentScore *float64

	Likes   int
	Replies int
	Shares  int

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// CommentUpdate is a partial update applied under an ownership predicate.
// Nil fields are left untouched.
type CommentUpdate struct {
	Content        *string
	ContentHash    *string
	Status         *string
	SentimentScore *float64
	DeletedAt      *time.Time
}

// CommentFilter selects and orders comments for List.
type CommentFilter struct {
	UserID   string // required for regular callers (row isolation)
	Platform string
	Status   string
	PostID   string

	// IncludeDeleted includes soft-deleted rows, for audit reads
	IncludeDeleted bool

	SortBy   string // "created_at" (default) or "updated_at"
	SortDesc bool

	Limit  int
	Offset int
}

// CommentStore defines the interface for the persisted comment store.
// All methods accept context.Context; implementations must respect its
// deadline so no pipeline call blocks indefinitely.
//
// Row-level isolation is enforced through the ownership predicates: a
// regular caller's UserID is threaded into GetByID (via the manager), List,
// and UpdateWithOwner, so a backend never returns or mutates rows the
// caller cannot see.
type CommentStore interface {
	// Insert persists a new comment.
	// SECURITY: backends MUST enforce uniqueness of (UserID, ContentHash)
	// over non-deleted rows and return ErrDuplicateComment on collision.
	// The advisory FindDuplicate read is not atomic with the insert; this
	// constraint is the backstop that keeps two concurrent creates of
	// identical content from both persisting.
	Insert(ctx context.Context, c *Comment) error

	// GetByID retrieves a comment by id, including soft-deleted rows
	GetByID(ctx context.Context, id string) (*Comment, error)

	// List retrieves comments matching the filter with sort and pagination
	List(ctx context.Context, f CommentFilter) ([]*Comment, error)

	// UpdateWithOwner applies a partial update to the row matching id.
	// A non-empty ownerID restricts the update to rows owned by that user;
	// no matching row yields ErrCommentNotFound either way.
	UpdateWithOwner(ctx context.Context, id, ownerID string, u CommentUpdate) error

	// FindDuplicate returns a non-deleted comment by the same owner with
	// the same content hash created at or after since, or
	// ErrCommentNotFound. Paired with the manager's duplicate cache this
	// is the (owner, content_hash, window) suppression check.
	FindDuplicate(ctx context.Context, userID, contentHash string, since time.Time) (*Comment, error)
}

// TokenBucketResult is the outcome of one atomic token bucket step.
type TokenBucketResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// CounterStore defines the interface for the shared atomic counter/bucket
// store backing the rate limiter. Backends must be reachable with sub-second
// latency; the limiter treats any error as an infrastructure failure and
// applies its configured fail mode.
type CounterStore interface {
	// Get retrieves the raw value of a key, or ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with a TTL (0 = no expiry)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// IncrementWithWindow atomically increments the counter and, when this
	// is the first increment, sets its expiry to window. Returns the
	// post-increment count and the key's remaining time-to-live.
	// SECURITY: the increment and the initial expiry MUST be applied as a
	// single atomic step so a crashed first increment cannot leave an
	// immortal counter.
	IncrementWithWindow(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)

	// TakeToken atomically refills the bucket for elapsed time and takes
	// one token if available.
	// SECURITY: check and decrement MUST be a single atomic step, never a
	// read-then-write pair; two concurrent callers must not both observe
	// "allowed" when one token remains.
	TakeToken(ctx context.Context, key string, capacity int, refillPerSecond float64) (TokenBucketResult, error)

	// PeekToken computes the bucket state without consuming a token
	PeekToken(ctx context.Context, key string, capacity int, refillPerSecond float64) (TokenBucketResult, error)

	// TTL returns the remaining time-to-live of a key, or ErrKeyNotFound
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes the given keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error
}
