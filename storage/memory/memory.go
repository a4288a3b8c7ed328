// Package memory provides in-memory implementations of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments; the counter store's atomicity only holds within one process.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/socialpulse/commentguard/storage"
)

// CommentStore is an in-memory implementation of storage.CommentStore.
type CommentStore struct {
	mu       sync.RWMutex
	comments map[string]*storage.Comment
}

// Compile-time interface check
var _ storage.CommentStore = (*CommentStore)(nil)

// NewCommentStore creates an empty in-memory comment store.
func NewCommentStore() *CommentStore {
	return &CommentStore{comments: make(map[string]*storage.Comment)}
}

// Insert persists a new comment. The uniqueness of (UserID, ContentHash)
// over non-deleted rows is checked under the write lock, mirroring the
// unique index a SQL backend carries.
func (s *CommentStore) Insert(ctx context.Context, c *storage.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.comments {
		if existing.UserID == c.UserID && existing.ContentHash == c.ContentHash &&
			existing.Status != "deleted" {
			return storage.ErrDuplicateComment
		}
	}

	clone := *c
	s.comments[c.ID] = &clone
	return nil
}

// GetByID retrieves a comment by id, including soft-deleted rows
func (s *CommentStore) GetByID(ctx context.Context, id string) (*storage.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, storage.ErrCommentNotFound
	}
	clone := *c
	return &clone, nil
}

// List retrieves comments matching the filter with sort and pagination
func (s *CommentStore) List(ctx context.Context, f storage.CommentFilter) ([]*storage.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Comment
	for _, c := range s.comments {
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		if f.Platform != "" && c.Platform != f.Platform {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PostID != "" && c.PlatformPostID != f.PostID {
			continue
		}
		if !f.IncludeDeleted && c.Status == "deleted" {
			continue
		}
		clone := *c
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		if f.SortBy == "updated_at" {
			a, b = out[i].UpdatedAt, out[j].UpdatedAt
		}
		if f.SortDesc {
			return a.After(b)
		}
		return a.Before(b)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}

// UpdateWithOwner applies a partial update under the ownership predicate
func (s *CommentStore) UpdateWithOwner(ctx context.Context, id, ownerID string, u storage.CommentUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return storage.ErrCommentNotFound
	}
	if ownerID != "" && c.UserID != ownerID {
		// Indistinguishable from a missing row, by the isolation contract
		return storage.ErrCommentNotFound
	}

	if u.Content != nil {
		c.Content = *u.Content
	}
	if u.ContentHash != nil {
		c.ContentHash = *u.ContentHash
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.SentimentScore != nil {
		c.SentimentScore = u.SentimentScore
	}
	if u.DeletedAt != nil {
		c.DeletedAt = u.DeletedAt
	}
	c.UpdatedAt = time.Now()
	return nil
}

// FindDuplicate returns a non-deleted comment by the same owner with the
// same content hash created at or after since
func (s *CommentStore) FindDuplicate(ctx context.Context, userID, contentHash string, since time.Time) (*storage.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.comments {
		if c.UserID == userID && c.ContentHash == contentHash &&
			c.Status != "deleted" && !c.CreatedAt.Before(since) {
			clone := *c
			return &clone, nil
		}
	}
	return nil, storage.ErrCommentNotFound
}

// counterEntry is one key in the counter store
type counterEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// bucketEntry is the persisted token bucket state for one key
type bucketEntry struct {
	tokens     float64
	lastRefill time.Time
}

// CounterStore is an in-memory implementation of storage.CounterStore.
// All operations take the single store mutex, which makes the
// check-and-decrement genuinely atomic within the process.
type CounterStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	buckets map[string]*bucketEntry

	// now is swappable for tests
	now func() time.Time
}

// Compile-time interface check
var _ storage.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates an empty in-memory counter store.
func NewCounterStore() *CounterStore {
	return &CounterStore{
		entries: make(map[string]*counterEntry),
		buckets: make(map[string]*bucketEntry),
		now:     time.Now,
	}
}

// SetClock replaces the store's clock, for tests exercising window expiry
// and bucket refill without sleeping.
func (s *CounterStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// expired reports whether the entry is past its expiry. Caller holds mu.
func (s *CounterStore) expired(e *counterEntry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

// Get retrieves the raw value of a key
func (s *CounterStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		delete(s.entries, key)
		return "", storage.ErrKeyNotFound
	}
	return e.value, nil
}

// Set stores a value with a TTL
func (s *CounterStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &counterEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// IncrementWithWindow atomically increments and window-expires a counter
func (s *CounterStore) IncrementWithWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		e = &counterEntry{value: "0", expiresAt: now.Add(window)}
		s.entries[key] = e
	}

	count, _ := strconv.ParseInt(e.value, 10, 64)
	count++
	e.value = strconv.FormatInt(count, 10)

	return count, e.expiresAt.Sub(now), nil
}

// TakeToken atomically refills and takes one token if available
func (s *CounterStore) TakeToken(ctx context.Context, key string, capacity int, refillPerSecond float64) (storage.TokenBucketResult, error) {
	return s.bucketStep(ctx, key, capacity, refillPerSecond, true)
}

// PeekToken computes the bucket state without consuming a token
func (s *CounterStore) PeekToken(ctx context.Context, key string, capacity int, refillPerSecond float64) (storage.TokenBucketResult, error) {
	return s.bucketStep(ctx, key, capacity, refillPerSecond, false)
}

func (s *CounterStore) bucketStep(ctx context.Context, key string, capacity int, refillPerSecond float64, take bool) (storage.TokenBucketResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.TokenBucketResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucketEntry{tokens: float64(capacity), lastRefill: now}
		s.buckets[key] = b
	}

	// Refill for elapsed time, clamped to capacity
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * refillPerSecond
		if b.tokens > float64(capacity) {
			b.tokens = float64(capacity)
		}
		b.lastRefill = now
	}

	res := storage.TokenBucketResult{}
	if b.tokens >= 1 {
		res.Allowed = true
		if take {
			b.tokens--
		}
	}
	res.Remaining = int(b.tokens)
	res.ResetAt = resetTime(now, b.tokens, capacity, refillPerSecond)
	return res, nil
}

// resetTime is when the bucket will be full again at the given refill rate
func resetTime(now time.Time, tokens float64, capacity int, refillPerSecond float64) time.Time {
	if refillPerSecond <= 0 {
		return now
	}
	missing := float64(capacity) - tokens
	if missing <= 0 {
		return now
	}
	return now.Add(time.Duration(missing / refillPerSecond * float64(time.Second)))
}

// TTL returns the remaining time-to-live of a key
func (s *CounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		delete(s.entries, key)
		return 0, storage.ErrKeyNotFound
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

// Delete removes the given keys, including any bucket state
func (s *CounterStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
		delete(s.buckets, key)
	}
	return nil
}
