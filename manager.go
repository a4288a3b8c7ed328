package commentguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/socialpulse/commentguard/instrumentation"
	"github.com/socialpulse/commentguard/ratelimit"
	"github.com/socialpulse/commentguard/security"
	"github.com/socialpulse/commentguard/storage"
	"github.com/socialpulse/commentguard/validation"
)

// CreateCommentInput is the payload for CreateComment.
type CreateCommentInput = validation.CreateCommentInput

// UpdateCommentInput is the mutable subset for UpdateComment.
type UpdateCommentInput = validation.UpdateCommentInput

// ListOptions selects and orders comments for ListComments. Regular callers
// are always scoped to their own rows; UserID and IncludeDeleted take effect
// for moderator-level callers only.
type ListOptions struct {
	// UserID scopes the listing to one owner. Moderators may name any
	// user; for regular callers the field is overridden with their own id.
	UserID string

	Platform Platform
	Status   Status
	PostID   string

	// IncludeDeleted includes soft-deleted rows. Moderator-level only.
	IncludeDeleted bool

	SortBy   string // "created_at" (default) or "updated_at"
	SortDesc bool

	Limit  int // default 50, capped at 200
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Manager is the comment security pipeline: every comment enters, changes,
// and leaves the store through it. It composes the crypto engine, the
// validation pipeline, the rate limiter, and the audit trail, so no caller
// can reach the store around the security controls.
type Manager struct {
	cfg Config

	ring      *security.KeyRing
	encryptor *security.Encryptor
	pipeline  *validation.Pipeline
	limiter   *ratelimit.Limiter
	throttle  *ratelimit.Throttle

	comments storage.CommentStore

	auditor *security.Auditor
	metrics *instrumentation.Metrics
	dupes   *gocache.Cache
	logger  *slog.Logger
}

// NewManager creates the pipeline manager over the given stores.
// The counter store backs rate limiting and must be shared by every process
// serving traffic; the comment store holds the persisted records.
func NewManager(cfg Config, comments storage.CommentStore, counters storage.CounterStore) (*Manager, error) {
	if comments == nil {
		return nil, fmt.Errorf("comment store is required")
	}
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ring, err := security.NewKeyRing(cfg.Crypto.EncryptionKey, cfg.Crypto.PreviousEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build key ring: %w", err)
	}
	encryptor, err := security.NewEncryptor(ring)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	auditor := security.NewAuditor(cfg.Logger, cfg.EnableAuditLogging)

	limiter, err := ratelimit.New(counters, ratelimit.Config{
		ReadLimit:            cfg.RateLimit.ReadLimit,
		ReadWindow:           cfg.RateLimit.ReadWindow,
		ModerateLimit:        cfg.RateLimit.ModerateLimit,
		ModerateWindow:       cfg.RateLimit.ModerateWindow,
		WriteCapacity:        cfg.RateLimit.WriteCapacity,
		WriteRefillPerSecond: cfg.RateLimit.WriteRefillPerSecond,
		FailClosed:           cfg.RateLimit.FailClosed,
		FailureThreshold:     cfg.RateLimit.FailureThreshold,
		FailureWindow:        cfg.RateLimit.FailureWindow,
		BlockDuration:        cfg.RateLimit.BlockDuration,
	}, auditor, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	inst := cfg.Instrumentation
	if inst == nil {
		inst, err = instrumentation.New(instrumentation.Config{Enabled: false})
		if err != nil {
			return nil, fmt.Errorf("failed to create instrumentation: %w", err)
		}
	}

	m := &Manager{
		cfg:       cfg,
		ring:      ring,
		encryptor: encryptor,
		pipeline: validation.NewPipeline(validation.Config{
			MaxContentLength: cfg.Validation.MaxContentLength,
			MaxURLCount:      cfg.Validation.MaxURLCount,
		}),
		limiter:  limiter,
		comments: comments,
		auditor:  auditor,
		metrics:  inst.Metrics(),
		dupes:    gocache.New(cfg.Lifecycle.DuplicateCacheTTL, 2*cfg.Lifecycle.DuplicateCacheTTL),
		logger:   cfg.Logger,
	}

	if cfg.RateLimit.ThrottleRate > 0 {
		burst := cfg.RateLimit.ThrottleBurst
		if burst <= 0 {
			burst = cfg.RateLimit.ThrottleRate
		}
		m.throttle = ratelimit.NewThrottle(cfg.RateLimit.ThrottleRate, burst, cfg.Logger)
	}

	if err := inst.RegisterSizeCallbacks(
		func() int64 { return int64(m.dupes.ItemCount()) },
		func() int64 {
			if m.throttle == nil {
				return 0
			}
			return int64(m.throttle.Len())
		},
	); err != nil {
		return nil, fmt.Errorf("failed to register size callbacks: %w", err)
	}

	return m, nil
}

// Close releases background resources. The stores are owned by the caller
// and are not closed.
func (m *Manager) Close() {
	if m.throttle != nil {
		m.throttle.Stop()
	}
}

// CreateComment validates, rate-limits, deduplicates, encrypts, and
// persists a new comment. Accepted comments always start in StatusPending.
func (m *Manager) CreateComment(ctx context.Context, principal Principal, in CreateCommentInput) (*Comment, error) {
	if principal.UserID == "" {
		return nil, ErrInvalidInput("principal user id is required")
	}

	if err := m.checkBlocked(ctx, principal); err != nil {
		return nil, err
	}

	// Validation rejects before any quota is consumed; only payloads that
	// could actually be persisted draw down the write bucket.
	validated, err := m.pipeline.ValidateCreate(in)
	if err != nil {
		return nil, m.rejectCreate(ctx, principal, err)
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpWrite); err != nil {
		return nil, err
	}

	hash := m.encryptor.HashContent(validated.Content, principal.UserID)
	if err := m.checkDuplicate(ctx, principal.UserID, hash); err != nil {
		return nil, err
	}

	env, err := m.encryptor.Encrypt(validated.AuthorID, encryptionContext(principal.UserID, validated.Platform))
	if err != nil {
		m.logger.Error("Author id encryption failed", "error", err)
		return nil, ErrInternal("failed to protect author identity").Sanitized(m.cfg.Production)
	}
	m.metrics.RecordEncryptionOperation(ctx, "encrypt", 0)

	now := time.Now().UTC()
	record := &storage.Comment{
		ID:                uuid.NewString(),
		UserID:            principal.UserID,
		Platform:          validated.Platform,
		PlatformPostID:    validated.PlatformPostID,
		PlatformCommentID: validated.PlatformCommentID,
		EncryptedAuthorID: env.Encode(),
		Content:           validated.Content,
		ContentHash:       hash,
		Status:            string(StatusPending),
		SentimentScore:    validated.SentimentScore,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.comments.Insert(ctx, record); err != nil {
		// The store's uniqueness constraint closes the race the advisory
		// duplicate read leaves open between concurrent creates.
		if errors.Is(err, storage.ErrDuplicateComment) {
			m.dupes.Set(duplicateCacheKey(principal.UserID, hash), struct{}{}, gocache.DefaultExpiration)
			m.auditor.LogDuplicateBlocked(principal.UserID, hash)
			m.metrics.RecordDuplicateBlocked(ctx)
			return nil, ErrDuplicateContent("identical content was posted recently")
		}
		m.logger.Error("Comment insert failed", "error", err)
		m.metrics.RecordStorageOperation(ctx, "insert", "error", 0)
		return nil, ErrInternal("failed to persist comment").Sanitized(m.cfg.Production)
	}
	m.metrics.RecordStorageOperation(ctx, "insert", "success", 0)

	m.dupes.Set(duplicateCacheKey(principal.UserID, hash), struct{}{}, gocache.DefaultExpiration)

	m.auditor.LogCommentCreated(principal.UserID, record.ID, record.Platform)
	m.metrics.RecordCommentCreated(ctx, record.Platform)

	return m.toAPIComment(record, principal, false), nil
}

// GetComment retrieves one comment. Regular callers see only their own
// rows; a row outside the caller's isolation is indistinguishable from a
// missing one. The content hash is verified before content is returned.
func (m *Manager) GetComment(ctx context.Context, principal Principal, id string) (*Comment, error) {
	if principal.UserID == "" {
		return nil, ErrInvalidInput("principal user id is required")
	}
	if id == "" {
		return nil, ErrInvalidInput("comment id is required")
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpRead); err != nil {
		return nil, err
	}

	record, err := m.fetchVisible(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	if !m.encryptor.VerifyContentHash(record.Content, record.UserID, record.ContentHash) {
		m.auditor.LogTamperDetected(record.ID)
		m.metrics.RecordTamperDetected(ctx)
		return nil, ErrInternal("content integrity check failed").Sanitized(m.cfg.Production)
	}

	return m.toAPIComment(record, principal, true), nil
}

// ListComments retrieves comments under the caller's isolation with
// filtering, sorting, and pagination. Rows failing the integrity check are
// omitted and audited rather than failing the whole listing.
func (m *Manager) ListComments(ctx context.Context, principal Principal, opts ListOptions) ([]*Comment, error) {
	if principal.UserID == "" {
		return nil, ErrInvalidInput("principal user id is required")
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpRead); err != nil {
		return nil, err
	}

	filter := storage.CommentFilter{
		UserID:   opts.UserID,
		Platform: string(opts.Platform),
		Status:   string(opts.Status),
		PostID:   opts.PostID,
		SortBy:   opts.SortBy,
		SortDesc: opts.SortDesc,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	if !principal.IsModerator() {
		filter.UserID = principal.UserID
		filter.IncludeDeleted = false
	} else {
		filter.IncludeDeleted = opts.IncludeDeleted
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	records, err := m.comments.List(ctx, filter)
	if err != nil {
		m.logger.Error("Comment list failed", "error", err)
		m.metrics.RecordStorageOperation(ctx, "list", "error", 0)
		return nil, ErrInternal("failed to list comments").Sanitized(m.cfg.Production)
	}
	m.metrics.RecordStorageOperation(ctx, "list", "success", 0)

	out := make([]*Comment, 0, len(records))
	for _, record := range records {
		if !m.encryptor.VerifyContentHash(record.Content, record.UserID, record.ContentHash) {
			m.auditor.LogTamperDetected(record.ID)
			m.metrics.RecordTamperDetected(ctx)
			continue
		}
		out = append(out, m.toAPIComment(record, principal, true))
	}
	return out, nil
}

// UpdateComment applies the mutable subset to a comment owned by the
// caller. Content changes are re-validated and re-hashed.
func (m *Manager) UpdateComment(ctx context.Context, principal Principal, id string, in UpdateCommentInput) (*Comment, error) {
	if principal.UserID == "" {
		return nil, ErrInvalidInput("principal user id is required")
	}
	if id == "" {
		return nil, ErrInvalidInput("comment id is required")
	}

	if err := m.checkBlocked(ctx, principal); err != nil {
		return nil, err
	}

	validated, err := m.pipeline.ValidateUpdate(in)
	if err != nil {
		var issue *validation.Issue
		if errors.As(err, &issue) {
			m.recordRejection(ctx, principal, issue)
			return nil, ErrValidation(issue.Field, issue.Rule, issue.Message)
		}
		return nil, ErrInvalidInput(err.Error())
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpWrite); err != nil {
		return nil, err
	}

	update := storage.CommentUpdate{SentimentScore: validated.SentimentScore}
	if validated.Content != nil {
		hash := m.encryptor.HashContent(*validated.Content, principal.UserID)
		update.Content = validated.Content
		update.ContentHash = &hash
	}

	// The ownership predicate makes update-by-non-owner indistinguishable
	// from a missing row, and deleted rows are terminal.
	record, err := m.fetchVisible(ctx, principal.ownOnly(), id)
	if err != nil {
		return nil, err
	}
	if record.Status == string(StatusDeleted) {
		return nil, ErrNotFound("comment not found")
	}

	if err := m.comments.UpdateWithOwner(ctx, id, principal.UserID, update); err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return nil, ErrNotFound("comment not found")
		}
		m.logger.Error("Comment update failed", "error", err)
		m.metrics.RecordStorageOperation(ctx, "update", "error", 0)
		return nil, ErrInternal("failed to update comment").Sanitized(m.cfg.Production)
	}
	m.metrics.RecordStorageOperation(ctx, "update", "success", 0)

	updated, err := m.comments.GetByID(ctx, id)
	if err != nil {
		m.logger.Error("Comment fetch after update failed", "error", err)
		return nil, ErrInternal("failed to load comment").Sanitized(m.cfg.Production)
	}
	return m.toAPIComment(updated, principal, false), nil
}

// ModerateComment transitions a pending comment to an authorized target
// status. Moderator privilege is required; moderating a comment owned by
// another user additionally requires super-admin privilege.
func (m *Manager) ModerateComment(ctx context.Context, principal Principal, id string, target Status) error {
	if principal.UserID == "" {
		return ErrInvalidInput("principal user id is required")
	}
	if id == "" {
		return ErrInvalidInput("comment id is required")
	}
	if !target.IsModerationTarget() {
		return ErrInvalidInput(fmt.Sprintf("%q is not a legal moderation target", target))
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpModerate); err != nil {
		return err
	}

	return m.moderateOne(ctx, principal, id, target)
}

// moderateOne applies one moderation transition. Shared by ModerateComment
// and BulkModerate; the caller has already checked privilege shape and the
// target status.
func (m *Manager) moderateOne(ctx context.Context, principal Principal, id string, target Status) error {
	if !principal.IsModerator() {
		m.auditor.LogModerationDenied(principal.UserID, id, "moderator privilege required")
		m.recordAuthFailure(ctx, principal)
		return ErrAuthorization("moderator privilege required")
	}

	record, err := m.comments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return ErrNotFound("comment not found")
		}
		m.logger.Error("Comment fetch failed", "error", err)
		return ErrInternal("failed to load comment").Sanitized(m.cfg.Production)
	}

	if record.UserID != principal.UserID && !principal.IsSuperAdmin() {
		m.auditor.LogModerationDenied(principal.UserID, id,
			"moderating another user's comment requires super admin privilege")
		m.recordAuthFailure(ctx, principal)
		return ErrAuthorization("moderating another user's comment requires super admin privilege")
	}

	if record.Status != string(StatusPending) {
		return ErrInvalidInput(fmt.Sprintf("comment in status %q cannot be moderated", record.Status))
	}

	status := string(target)
	if err := m.comments.UpdateWithOwner(ctx, id, "", storage.CommentUpdate{Status: &status}); err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return ErrNotFound("comment not found")
		}
		m.logger.Error("Moderation update failed", "error", err)
		return ErrInternal("failed to update comment").Sanitized(m.cfg.Production)
	}

	m.auditor.LogModeration(principal.UserID, id, record.Status, status)
	m.metrics.RecordModeration(ctx, status)
	return nil
}

// BulkModerate applies one transition to a list of comment ids. Partial
// success is a normal, reportable outcome: each failing id is excluded from
// the success count and reported with its reason, and processing never
// aborts mid-list.
func (m *Manager) BulkModerate(ctx context.Context, principal Principal, ids []string, target Status) (*BulkResult, error) {
	if principal.UserID == "" {
		return nil, ErrInvalidInput("principal user id is required")
	}
	if len(ids) == 0 {
		return nil, ErrInvalidInput("at least one comment id is required")
	}
	if !target.IsModerationTarget() {
		return nil, ErrInvalidInput(fmt.Sprintf("%q is not a legal moderation target", target))
	}
	if !principal.IsModerator() {
		m.recordAuthFailure(ctx, principal)
		return nil, ErrAuthorization("moderator privilege required")
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpModerate); err != nil {
		return nil, err
	}

	result := &BulkResult{TotalRequested: len(ids)}
	for _, id := range ids {
		if err := m.moderateOne(ctx, principal, id, target); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BulkFailure{ID: id, Reason: failureReason(err)})
			continue
		}
		result.SuccessfullyUpdated++
	}
	return result, nil
}

// DeleteComment soft-deletes a comment: status moves to StatusDeleted, the
// deletion timestamp is stamped, and the row stays in the store. The prior
// status is preserved in the audit trail. Owners may delete their own
// comments; deleting another user's comment requires moderator privilege.
func (m *Manager) DeleteComment(ctx context.Context, principal Principal, id string) error {
	if principal.UserID == "" {
		return ErrInvalidInput("principal user id is required")
	}
	if id == "" {
		return ErrInvalidInput("comment id is required")
	}

	if err := m.rateLimit(ctx, principal, ratelimit.OpModerate); err != nil {
		return err
	}

	record, err := m.comments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return ErrNotFound("comment not found")
		}
		m.logger.Error("Comment fetch failed", "error", err)
		return ErrInternal("failed to load comment").Sanitized(m.cfg.Production)
	}

	if record.UserID != principal.UserID {
		if !principal.IsModerator() {
			// Hidden row: do not reveal existence to non-owners
			return ErrNotFound("comment not found")
		}
	}
	if record.Status == string(StatusDeleted) {
		return ErrNotFound("comment not found")
	}

	status := string(StatusDeleted)
	deletedAt := time.Now().UTC()
	update := storage.CommentUpdate{Status: &status, DeletedAt: &deletedAt}
	if err := m.comments.UpdateWithOwner(ctx, id, "", update); err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return ErrNotFound("comment not found")
		}
		m.logger.Error("Comment delete failed", "error", err)
		return ErrInternal("failed to delete comment").Sanitized(m.cfg.Production)
	}

	m.auditor.LogCommentDeleted(principal.UserID, id, record.Status)
	m.metrics.RecordCommentDeleted(ctx)
	return nil
}

// RateLimitStatus reports the caller's remaining quota for an operation
// class without consuming any.
func (m *Manager) RateLimitStatus(ctx context.Context, principal Principal, op ratelimit.Operation) (ratelimit.Result, error) {
	if principal.UserID == "" {
		return ratelimit.Result{}, ErrInvalidInput("principal user id is required")
	}
	return m.limiter.Status(ctx, principal.UserID, op)
}

// ResetLimits clears every rate limit artifact for an identity, including
// a repeated-failure block. Super-admin only.
func (m *Manager) ResetLimits(ctx context.Context, principal Principal, identity string) error {
	if !principal.IsSuperAdmin() {
		m.recordAuthFailure(ctx, principal)
		return ErrAuthorization("resetting limits requires super admin privilege")
	}
	if identity == "" {
		return ErrInvalidInput("identity is required")
	}
	if err := m.limiter.Reset(ctx, identity); err != nil {
		m.logger.Error("Limit reset failed", "error", err)
		return ErrInternal("failed to reset limits").Sanitized(m.cfg.Production)
	}
	return nil
}

// rateLimit runs the in-process throttle and the shared limiter for each
// of the principal's identities.
func (m *Manager) rateLimit(ctx context.Context, principal Principal, op ratelimit.Operation) error {
	for _, identity := range principal.identities() {
		if m.throttle != nil && !m.throttle.Allow(identity) {
			m.metrics.RecordRateLimitExceeded(ctx, string(op))
			return ErrRateLimit(time.Second)
		}

		res, err := m.limiter.Check(ctx, identity, op)
		if err != nil {
			return ErrInvalidInput(err.Error())
		}
		if res.FailedOpen {
			m.metrics.RecordFailOpen(ctx, string(op))
			continue
		}
		if !res.Allowed {
			m.auditor.LogRateLimitExceeded(principal.UserID, principal.IP, string(op))
			m.metrics.RecordRateLimitExceeded(ctx, string(op))
			return ErrRateLimit(res.RetryAfter)
		}
	}
	return nil
}

// checkBlocked denies a write before validation when one of the
// principal's identities carries a repeated-failure block. A blocked
// submitter learns nothing about how the payload would have been handled.
// Store failures are left to the consuming check, which applies the
// configured fail mode.
func (m *Manager) checkBlocked(ctx context.Context, principal Principal) error {
	for _, identity := range principal.identities() {
		blocked, retryAfter, err := m.limiter.IsBlocked(ctx, identity)
		if err != nil {
			continue
		}
		if blocked {
			m.auditor.LogRateLimitExceeded(principal.UserID, principal.IP, "blocked")
			m.metrics.RecordRateLimitExceeded(ctx, "blocked")
			return ErrRateLimit(retryAfter)
		}
	}
	return nil
}

// rejectCreate maps a validation failure to the caller-facing error and
// records the security signals: attack-pattern hits count toward the
// submitter's failed-attempt block.
func (m *Manager) rejectCreate(ctx context.Context, principal Principal, err error) error {
	var issue *validation.Issue
	if !errors.As(err, &issue) {
		return ErrInvalidInput(err.Error())
	}
	m.recordRejection(ctx, principal, issue)
	return ErrValidation(issue.Field, issue.Rule, issue.Message)
}

func (m *Manager) recordRejection(ctx context.Context, principal Principal, issue *validation.Issue) {
	m.auditor.LogCommentRejected(principal.UserID, issue.Field, issue.Rule)
	m.metrics.RecordCommentRejected(ctx, issue.Rule)

	switch issue.Rule {
	case validation.RuleXSSDetected, validation.RuleSQLiDetected:
		m.auditor.LogAttackDetected(principal.UserID, issue.Rule, issue.Message)
		m.metrics.RecordAttackDetected(ctx, issue.Rule)
		m.recordAuthFailure(ctx, principal)
	}
}

// recordAuthFailure counts a hostile or unauthorized attempt toward the
// principal's repeated-failure block.
func (m *Manager) recordAuthFailure(ctx context.Context, principal Principal) {
	blocked, err := m.limiter.RecordFailedAttempt(ctx, principal.UserID)
	if err != nil {
		m.logger.Warn("Failed attempt recording failed", "error", err)
		return
	}
	if blocked {
		m.metrics.RecordIdentityBlocked(ctx)
	}
}

// checkDuplicate applies the (owner, content hash, window) suppression
// check: the in-process cache absorbs bursty retries, the store query is
// authoritative.
func (m *Manager) checkDuplicate(ctx context.Context, userID, hash string) error {
	key := duplicateCacheKey(userID, hash)
	if _, found := m.dupes.Get(key); found {
		m.auditor.LogDuplicateBlocked(userID, hash)
		m.metrics.RecordDuplicateBlocked(ctx)
		return ErrDuplicateContent("identical content was posted recently")
	}

	since := time.Now().UTC().Add(-m.cfg.Lifecycle.DuplicateWindow)
	_, err := m.comments.FindDuplicate(ctx, userID, hash, since)
	if err == nil {
		m.dupes.Set(key, struct{}{}, gocache.DefaultExpiration)
		m.auditor.LogDuplicateBlocked(userID, hash)
		m.metrics.RecordDuplicateBlocked(ctx)
		return ErrDuplicateContent("identical content was posted recently")
	}
	if !errors.Is(err, storage.ErrCommentNotFound) {
		m.logger.Error("Duplicate check failed", "error", err)
		return ErrInternal("failed to check for duplicates").Sanitized(m.cfg.Production)
	}
	return nil
}

// fetchVisible loads a comment under the principal's row isolation: a row
// owned by someone else is indistinguishable from a missing one for
// non-moderator callers.
func (m *Manager) fetchVisible(ctx context.Context, principal Principal, id string) (*storage.Comment, error) {
	record, err := m.comments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCommentNotFound) {
			return nil, ErrNotFound("comment not found")
		}
		m.logger.Error("Comment fetch failed", "error", err)
		m.metrics.RecordStorageOperation(ctx, "get", "error", 0)
		return nil, ErrInternal("failed to load comment").Sanitized(m.cfg.Production)
	}
	m.metrics.RecordStorageOperation(ctx, "get", "success", 0)

	if record.UserID != principal.UserID && !principal.IsModerator() {
		return nil, ErrNotFound("comment not found")
	}
	return record, nil
}

// toAPIComment maps a stored record to the caller-facing view. The author
// identifier is decrypted only for moderator-level callers, and only when
// decryptAuthor is set (reads, never the create echo).
func (m *Manager) toAPIComment(record *storage.Comment, principal Principal, decryptAuthor bool) *Comment {
	c := &Comment{
		ID:                record.ID,
		UserID:            record.UserID,
		Platform:          Platform(record.Platform),
		PlatformPostID:    record.PlatformPostID,
		PlatformCommentID: record.PlatformCommentID,
		EncryptedAuthorID: record.EncryptedAuthorID,
		Content:           record.Content,
		ContentHash:       record.ContentHash,
		Status:            Status(record.Status),
		SentimentScore:    record.SentimentScore,
		Metrics: EngagementMetrics{
			Likes:   record.Likes,
			Replies: record.Replies,
			Shares:  record.Shares,
		},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
		DeletedAt: record.DeletedAt,
	}

	if decryptAuthor && principal.IsModerator() && record.EncryptedAuthorID != "" {
		env, err := security.ParseEnvelope(record.EncryptedAuthorID)
		if err == nil {
			plaintext, derr := m.encryptor.Decrypt(env, encryptionContext(record.UserID, record.Platform))
			if derr == nil {
				c.AuthorID = plaintext
				return c
			}
			err = derr
		}
		// Generic handling: the reason stays server-side, the caller just
		// does not see an author id.
		m.auditor.LogDecryptionFailure(record.ID, err.Error())
	}
	return c
}

// ownOnly returns a copy of the principal stripped to regular privilege,
// for paths where elevated roles must not widen row visibility.
// identities are the rate-limit keys a call is measured against: the
// caller's user id always, plus the client address when one is known so
// one address cannot launder abuse through many accounts.
func (p Principal) identities() []string {
	ids := []string{p.UserID}
	if p.IP != "" {
		ids = append(ids, "ip:"+p.IP)
	}
	return ids
}

func (p Principal) ownOnly() Principal {
	return Principal{UserID: p.UserID, Role: RoleUser, IP: p.IP}
}

func encryptionContext(ownerID, platform string) string {
	return ownerID + ":" + platform
}

func duplicateCacheKey(userID, hash string) string {
	return "dup:" + userID + ":" + hash
}

// failureReason maps a moderation error to the stable reason string
// reported in BulkResult.
func failureReason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorCodeInternalError
}
