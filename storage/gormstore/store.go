// Package gormstore provides a SQL-backed implementation of the comment
// store using GORM. Soft deletion is modeled through the status column and
// deleted_at timestamp, never row removal, so the audit history survives.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/socialpulse/commentguard/storage"
)

// commentModel is the GORM mapping of a persisted comment. The unique
// partial index on (user_id, content_hash) over live rows backs the
// duplicate suppression lookup and is the atomic backstop behind the
// advisory FindDuplicate read: two concurrent creates of identical
// content cannot both land. Soft-deleted rows are excluded so deleting
// a comment frees its content for reposting.
type commentModel struct {
	ID     string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"size:64;index;index:idx_owner_hash,unique,priority:1,where:status <> 'deleted'"`

	Platform          string `gorm:"size:16;index"`
	PlatformPostID    string `gorm:"size:128;index"`
	PlatformCommentID string `gorm:"size:128"`
	EncryptedAuthorID string `gorm:"size:512"`

	Content     string `gorm:"type:text"`
	ContentHash string `gorm:"size:64;index:idx_owner_hash,unique,priority:2,where:status <> 'deleted'"`

	Status string `gorm:"size:16;index"`

	SentimentScore *float64

	Likes   int
	Replies int
	Shares  int

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// TableName sets the table name for GORM
func (commentModel) TableName() string {
	return "comments"
}

// Store is a GORM-backed implementation of storage.CommentStore.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.CommentStore = (*Store)(nil)

// New creates a comment store over an opened GORM connection and migrates
// the comments table.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := db.AutoMigrate(&commentModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate comments table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Insert persists a new comment. A collision on the live-row
// (user_id, content_hash) unique index maps to ErrDuplicateComment.
func (s *Store) Insert(ctx context.Context, c *storage.Comment) error {
	m := toModel(c)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateComment
		}
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// isUniqueViolation recognizes a unique-constraint failure across the
// supported dialects. GORM only translates to ErrDuplicatedKey when the
// connection was opened with TranslateError, so the driver messages are
// matched as a fallback.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// GetByID retrieves a comment by id, including soft-deleted rows
func (s *Store) GetByID(ctx context.Context, id string) (*storage.Comment, error) {
	var m commentModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return fromModel(&m), nil
}

// List retrieves comments matching the filter with sort and pagination
func (s *Store) List(ctx context.Context, f storage.CommentFilter) ([]*storage.Comment, error) {
	q := s.db.WithContext(ctx).Model(&commentModel{})

	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PostID != "" {
		q = q.Where("platform_post_id = ?", f.PostID)
	}
	if !f.IncludeDeleted {
		q = q.Where("status <> ?", "deleted")
	}

	sortBy := "created_at"
	if f.SortBy == "updated_at" {
		sortBy = "updated_at"
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}
	q = q.Order(sortBy + " " + direction)

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var models []commentModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	out := make([]*storage.Comment, len(models))
	for i := range models {
		out[i] = fromModel(&models[i])
	}
	return out, nil
}

// UpdateWithOwner applies a partial update under the ownership predicate
func (s *Store) UpdateWithOwner(ctx context.Context, id, ownerID string, u storage.CommentUpdate) error {
	updates := map[string]any{"updated_at": time.Now()}
	if u.Content != nil {
		updates["content"] = *u.Content
	}
	if u.ContentHash != nil {
		updates["content_hash"] = *u.ContentHash
	}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.SentimentScore != nil {
		updates["sentiment_score"] = *u.SentimentScore
	}
	if u.DeletedAt != nil {
		updates["deleted_at"] = *u.DeletedAt
	}

	q := s.db.WithContext(ctx).Model(&commentModel{}).Where("id = ?", id)
	if ownerID != "" {
		q = q.Where("user_id = ?", ownerID)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A row the caller cannot see and a missing row are the same outcome
		return storage.ErrCommentNotFound
	}
	return nil
}

// FindDuplicate returns a non-deleted comment by the same owner with the
// same content hash created at or after since
func (s *Store) FindDuplicate(ctx context.Context, userID, contentHash string, since time.Time) (*storage.Comment, error) {
	var m commentModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND content_hash = ? AND created_at >= ? AND status <> ?",
			userID, contentHash, since, "deleted").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return fromModel(&m), nil
}

func toModel(c *storage.Comment) *commentModel {
	return &commentModel{
		ID:                c.ID,
		UserID:            c.UserID,
		Platform:          c.Platform,
		PlatformPostID:    c.PlatformPostID,
		PlatformCommentID: c.PlatformCommentID,
		EncryptedAuthorID: c.EncryptedAuthorID,
		Content:           c.Content,
		ContentHash:       c.ContentHash,
		Status:            c.Status,
		SentimentScore:    c.SentimentScore,
		Likes:             c.Likes,
		Replies:           c.Replies,
		Shares:            c.Shares,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		DeletedAt:         c.DeletedAt,
	}
}

func fromModel(m *commentModel) *storage.Comment {
	return &storage.Comment{
		ID:                m.ID,
		UserID:            m.UserID,
		Platform:          m.Platform,
		PlatformPostID:    m.PlatformPostID,
		PlatformCommentID: m.PlatformCommentID,
		EncryptedAuthorID: m.EncryptedAuthorID,
		Content:           m.Content,
		ContentHash:       m.ContentHash,
		Status:            m.Status,
		SentimentScore:    m.SentimentScore,
		Likes:             m.Likes,
		Replies:           m.Replies,
		Shares:            m.Shares,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		DeletedAt:         m.DeletedAt,
	}
}
