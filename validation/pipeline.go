package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/socialpulse/commentguard/internal/util"
	"github.com/socialpulse/commentguard/security"
)

// Rule names carried on validation failures. Stable identifiers; API
// consumers match on them.
const (
	RuleRequired         = "required"
	RuleUnsupportedValue = "unsupported_value"
	RuleOutOfRange       = "out_of_range"
	RuleInsecureScheme   = "insecure_scheme"
	RuleUnsafeHost       = "unsafe_host"
	RuleEmptyContent     = "empty_content"
	RuleMaxLength        = "max_length"
	RuleXSSDetected      = "xss_detected"
	RuleSQLiDetected     = "sql_injection_detected"
	RuleSpamDetected     = "spam_detected"
)

// Issue is a single validation failure: which field broke which rule.
type Issue struct {
	Field   string
	Rule    string
	Message string
}

// Error implements the error interface.
func (i *Issue) Error() string {
	return fmt.Sprintf("validation failed on %s (%s): %s", i.Field, i.Rule, i.Message)
}

// CreateCommentInput is the payload for creating a comment. AuthorID is the
// platform-side author identifier; it is encrypted before persistence and
// never stored in plaintext.
type CreateCommentInput struct {
	Platform          string   `json:"platform"`
	PlatformPostID    string   `json:"platform_post_id"`
	PlatformCommentID string   `json:"platform_comment_id"`
	AuthorID          string   `json:"author_id"`
	AuthorAvatarURL   string   `json:"author_avatar_url,omitempty"`
	Content           string   `json:"content"`
	SentimentScore    *float64 `json:"sentiment_score,omitempty"`
}

// UpdateCommentInput is the mutable subset for updating a comment. Nil
// fields are left untouched.
type UpdateCommentInput struct {
	Content        *string  `json:"content,omitempty"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`
}

// Config holds the pipeline's tunable bounds.
type Config struct {
	// MaxContentLength bounds comment content in runes
	MaxContentLength int

	// MaxURLCount is the link-spam threshold
	MaxURLCount int

	// Platforms the pipeline accepts; empty selects the supported set
	AllowedPlatforms []string
}

var defaultPlatforms = []string{"instagram", "tiktok", "facebook"}

// Pipeline runs a creation or update payload through an ordered list of
// pure checks and returns the sanitized payload or the first failure.
// A Pipeline is immutable after construction and safe for concurrent use.
type Pipeline struct {
	cfg       Config
	platforms map[string]bool
}

// NewPipeline creates a pipeline, filling config defaults.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = security.DefaultMaxSanitizedLength
	}
	if cfg.MaxURLCount <= 0 {
		cfg.MaxURLCount = security.DefaultMaxURLCount
	}
	allowed := cfg.AllowedPlatforms
	if len(allowed) == 0 {
		allowed = defaultPlatforms
	}

	platforms := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		platforms[p] = true
	}
	return &Pipeline{cfg: cfg, platforms: platforms}
}

// ValidateCreate validates a creation payload. On success the returned copy
// carries the sanitized content; the input is never mutated.
func (p *Pipeline) ValidateCreate(in CreateCommentInput) (CreateCommentInput, error) {
	required := []struct {
		field, value string
	}{
		{"platform", in.Platform},
		{"platform_post_id", in.PlatformPostID},
		{"author_id", in.AuthorID},
		{"content", in.Content},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return in, &Issue{Field: r.field, Rule: RuleRequired, Message: r.field + " is required"}
		}
	}

	if !p.platforms[in.Platform] {
		return in, &Issue{Field: "platform", Rule: RuleUnsupportedValue,
			Message: fmt.Sprintf("unsupported platform %q", in.Platform)}
	}

	if issue := checkSentiment(in.SentimentScore); issue != nil {
		return in, issue
	}

	if in.AuthorAvatarURL != "" {
		if issue := checkSecureURL("author_avatar_url", in.AuthorAvatarURL); issue != nil {
			return in, issue
		}
	}

	sanitized, issue := p.checkContent(in.Content)
	if issue != nil {
		return in, issue
	}

	in.Content = sanitized
	return in, nil
}

// ValidateUpdate validates an update payload. Content, when present, runs
// through the same content checks as creation and comes back sanitized.
func (p *Pipeline) ValidateUpdate(in UpdateCommentInput) (UpdateCommentInput, error) {
	if in.Content == nil && in.SentimentScore == nil {
		return in, &Issue{Field: "payload", Rule: RuleRequired, Message: "no updatable fields provided"}
	}

	if issue := checkSentiment(in.SentimentScore); issue != nil {
		return in, issue
	}

	if in.Content != nil {
		sanitized, issue := p.checkContent(*in.Content)
		if issue != nil {
			return in, issue
		}
		in.Content = &sanitized
	}

	return in, nil
}

// checkContent runs the content-level checks and returns the sanitized text.
// Attack detection inspects the raw submission: sanitization must not
// launder a payload into a clean pass.
func (p *Pipeline) checkContent(raw string) (string, *Issue) {
	if utf8.RuneCountInString(raw) > p.cfg.MaxContentLength {
		return "", &Issue{Field: "content", Rule: RuleMaxLength,
			Message: fmt.Sprintf("content exceeds %d characters", p.cfg.MaxContentLength)}
	}

	if name, found := security.MatchXSS(raw); found {
		return "", &Issue{Field: "content", Rule: RuleXSSDetected,
			Message: "content matched attack pattern " + name}
	}
	if name, found := security.MatchSQLInjection(raw); found {
		return "", &Issue{Field: "content", Rule: RuleSQLiDetected,
			Message: "content matched attack pattern " + name}
	}

	sanitized := security.Sanitize(raw, p.cfg.MaxContentLength)
	if sanitized == "" {
		return "", &Issue{Field: "content", Rule: RuleEmptyContent,
			Message: "content is empty after sanitization"}
	}

	if security.IsSpam(sanitized, p.cfg.MaxURLCount) {
		return "", &Issue{Field: "content", Rule: RuleSpamDetected,
			Message: "content matched spam heuristics"}
	}

	return sanitized, nil
}

func checkSentiment(score *float64) *Issue {
	if score == nil {
		return nil
	}
	if *score < -1 || *score > 1 {
		return &Issue{Field: "sentiment_score", Rule: RuleOutOfRange,
			Message: "sentiment score must be in [-1, 1]"}
	}
	return nil
}

// checkSecureURL requires an absolute https URL with a public host. Hosts
// naming loopback, private, or link-local addresses are rejected so a later
// fetch of the URL cannot be steered into the deployment's own network.
func checkSecureURL(field, raw string) *Issue {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return &Issue{Field: field, Rule: RuleInsecureScheme,
			Message: field + " must be an absolute https URL"}
	}
	if util.IsInternalHost(u.Hostname()) {
		return &Issue{Field: field, Rule: RuleUnsafeHost,
			Message: field + " must not point at an internal address"}
	}
	return nil
}
