package validation

import (
	"strings"
	"testing"
)

func validInput() CreateCommentInput {
	return CreateCommentInput{
		Platform:          "instagram",
		PlatformPostID:    "post-123",
		PlatformCommentID: "comment-456",
		AuthorID:          "author-789",
		Content:           "What a great post, thanks for sharing!",
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestValidateCreateAccepts(t *testing.T) {
	p := NewPipeline(Config{})

	out, err := p.ValidateCreate(validInput())
	if err != nil {
		t.Fatalf("ValidateCreate() error = %v", err)
	}
	if out.Content != "What a great post, thanks for sharing!" {
		t.Errorf("ValidateCreate() content = %q", out.Content)
	}
}

func TestValidateCreateRejects(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*CreateCommentInput)
		wantField string
		wantRule  string
	}{
		{
			name:      "missing platform",
			mutate:    func(in *CreateCommentInput) { in.Platform = "" },
			wantField: "platform",
			wantRule:  RuleRequired,
		},
		{
			name:      "missing post id",
			mutate:    func(in *CreateCommentInput) { in.PlatformPostID = "" },
			wantField: "platform_post_id",
			wantRule:  RuleRequired,
		},
		{
			name:      "missing author id",
			mutate:    func(in *CreateCommentInput) { in.AuthorID = "" },
			wantField: "author_id",
			wantRule:  RuleRequired,
		},
		{
			name:      "whitespace-only content",
			mutate:    func(in *CreateCommentInput) { in.Content = "   \t\n " },
			wantField: "content",
			wantRule:  RuleRequired,
		},
		{
			name:      "unsupported platform",
			mutate:    func(in *CreateCommentInput) { in.Platform = "myspace" },
			wantField: "platform",
			wantRule:  RuleUnsupportedValue,
		},
		{
			name:      "sentiment above range",
			mutate:    func(in *CreateCommentInput) { in.SentimentScore = floatPtr(1.5) },
			wantField: "sentiment_score",
			wantRule:  RuleOutOfRange,
		},
		{
			name:      "sentiment below range",
			mutate:    func(in *CreateCommentInput) { in.SentimentScore = floatPtr(-1.01) },
			wantField: "sentiment_score",
			wantRule:  RuleOutOfRange,
		},
		{
			name:      "http avatar url",
			mutate:    func(in *CreateCommentInput) { in.AuthorAvatarURL = "http://cdn.example.com/a.jpg" },
			wantField: "author_avatar_url",
			wantRule:  RuleInsecureScheme,
		},
		{
			name:      "scheme-relative avatar url",
			mutate:    func(in *CreateCommentInput) { in.AuthorAvatarURL = "//cdn.example.com/a.jpg" },
			wantField: "author_avatar_url",
			wantRule:  RuleInsecureScheme,
		},
		{
			name:      "loopback avatar host",
			mutate:    func(in *CreateCommentInput) { in.AuthorAvatarURL = "https://127.0.0.1/a.jpg" },
			wantField: "author_avatar_url",
			wantRule:  RuleUnsafeHost,
		},
		{
			name:      "metadata service avatar host",
			mutate:    func(in *CreateCommentInput) { in.AuthorAvatarURL = "https://169.254.169.254/latest/meta-data" },
			wantField: "author_avatar_url",
			wantRule:  RuleUnsafeHost,
		},
		{
			name:      "private avatar host",
			mutate:    func(in *CreateCommentInput) { in.AuthorAvatarURL = "https://10.0.0.8/a.jpg" },
			wantField: "author_avatar_url",
			wantRule:  RuleUnsafeHost,
		},
		{
			name:      "content over max length",
			mutate:    func(in *CreateCommentInput) { in.Content = strings.Repeat("a b ", 5000) },
			wantField: "content",
			wantRule:  RuleMaxLength,
		},
		{
			name:      "script tag",
			mutate:    func(in *CreateCommentInput) { in.Content = `nice <script>alert(1)</script> post` },
			wantField: "content",
			wantRule:  RuleXSSDetected,
		},
		{
			name:      "event handler",
			mutate:    func(in *CreateCommentInput) { in.Content = `<img src=x onerror=alert(1)>` },
			wantField: "content",
			wantRule:  RuleXSSDetected,
		},
		{
			name:      "url-encoded script tag",
			mutate:    func(in *CreateCommentInput) { in.Content = `%3Cscript%3Ealert(1)%3C/script%3E` },
			wantField: "content",
			wantRule:  RuleXSSDetected,
		},
		{
			name:      "boolean tautology",
			mutate:    func(in *CreateCommentInput) { in.Content = `' OR '1'='1` },
			wantField: "content",
			wantRule:  RuleSQLiDetected,
		},
		{
			name:      "union select",
			mutate:    func(in *CreateCommentInput) { in.Content = `1 UNION SELECT username, password FROM users` },
			wantField: "content",
			wantRule:  RuleSQLiDetected,
		},
		{
			name:      "html-only content",
			mutate:    func(in *CreateCommentInput) { in.Content = `<b></b><i> </i>` },
			wantField: "content",
			wantRule:  RuleEmptyContent,
		},
		{
			name:      "repeated character spam",
			mutate:    func(in *CreateCommentInput) { in.Content = "wooooooooooow great" },
			wantField: "content",
			wantRule:  RuleSpamDetected,
		},
		{
			name: "link spam",
			mutate: func(in *CreateCommentInput) {
				in.Content = "buy https://a.example https://b.example https://c.example https://d.example"
			},
			wantField: "content",
			wantRule:  RuleSpamDetected,
		},
	}

	p := NewPipeline(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			_, err := p.ValidateCreate(in)
			if err == nil {
				t.Fatal("ValidateCreate() succeeded, want failure")
			}
			issue, ok := err.(*Issue)
			if !ok {
				t.Fatalf("ValidateCreate() error type = %T, want *Issue", err)
			}
			if issue.Field != tt.wantField || issue.Rule != tt.wantRule {
				t.Errorf("ValidateCreate() failed on %s/%s, want %s/%s",
					issue.Field, issue.Rule, tt.wantField, tt.wantRule)
			}
		})
	}
}

func TestValidateCreateAcceptsBenignProse(t *testing.T) {
	// Comments that mention risky-sounding words must not be rejected
	contents := []string{
		"I'd select the red one or maybe the blue and white one",
		"The script for this movie was amazing",
		"Use the union of both sets and you get the answer",
		"Great insert in the magazine today",
		"I was going to drop by the table at the cafe",
		"My handler said 2 + 2 = 4, can you believe it?",
	}

	p := NewPipeline(Config{})
	for _, content := range contents {
		in := validInput()
		in.Content = content
		if _, err := p.ValidateCreate(in); err != nil {
			t.Errorf("ValidateCreate(%q) error = %v, want accepted", content, err)
		}
	}
}

func TestValidateCreateSanitizes(t *testing.T) {
	p := NewPipeline(Config{})

	in := validInput()
	in.Content = "  hello   <b>world</b>  "

	out, err := p.ValidateCreate(in)
	if err != nil {
		t.Fatalf("ValidateCreate() error = %v", err)
	}
	if out.Content != "hello world" {
		t.Errorf("ValidateCreate() content = %q, want %q", out.Content, "hello world")
	}
}

func TestValidateCreateHTTPSAvatarAccepted(t *testing.T) {
	p := NewPipeline(Config{})

	in := validInput()
	in.AuthorAvatarURL = "https://cdn.example.com/avatar.jpg"
	if _, err := p.ValidateCreate(in); err != nil {
		t.Errorf("ValidateCreate() error = %v, want accepted", err)
	}
}

func TestValidateUpdate(t *testing.T) {
	strPtr := func(s string) *string { return &s }

	tests := []struct {
		name     string
		input    UpdateCommentInput
		wantRule string // empty means accepted
	}{
		{
			name:  "content only",
			input: UpdateCommentInput{Content: strPtr("updated thoughts")},
		},
		{
			name:  "sentiment only",
			input: UpdateCommentInput{SentimentScore: floatPtr(0.8)},
		},
		{
			name:     "empty payload",
			input:    UpdateCommentInput{},
			wantRule: RuleRequired,
		},
		{
			name:     "sentiment out of range",
			input:    UpdateCommentInput{SentimentScore: floatPtr(2)},
			wantRule: RuleOutOfRange,
		},
		{
			name:     "hostile content",
			input:    UpdateCommentInput{Content: strPtr("<script>steal()</script>")},
			wantRule: RuleXSSDetected,
		},
		{
			name:     "content empty after sanitize",
			input:    UpdateCommentInput{Content: strPtr("<i></i>")},
			wantRule: RuleEmptyContent,
		},
	}

	p := NewPipeline(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ValidateUpdate(tt.input)
			if tt.wantRule == "" {
				if err != nil {
					t.Fatalf("ValidateUpdate() error = %v, want accepted", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateUpdate() succeeded, want failure")
			}
			issue := err.(*Issue)
			if issue.Rule != tt.wantRule {
				t.Errorf("ValidateUpdate() rule = %s, want %s", issue.Rule, tt.wantRule)
			}
		})
	}
}

func TestValidateUpdateSanitizesContent(t *testing.T) {
	p := NewPipeline(Config{})

	content := "  new   <em>take</em> "
	out, err := p.ValidateUpdate(UpdateCommentInput{Content: &content})
	if err != nil {
		t.Fatalf("ValidateUpdate() error = %v", err)
	}
	if *out.Content != "new take" {
		t.Errorf("ValidateUpdate() content = %q, want %q", *out.Content, "new take")
	}
}

func TestPipelineCustomLimits(t *testing.T) {
	p := NewPipeline(Config{MaxContentLength: 10})

	in := validInput()
	in.Content = "this is definitely longer than ten characters"

	_, err := p.ValidateCreate(in)
	issue, ok := err.(*Issue)
	if !ok || issue.Rule != RuleMaxLength {
		t.Errorf("ValidateCreate() error = %v, want %s", err, RuleMaxLength)
	}
}
