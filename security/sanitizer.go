package security

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// DefaultMaxSanitizedLength bounds sanitized text when the caller
	// passes no explicit limit
	DefaultMaxSanitizedLength = 10000

	// repeatedRunThreshold is the repeated-character run length treated
	// as a spam signal
	repeatedRunThreshold = 10

	// DefaultMaxURLCount is the URL count above which text is treated as
	// link spam
	DefaultMaxURLCount = 3
)

// strictPolicy strips all HTML. bluemonday policies are safe for concurrent
// use once constructed.
var strictPolicy = bluemonday.StrictPolicy()

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	urlMatcher     = regexp.MustCompile(`(?i)(https?://[^\s]+|www\.[^\s]+\.[^\s]+)`)
	punctuationRun = regexp.MustCompile(`[!?.,;:*]{6,}`)
)

// Sanitize strips HTML, escapes residual HTML-significant characters,
// collapses internal whitespace runs to single spaces, trims, and truncates
// to maxLength (DefaultMaxSanitizedLength when maxLength <= 0). Empty input
// yields ""; callers with absent or non-string values pass "".
func Sanitize(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxSanitizedLength
	}

	out := strictPolicy.Sanitize(text)

	// bluemonday entity-escapes what it keeps; normalize back to text and
	// re-escape the characters we never allow through raw.
	out = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&#34;", `"`,
		"&#39;", "'",
	).Replace(out)
	out = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&#34;",
	).Replace(out)

	out = whitespaceRun.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)

	if utf8.RuneCountInString(out) > maxLength {
		runes := []rune(out)
		out = strings.TrimSpace(string(runes[:maxLength]))
	}

	return out
}

// SpamSignals describes the heuristic signals found in a piece of text.
// Signals contribute to a rejection decision; none is individually fatal
// except through IsSpam.
type SpamSignals struct {
	LongestCharRun    int  // longest run of one repeated character
	URLCount          int  // number of URL-shaped substrings
	HasPunctuationRun bool // a run of 6+ punctuation characters
	HasControlBytes   bool // control or binary bytes outside \t \n \r
}

// AnalyzeSpam computes the heuristic spam signals for text.
func AnalyzeSpam(text string) SpamSignals {
	return SpamSignals{
		LongestCharRun:    longestRun(text),
		URLCount:          len(urlMatcher.FindAllString(text, -1)),
		HasPunctuationRun: punctuationRun.MatchString(text),
		HasControlBytes:   hasControlBytes(text),
	}
}

// IsSpam reports whether the combined signals cross the rejection threshold.
// maxURLs <= 0 selects DefaultMaxURLCount.
func IsSpam(text string, maxURLs int) bool {
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLCount
	}
	s := AnalyzeSpam(text)
	return s.LongestCharRun >= repeatedRunThreshold ||
		s.URLCount > maxURLs ||
		s.HasPunctuationRun ||
		s.HasControlBytes
}

// longestRun returns the length of the longest run of a single repeated
// rune. Go's RE2 engine has no backreferences, so this is a plain scan.
func longestRun(text string) int {
	var prev rune
	run, longest := 0, 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

// hasControlBytes reports whether text contains control or binary bytes
// beyond ordinary whitespace.
func hasControlBytes(text string) bool {
	for _, r := range text {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if r == utf8.RuneError || unicode.IsControl(r) {
			return true
		}
	}
	return false
}
