package security

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// pattern is one named entry in a detection family. Tables are data-driven:
// new vectors are appended as entries, never as control-flow changes, so
// additions cannot regress existing behavior.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// xssPatterns covers the XSS vector families: script/style tags, dangerous
// embedding elements, event handlers, executable URI schemes, and CSS
// expression(). Patterns anchor on the executable syntax (e.g. "<script",
// "javascript:"), never the bare word, so prose that merely mentions
// "script" is not flagged.
var xssPatterns = []pattern{
	{"script_tag", regexp.MustCompile(`(?i)<\s*script\b`)},
	{"script_tag_close", regexp.MustCompile(`(?i)<\s*/\s*script\s*>`)},
	{"style_tag", regexp.MustCompile(`(?i)<\s*style\b`)},
	{"iframe_tag", regexp.MustCompile(`(?i)<\s*iframe\b`)},
	{"object_tag", regexp.MustCompile(`(?i)<\s*object\b`)},
	{"embed_tag", regexp.MustCompile(`(?i)<\s*embed\b`)},
	{"svg_tag", regexp.MustCompile(`(?i)<\s*svg\b`)},
	{"meta_refresh", regexp.MustCompile(`(?i)<\s*meta\b[^>]*http-equiv`)},
	{"base_tag", regexp.MustCompile(`(?i)<\s*base\b`)},
	{"form_action", regexp.MustCompile(`(?i)<\s*form\b[^>]*action`)},
	{"event_handler", regexp.MustCompile(`(?i)\bon(abort|blur|change|click|dblclick|error|focus|input|keydown|keypress|keyup|load|mousedown|mousemove|mouseout|mouseover|mouseup|pointerover|reset|resize|scroll|select|submit|toggle|unload|wheel)\s*=`)},
	{"javascript_uri", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"vbscript_uri", regexp.MustCompile(`(?i)vbscript\s*:`)},
	{"data_html_uri", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{"css_expression", regexp.MustCompile(`(?i)expression\s*\(`)},
	{"img_src_script", regexp.MustCompile(`(?i)<\s*img\b[^>]*\bsrc\s*=`)},
	{"srcdoc_attr", regexp.MustCompile(`(?i)\bsrcdoc\s*=`)},
	{"import_css", regexp.MustCompile(`(?i)@import\b`)},
	// Encoded forms that survive a caller that decodes only once
	{"encoded_script_pct", regexp.MustCompile(`(?i)%3c\s*script`)},
	{"encoded_script_entity", regexp.MustCompile(`(?i)&lt;\s*script`)},
	{"encoded_script_hex", regexp.MustCompile(`(?i)\\x3c\s*script`)},
	{"spliced_js_uri", regexp.MustCompile(`(?i)j\s+a\s*v\s*a\s*s\s*c\s*r\s*i\s*p\s*t\s*:|jav\s+ascript\s*:|java\s+script\s*:`)},
}

// sqliPatterns covers quote-breakout, boolean, union, stacked, and time-based
// injection idioms plus comment terminators. Every entry requires injection
// syntax around the keyword, so ordinary prose containing "select" or
// "union" alone does not match.
var sqliPatterns = []pattern{
	{"quote_breakout_compare", regexp.MustCompile(`(?i)['"]\s*(or|and)\s+['"]?[\w@]+['"]?\s*(=|<|>)`)},
	{"boolean_tautology", regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`)},
	{"boolean_quote_tautology", regexp.MustCompile(`(?i)\b(or|and)\s+'[^']*'\s*=\s*'[^']*'`)},
	{"union_select", regexp.MustCompile(`(?i)\bunion(\s+all)?\s+select\b`)},
	{"stacked_statement", regexp.MustCompile(`(?i);\s*(select|insert|update|delete|drop|alter|create|truncate|exec|execute)\b`)},
	{"drop_table", regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`)},
	{"insert_into_values", regexp.MustCompile(`(?i)\binsert\s+into\s+\w+\s*(\(|values\s*\()`)},
	{"delete_from", regexp.MustCompile(`(?i)\bdelete\s+from\s+\w+\s*(;|--|\s+where\s+['\d])`)},
	{"select_from_breakout", regexp.MustCompile(`(?i)['");]\s*select\b.*\bfrom\b`)},
	{"comment_terminator", regexp.MustCompile(`(?i)['"\d)]\s*--(\s|$)`)},
	{"inline_comment", regexp.MustCompile(`/\*.*\*/|/\*!`)},
	{"hash_terminator", regexp.MustCompile(`(?i)['"]\s*(or|and)\b[^#]{0,60}#\s*$`)},
	{"time_based", regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b`)},
	{"info_schema", regexp.MustCompile(`(?i)\binformation_schema\b`)},
	{"system_proc", regexp.MustCompile(`(?i)\b(xp_cmdshell|sp_executesql|load_file|into\s+(out|dump)file)\b`)},
	{"concat_breakout", regexp.MustCompile(`(?i)['"]\s*\|\|\s*|\bconcat\s*\(.*\bchar\s*\(`)},
	{"always_true_paren", regexp.MustCompile(`(?i)\(\s*\d+\s*=\s*\d+\s*\)\s*(--|#|/\*)`)},
}

// normalize undoes the encodings attackers use to smuggle vectors past naive
// filters: percent encoding and HTML entities. Decoding failures fall back
// to the raw text; both forms are matched.
func normalize(text string) string {
	out := text
	if decoded, err := url.QueryUnescape(out); err == nil {
		out = decoded
	}
	out = html.UnescapeString(out)
	// Collapse NUL and other C0 separators attackers splice into keywords
	out = strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, out)
	return out
}

// matchAny runs one pass over a pattern table, returning the name of the
// first matching entry.
func matchAny(table []pattern, text string) (string, bool) {
	for _, p := range table {
		if p.re.MatchString(text) {
			return p.name, true
		}
	}
	return "", false
}

// DetectXSS reports whether text contains a cross-site scripting vector.
// Both the raw input and its decoded form are evaluated.
func DetectXSS(text string) bool {
	_, hit := MatchXSS(text)
	return hit
}

// MatchXSS is DetectXSS with the matching pattern name, for audit detail.
func MatchXSS(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if name, hit := matchAny(xssPatterns, text); hit {
		return name, true
	}
	return matchAny(xssPatterns, normalize(text))
}

// DetectSQLInjection reports whether text contains an SQL injection idiom.
// Both the raw input and its decoded form are evaluated.
func DetectSQLInjection(text string) bool {
	_, hit := MatchSQLInjection(text)
	return hit
}

// MatchSQLInjection is DetectSQLInjection with the matching pattern name.
func MatchSQLInjection(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if name, hit := matchAny(sqliPatterns, text); hit {
		return name, true
	}
	return matchAny(sqliPatterns, normalize(text))
}
