package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/socialpulse/commentguard/security"
)

// Field name fragments that mark a value as secret-bearing. Matched
// case-insensitively as substrings, so "access_token" and "apiKey" both hit.
var secretFragments = []string{
	"token", "secret", "key", "password", "credential", "authorization",
}

// Free-text fields are replaced by a length and hash prefix rather than
// masked, so log correlation stays possible without leaking the text.
var freeTextFields = map[string]bool{
	"content": true,
	"text":    true,
	"body":    true,
	"message": true,
}

// Redact returns a log-safe copy of a payload map. Secret-bearing values
// are masked, free text is reduced to its length and digest prefix, and
// nested maps are redacted recursively. The input is never mutated.
func Redact(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case isSecretField(k):
			out[k] = "[REDACTED]"
		case freeTextFields[strings.ToLower(k)]:
			out[k] = summarizeText(v)
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = Redact(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func isSecretField(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range secretFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func summarizeText(v any) string {
	s, ok := v.(string)
	if !ok {
		return "[REDACTED]"
	}
	return fmt.Sprintf("len=%d hash=%s", utf8.RuneCountInString(s), security.HashForLogging(s))
}
