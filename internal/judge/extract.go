package judge

import (
	"encoding/json"
	"strings"
)

// ExtractJSON finds the JSON object in a judge response that may wrap it in
// markdown fences or surrounding prose. Returns "" when no object parses.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if isObject(text) {
		return text
	}

	// Fenced JSON block: ```json\n...\n```
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + 7
		if start < len(text) && text[start] == '\n' {
			start++
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if isObject(candidate) {
				return candidate
			}
		}
	}

	// Generic fenced block.
	if idx := strings.Index(text, "```\n"); idx >= 0 {
		start := idx + 4
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if isObject(candidate) {
				return candidate
			}
		}
	}

	// First balanced { ... } anywhere in the text.
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			candidate := extractBalanced(text[i:])
			if isObject(candidate) {
				return candidate
			}
		}
	}

	return ""
}

func isObject(s string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}

// extractBalanced returns the balanced object starting at s[0], tracking
// string literals and escapes so braces inside values do not miscount.
func extractBalanced(s string) string {
	if len(s) == 0 || s[0] != '{' {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}

	return ""
}
