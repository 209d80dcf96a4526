package telemetry

import "regexp"

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches secret-bearing substrings in log and error text.
var secretPatterns = []*regexp.Regexp{
	// Generic key=value style secrets.
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|bearer)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{16,})"?`),
	// Authorization headers.
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// OpenRouter API keys.
	regexp.MustCompile(`sk-or-[A-Za-z0-9_\-]{16,}`),
}

// Redact replaces secret-bearing patterns in the input string with
// [REDACTED], keeping the key-like prefix when one was matched.
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			submatch := pat.FindStringSubmatch(match)
			if len(submatch) >= 3 {
				return submatch[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}
