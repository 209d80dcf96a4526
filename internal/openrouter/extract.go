package openrouter

import (
	"encoding/json"
	"regexp"
	"strings"
)

var messageFieldRe = regexp.MustCompile(`"message"\s*:\s*"`)

// ExtractToolMessage pulls the "message" value out of send_message_to_human
// tool-call arguments. Handles both valid and truncated JSON: when the model
// hits max_tokens mid-sentence the argument string is cut off with no
// closing quote or brace.
func ExtractToolMessage(rawArgs string) string {
	// Clean parse first.
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err == nil {
		if msg, ok := args["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}

	// Truncated JSON fallback: take everything after `"message": "`.
	loc := messageFieldRe.FindStringIndex(rawArgs)
	if loc == nil {
		return ""
	}
	raw := rawArgs[loc[1]:]
	// Drop a trailing half-written escape.
	raw = strings.TrimSuffix(raw, `\`)

	// Re-close the JSON string and let the decoder unescape it.
	var parsed string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &parsed); err == nil {
		return strings.TrimSpace(parsed)
	}

	// Even that failed; unescape the common sequences by hand.
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
	return strings.TrimSpace(r.Replace(raw))
}
