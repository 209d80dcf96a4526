package openrouter

import "strings"

// SendMessageToolName is the single tool exposed in tool_role delivery mode.
// The model speaks to the human exclusively by calling it.
const SendMessageToolName = "send_message_to_human"

// SendMessageToolDef declares the send_message_to_human tool.
var SendMessageToolDef = ToolDef{
	Type: "function",
	Function: ToolDefFunc{
		Name: SendMessageToolName,
		Description: "Sends your message to the human companion. " +
			"This is the ONLY way to communicate with your human. " +
			"Put your full response text in the 'message' parameter.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Your message text to send to the human.",
				},
			},
			"required": []string{"message"},
		},
	},
}

// DefaultReasoningEffort returns the reasoning effort used for a model when
// the caller does not override it. Matched on the longest model ID prefix.
func DefaultReasoningEffort(modelID string) string {
	efforts := map[string]string{
		"google/": "none",
		"qwen/":   "none",
		"openai/": "low",
	}
	best := ""
	effort := "low"
	for prefix, e := range efforts {
		if len(prefix) > len(best) && strings.HasPrefix(modelID, prefix) {
			best = prefix
			effort = e
		}
	}
	return effort
}
