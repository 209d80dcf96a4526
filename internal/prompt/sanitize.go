package prompt

import "github.com/basket/indiebench/internal/openrouter"

// Sanitize normalizes a message array for maximum provider compatibility.
// Some providers (Z.AI/GLM) reject consecutive same-role messages and
// require a user message before any assistant message.
//
// Pass 1 merges consecutive same-role messages: assistant pairs combine
// content and tool_calls into one message, user pairs concatenate content
// with a blank line. System and tool messages are never merged (system is
// always first, tool must correspond 1:1 with a tool_call_id).
//
// Pass 2 inserts a minimal "[start]" user message when the first
// non-system message is an assistant one.
//
// Sanitize is idempotent.
func Sanitize(messages []openrouter.Message) []openrouter.Message {
	if len(messages) == 0 {
		return messages
	}

	result := []openrouter.Message{messages[0]}
	for _, msg := range messages[1:] {
		prev := &result[len(result)-1]

		if msg.Role == "assistant" && prev.Role == "assistant" {
			if prev.Text() != "" && msg.Text() != "" {
				prev.Content = openrouter.Str(prev.Text() + "\n\n" + msg.Text())
			} else if msg.Text() != "" {
				prev.Content = msg.Content
			}
			if len(msg.ToolCalls) > 0 {
				prev.ToolCalls = append(prev.ToolCalls, msg.ToolCalls...)
			}
			continue
		}

		if msg.Role == "user" && prev.Role == "user" {
			joined := prev.Text()
			if msg.Text() != "" {
				if joined != "" {
					joined += "\n\n"
				}
				joined += msg.Text()
			}
			prev.Content = openrouter.Str(joined)
			continue
		}

		result = append(result, msg)
	}

	if len(result) >= 2 && result[0].Role == "system" && result[1].Role == "assistant" {
		rest := append([]openrouter.Message{{Role: "user", Content: openrouter.Str("[start]")}}, result[1:]...)
		result = append(result[:1], rest...)
	}

	return result
}
