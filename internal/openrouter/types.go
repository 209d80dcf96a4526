package openrouter

import "time"

// Message is one chat message in the OpenAI-compatible wire format.
// Content is a pointer so assistant messages carrying only tool calls can
// omit it.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Str returns a pointer to s, for Message.Content literals.
func Str(s string) *string { return &s }

// Text returns the message content, or "" when absent.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// ToolCall is a tool invocation attempted by the model, or replayed into
// conversation history.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc carries the function name and raw JSON arguments.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef declares a callable tool to the model.
type ToolDef struct {
	Type     string      `json:"type"`
	Function ToolDefFunc `json:"function"`
}

// ToolDefFunc describes a tool function and its JSON Schema parameters.
type ToolDefFunc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatParams are the inputs to a single logical chat completion.
type ChatParams struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// ReasoningEffort overrides the per-model default: "off" disables
	// reasoning, "auto" or "" resolves from the model prefix table.
	ReasoningEffort string
	Tools           []ToolDef
}

// Usage holds token counts and cost for one API call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Elapsed          time.Duration
}

// ChatResult is the outcome of a chat completion. Content may be empty when
// the model produced only reasoning tokens or a malformed tool call; callers
// decide whether that is an error.
//
// ContentThinking is text the model wrote in the content field alongside a
// send_message_to_human call; the tool-call message replaces it as Content.
// It is distinct from ReasoningContent, which comes from the API's native
// reasoning field.
type ChatResult struct {
	Content          string
	Usage            Usage
	Model            string
	FinishReason     string
	ReasoningContent string
	ContentThinking  string
	ToolCalls        []ToolCall
}

// Wire request/response shapes.

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	Tools       []ToolDef      `json:"tools,omitempty"`
	Reasoning   *reasoningOpts `json:"reasoning,omitempty"`
}

type reasoningOpts struct {
	Effort string `json:"effort"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content          string     `json:"content"`
			Reasoning        string     `json:"reasoning"`
			ReasoningContent string     `json:"reasoning_content"`
			ToolCalls        []ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type modelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		Pricing struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
		SupportedParameters []string `json:"supported_parameters"`
	} `json:"data"`
}
