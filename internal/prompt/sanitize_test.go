package prompt

import (
	"testing"

	"github.com/basket/indiebench/internal/openrouter"
)

func TestSanitize_MergesConsecutiveAssistant(t *testing.T) {
	messages := []openrouter.Message{
		{Role: "system", Content: openrouter.Str("sys")},
		{Role: "user", Content: openrouter.Str("hi")},
		{Role: "assistant", Content: openrouter.Str("thinking out loud")},
		{Role: "assistant", ToolCalls: []openrouter.ToolCall{{
			ID: "hmsg00001", Type: "function",
			Function: openrouter.ToolCallFunc{Name: "send_message_to_human", Arguments: `{"message": "hi"}`},
		}}},
	}
	got := Sanitize(messages)

	assertRoles(t, got, "system", "user", "assistant")
	merged := got[2]
	if merged.Text() != "thinking out loud" {
		t.Errorf("merged content = %q", merged.Text())
	}
	if len(merged.ToolCalls) != 1 {
		t.Errorf("merged tool calls = %d", len(merged.ToolCalls))
	}
}

func TestSanitize_MergesConsecutiveUser(t *testing.T) {
	messages := []openrouter.Message{
		{Role: "system", Content: openrouter.Str("sys")},
		{Role: "user", Content: openrouter.Str("part one")},
		{Role: "user", Content: openrouter.Str("part two")},
	}
	got := Sanitize(messages)

	assertRoles(t, got, "system", "user")
	if got[1].Text() != "part one\n\npart two" {
		t.Errorf("merged user = %q", got[1].Text())
	}
}

func TestSanitize_InsertsUserBeforeFirstAssistant(t *testing.T) {
	messages := []openrouter.Message{
		{Role: "system", Content: openrouter.Str("sys")},
		{Role: "assistant", Content: openrouter.Str("hello")},
	}
	got := Sanitize(messages)

	assertRoles(t, got, "system", "user", "assistant")
	if got[1].Text() != "[start]" {
		t.Errorf("bridge message = %q", got[1].Text())
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	messages := []openrouter.Message{
		{Role: "system", Content: openrouter.Str("sys")},
		{Role: "assistant", Content: openrouter.Str("a")},
		{Role: "assistant", Content: openrouter.Str("b")},
		{Role: "user", Content: openrouter.Str("u")},
	}
	once := Sanitize(messages)
	twice := Sanitize(once)
	if len(once) != len(twice) {
		t.Fatalf("lengths differ: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Role != twice[i].Role || once[i].Text() != twice[i].Text() {
			t.Errorf("message %d changed on second pass", i)
		}
	}
}

func TestSanitize_ToolMessagesUntouched(t *testing.T) {
	messages := []openrouter.Message{
		{Role: "system", Content: openrouter.Str("sys")},
		{Role: "user", Content: openrouter.Str("[start]")},
		{Role: "assistant", ToolCalls: []openrouter.ToolCall{{ID: "hmsg00001"}}},
		{Role: "tool", Content: openrouter.Str("q1"), ToolCallID: "hmsg00001"},
		{Role: "assistant", ToolCalls: []openrouter.ToolCall{{ID: "hmsg00002"}}},
		{Role: "tool", Content: openrouter.Str("q2"), ToolCallID: "hmsg00002"},
	}
	got := Sanitize(messages)
	if len(got) != len(messages) {
		t.Fatalf("len = %d, want %d", len(got), len(messages))
	}
}

func TestSanitize_Empty(t *testing.T) {
	if got := Sanitize(nil); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
