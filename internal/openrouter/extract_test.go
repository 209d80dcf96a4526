package openrouter

import "testing"

func TestExtractToolMessage_ValidJSON(t *testing.T) {
	got := ExtractToolMessage(`{"message": "Hello, human!"}`)
	if got != "Hello, human!" {
		t.Errorf("got %q", got)
	}
}

func TestExtractToolMessage_TruncatedJSON(t *testing.T) {
	// Model hit max_tokens mid-argument: no closing quote or brace.
	got := ExtractToolMessage(`{"message": "I was in the middle of say`)
	if got != "I was in the middle of say" {
		t.Errorf("got %q", got)
	}
}

func TestExtractToolMessage_TruncatedWithEscapes(t *testing.T) {
	got := ExtractToolMessage(`{"message": "line one\nline two\tend`)
	want := "line one\nline two\tend"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractToolMessage_TrailingBackslash(t *testing.T) {
	// Cut off mid-escape; the dangling backslash is dropped.
	got := ExtractToolMessage(`{"message": "stopped here\`)
	if got != "stopped here" {
		t.Errorf("got %q", got)
	}
}

func TestExtractToolMessage_NoMessageField(t *testing.T) {
	if got := ExtractToolMessage(`{"text": "wrong field"}`); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := ExtractToolMessage(``); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestExtractToolMessage_NonStringMessage(t *testing.T) {
	if got := ExtractToolMessage(`{"message": 42}`); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
