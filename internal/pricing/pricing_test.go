package pricing

import "testing"

func TestEstimateCost_KnownModel(t *testing.T) {
	// gpt-5-nano: $0.05 per 1M prompt, $0.40 per 1M completion.
	cost := EstimateCost("openai/gpt-5-nano", 1_000_000, 1_000_000)
	expected := 0.05 + 0.40
	if cost < expected-1e-9 || cost > expected+1e-9 {
		t.Fatalf("expected %f, got %f", expected, cost)
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	cost := EstimateCost("unknown-model-xyz", 1000, 500)
	if cost != 0.0 {
		t.Fatalf("expected 0.0 for unknown model, got %f", cost)
	}
}

func TestCost_PerToken(t *testing.T) {
	p := ModelPricing{PromptPerToken: 0.000001, CompletionPerToken: 0.000002}
	got := p.Cost(1000, 500)
	want := 0.001 + 0.001
	if got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("Cost = %f, want %f", got, want)
	}
}

func TestKnown_Absent(t *testing.T) {
	if _, ok := Known("nope/nothing"); ok {
		t.Fatal("expected Known to report false for an unlisted model")
	}
}
