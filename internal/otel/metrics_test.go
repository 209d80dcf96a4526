package otel

import (
	"context"
	"testing"
)

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	p, err := Init(context.Background(), Config{
		Enabled:  true,
		Exporter: "none",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.TaskDuration == nil {
		t.Error("TaskDuration is nil")
	}
	if m.TasksCompleted == nil {
		t.Error("TasksCompleted is nil")
	}
	if m.TasksFailed == nil {
		t.Error("TasksFailed is nil")
	}
	if m.TaskRetries == nil {
		t.Error("TaskRetries is nil")
	}
	if m.ChatDuration == nil {
		t.Error("ChatDuration is nil")
	}
	if m.ChatRequests == nil {
		t.Error("ChatRequests is nil")
	}
	if m.PromptTokens == nil {
		t.Error("PromptTokens is nil")
	}
	if m.CompletionTokens == nil {
		t.Error("CompletionTokens is nil")
	}
	if m.CostUSD == nil {
		t.Error("CostUSD is nil")
	}
	if m.CacheHits == nil {
		t.Error("CacheHits is nil")
	}
}

func TestNewMetrics_NoopMeter(t *testing.T) {
	// Disabled OTel returns a noop meter; instruments should still create without error.
	p, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("NewMetrics with noop: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}
