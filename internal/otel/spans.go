package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for benchmark spans.
var (
	AttrModel        = attribute.Key("indiebench.model")
	AttrJudgeModel   = attribute.Key("indiebench.judge.model")
	AttrExperiment   = attribute.Key("indiebench.experiment")
	AttrVariant      = attribute.Key("indiebench.variant")
	AttrMode         = attribute.Key("indiebench.mode")
	AttrScenarioID   = attribute.Key("indiebench.scenario.id")
	AttrTaskID       = attribute.Key("indiebench.task.id")
	AttrRunID        = attribute.Key("indiebench.run.id")
	AttrTokensInput  = attribute.Key("indiebench.tokens.input")
	AttrTokensOutput = attribute.Key("indiebench.tokens.output")
	AttrFinishReason = attribute.Key("indiebench.finish_reason")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (OpenRouter API).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
