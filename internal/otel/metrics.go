package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all benchmark metric instruments.
type Metrics struct {
	TaskDuration     metric.Float64Histogram
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TaskRetries      metric.Int64Counter
	ChatDuration     metric.Float64Histogram
	ChatRequests     metric.Int64Counter
	PromptTokens     metric.Int64Counter
	CompletionTokens metric.Int64Counter
	CostUSD          metric.Float64Counter
	CacheHits        metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TaskDuration, err = meter.Float64Histogram("indiebench.task.duration",
		metric.WithDescription("Benchmark task duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("indiebench.tasks.completed",
		metric.WithDescription("Tasks that reached a successful terminal state"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("indiebench.tasks.failed",
		metric.WithDescription("Tasks that terminated with an error"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskRetries, err = meter.Int64Counter("indiebench.task.retries",
		metric.WithDescription("Task-level retries on empty responses"),
	)
	if err != nil {
		return nil, err
	}

	m.ChatDuration, err = meter.Float64Histogram("indiebench.chat.duration",
		metric.WithDescription("OpenRouter chat completion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ChatRequests, err = meter.Int64Counter("indiebench.chat.requests",
		metric.WithDescription("OpenRouter chat completion requests"),
	)
	if err != nil {
		return nil, err
	}

	m.PromptTokens, err = meter.Int64Counter("indiebench.tokens.prompt",
		metric.WithDescription("Prompt tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	m.CompletionTokens, err = meter.Int64Counter("indiebench.tokens.completion",
		metric.WithDescription("Completion tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	m.CostUSD, err = meter.Float64Counter("indiebench.cost.usd",
		metric.WithDescription("Accumulated API cost in USD"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("indiebench.cache.hits",
		metric.WithDescription("Tasks short-circuited by a populated cache record"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
