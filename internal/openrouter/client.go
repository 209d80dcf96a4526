// Package openrouter is a thin HTTP client for the OpenRouter chat
// completions API: request retry with exponential backoff, per-call cost
// accounting from live pricing, and extraction of tool-delivered responses.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	obs "github.com/basket/indiebench/internal/otel"
	"github.com/basket/indiebench/internal/pricing"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTimeout = 90 * time.Second

	// maxRetries bounds request-level retries on retryable status codes.
	maxRetries = 5
	// retryBackoffBase seeds the exponential backoff between request retries.
	retryBackoffBase = 3 * time.Second
	// emptyContentRetries re-issues a call when the model spent tokens but
	// produced no usable content (reasoning-only or malformed tool call).
	emptyContentRetries = 2
)

// retryableStatus lists the HTTP statuses worth retrying: payment hiccups,
// rate limits, and upstream flakiness.
var retryableStatus = map[int]bool{
	http.StatusPaymentRequired:     true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openrouter: status %d: %s", e.Status, e.Body)
}

// Client talks to OpenRouter. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *obs.Metrics

	backoffBase time.Duration

	mu        sync.Mutex
	pricing   map[string]pricing.ModelPricing
	reasoning map[string]bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTelemetry attaches a tracer and metric instruments to each call.
func WithTelemetry(tracer trace.Tracer, m *obs.Metrics) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
		c.metrics = m
	}
}

// WithRetryBackoff changes the base interval between request retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoffBase = d }
}

// New returns a client authenticated with the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		http:        &http.Client{Timeout: defaultTimeout},
		logger:      slog.Default(),
		tracer:      nooptrace.NewTracerProvider().Tracer(obs.TracerName),
		backoffBase: retryBackoffBase,
		reasoning:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a chat completion and returns the parsed result. When tools are
// supplied the send_message_to_human call argument becomes the content and
// any assistant text is kept as private reasoning. A result with empty
// Content after the internal empty-content retries is returned as-is; the
// caller decides whether that is an error.
func (c *Client) Chat(ctx context.Context, p ChatParams) (*ChatResult, error) {
	effort := c.resolveReasoningEffort(ctx, p.Model, p.ReasoningEffort)

	var result *ChatResult
	for attempt := 1; attempt <= emptyContentRetries+1; attempt++ {
		var err error
		result, err = c.chatOnce(ctx, p, effort)
		if err != nil {
			return nil, err
		}

		if len(p.Tools) > 0 && len(result.ToolCalls) > 0 {
			for _, tc := range result.ToolCalls {
				if tc.Function.Name != SendMessageToolName {
					continue
				}
				if msg := ExtractToolMessage(tc.Function.Arguments); msg != "" {
					// The tool-call message is the response; existing
					// content stays as private thinking.
					result.ContentThinking = result.Content
					result.Content = msg
					break
				}
			}
		}

		if result.Content != "" {
			return result, nil
		}
		if result.Usage.CompletionTokens > 0 && attempt <= emptyContentRetries {
			reason := "reasoning_only"
			if len(result.ToolCalls) > 0 {
				reason = "tool_call_no_message"
			}
			c.logger.Warn("empty response, retrying",
				"model", p.Model, "reason", reason,
				"finish_reason", result.FinishReason,
				"completion_tokens", result.Usage.CompletionTokens,
				"attempt", attempt, "max", emptyContentRetries)
			continue
		}
		return result, nil
	}
	return result, nil
}

// chatOnce executes one chat completion with request-level retry on
// retryable status codes.
func (c *Client) chatOnce(ctx context.Context, p ChatParams, effort string) (*ChatResult, error) {
	req := chatRequest{
		Model:       p.Model,
		Messages:    p.Messages,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Tools:       p.Tools,
	}
	if effort != "" {
		req.Reasoning = &reasoningOpts{Effort: effort}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	ctx, span := obs.StartClientSpan(ctx, c.tracer, "openrouter.chat",
		obs.AttrModel.String(p.Model))
	defer span.End()

	var result *ChatResult
	operation := func() error {
		start := time.Now()
		resp, err := c.post(ctx, "/chat/completions", body)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && retryableStatus[se.Status] {
				c.logger.Warn("retryable API error",
					"model", p.Model, "status", se.Status)
				return err
			}
			return backoff.Permanent(err)
		}

		var parsed chatResponse
		if err := json.Unmarshal(resp, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		result = c.buildResult(p.Model, &parsed, time.Since(start))
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffBase
	bo.Multiplier = 3
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ChatRequests.Add(ctx, 1)
		c.metrics.ChatDuration.Record(ctx, result.Usage.Elapsed.Seconds())
		c.metrics.PromptTokens.Add(ctx, int64(result.Usage.PromptTokens))
		c.metrics.CompletionTokens.Add(ctx, int64(result.Usage.CompletionTokens))
		c.metrics.CostUSD.Add(ctx, result.Usage.CostUSD)
	}
	span.SetAttributes(
		obs.AttrTokensInput.Int(result.Usage.PromptTokens),
		obs.AttrTokensOutput.Int(result.Usage.CompletionTokens),
		obs.AttrFinishReason.String(result.FinishReason),
	)
	return result, nil
}

func (c *Client) buildResult(model string, parsed *chatResponse, elapsed time.Duration) *ChatResult {
	result := &ChatResult{Model: model}
	if len(parsed.Choices) > 0 {
		choice := parsed.Choices[0]
		result.FinishReason = choice.FinishReason
		result.Content = strings.TrimSpace(choice.Message.Content)
		if rc := strings.TrimSpace(choice.Message.Reasoning); rc != "" {
			result.ReasoningContent = rc
		} else if rc := strings.TrimSpace(choice.Message.ReasoningContent); rc != "" {
			result.ReasoningContent = rc
		}
		result.ToolCalls = choice.Message.ToolCalls
	}
	result.Usage = Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Elapsed:          elapsed,
	}
	result.Usage.CostUSD = c.modelPricing(model).Cost(
		result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// FetchPricing loads per-token pricing and reasoning support for all models
// from the models endpoint, caching in memory for the client's lifetime.
func (c *Client) FetchPricing(ctx context.Context) (map[string]pricing.ModelPricing, error) {
	c.mu.Lock()
	if c.pricing != nil {
		cached := c.pricing
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pricing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var parsed modelsResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode pricing response: %w", err)
	}

	table := make(map[string]pricing.ModelPricing, len(parsed.Data))
	reasoning := make(map[string]bool)
	for _, m := range parsed.Data {
		prompt, _ := strconv.ParseFloat(m.Pricing.Prompt, 64)
		completion, _ := strconv.ParseFloat(m.Pricing.Completion, 64)
		table[m.ID] = pricing.ModelPricing{
			PromptPerToken:     prompt,
			CompletionPerToken: completion,
		}
		for _, param := range m.SupportedParameters {
			if param == "reasoning" {
				reasoning[m.ID] = true
				break
			}
		}
	}

	c.mu.Lock()
	c.pricing = table
	c.reasoning = reasoning
	c.mu.Unlock()
	return table, nil
}

// ValidateModel reports whether the model exists on OpenRouter. Requires
// pricing to have been fetched; returns true on fetch failure so an offline
// run is not blocked.
func (c *Client) ValidateModel(ctx context.Context, modelID string) bool {
	table, err := c.FetchPricing(ctx)
	if err != nil {
		c.logger.Warn("model validation skipped", "error", err)
		return true
	}
	_, ok := table[modelID]
	return ok
}

// modelPricing returns cached live pricing for a model, falling back to the
// static table.
func (c *Client) modelPricing(modelID string) pricing.ModelPricing {
	c.mu.Lock()
	p, ok := c.pricing[modelID]
	c.mu.Unlock()
	if ok {
		return p
	}
	if fallback, ok := pricing.Known(modelID); ok {
		return fallback
	}
	return pricing.ModelPricing{}
}

func (c *Client) supportsReasoning(ctx context.Context, modelID string) bool {
	if _, err := c.FetchPricing(ctx); err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasoning[modelID]
}

func (c *Client) resolveReasoningEffort(ctx context.Context, model, override string) string {
	if override == "off" {
		return ""
	}
	if override != "" && override != "auto" {
		return override
	}
	if !c.supportsReasoning(ctx, model) {
		return ""
	}
	return DefaultReasoningEffort(model)
}
