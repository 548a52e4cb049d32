package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cherryquant/orchestrator/internal/resilience"
	"github.com/cherryquant/orchestrator/internal/telemetry"
)

const systemPrompt = `You are a disciplined futures trading strategist. Respond with a single strict JSON object matching the requested schema and nothing else.`

// OpenAIClient implements Client against the OpenAI chat completions API,
// with a per-call timeout, bounded exponential-backoff-with-jitter retries,
// and a circuit breaker guarding against sustained upstream failure.
type OpenAIClient struct {
	client  *openai.Client
	breaker *resilience.CircuitBreaker

	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewOpenAIClient creates an OpenAI-backed LLM client with its own
// dedicated circuit breaker.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithBreaker(apiKey, resilience.NewCircuitBreaker("llm.openai", resilience.DefaultCircuitBreakerConfig()))
}

// NewOpenAIClientWithBreaker creates an OpenAI-backed LLM client guarded by
// a breaker obtained from a shared registry, so the composition root can
// report every external dependency's circuit state (LLM included) from one
// place rather than each client owning an unreachable breaker of its own.
func NewOpenAIClientWithBreaker(apiKey string, breaker *resilience.CircuitBreaker) *OpenAIClient {
	return &OpenAIClient{
		client:       openai.NewClient(apiKey),
		breaker:      breaker,
		maxAttempts:  3,
		initialDelay: 500 * time.Millisecond,
		maxDelay:     8 * time.Second,
	}
}

// BreakerState reports the circuit breaker's current state, for health
// checks that want to flag a tripped breaker without spending a real call.
func (c *OpenAIClient) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

// Complete issues a chat completion, honoring req.Deadline as a hard ceiling
// on top of ctx, and retrying transient failures with exponential backoff
// plus jitter before giving up to the caller's fallback path.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	delay := c.initialDelay
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		start := time.Now()
		text, err := resilience.ExecuteWithResult(c.breaker, ctx, func() (string, error) {
			return c.complete(ctx, req)
		})
		if err == nil {
			telemetry.RecordLLMCall(req.Model, "success", time.Since(start).Seconds())
			return text, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			telemetry.RecordLLMCall(req.Model, "retry", time.Since(start).Seconds())
			return "", ctx.Err()
		default:
		}

		if attempt < c.maxAttempts-1 {
			telemetry.RecordLLMCall(req.Model, "retry", time.Since(start).Seconds())
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}
	}

	telemetry.RecordLLMCall(req.Model, "fallback", 0)
	return "", fmt.Errorf("llm: exhausted %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *OpenAIClient) complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Client = (*OpenAIClient)(nil)
