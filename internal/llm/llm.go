// Package llm provides the LLMClient interface consumed by the AI decision
// engine, plus an OpenAI-backed implementation.
package llm

import (
	"context"
	"time"
)

// Client is a text-in/text-out completion surface. No streaming is
// required; the client enforces its own HTTP-level retries, while the
// decision engine layers semantic retries (repair-retry, fallback) on top.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single completion request.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	Deadline    time.Time
}
