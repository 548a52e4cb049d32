package decision

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherryquant/orchestrator/internal/llm"
	"github.com/cherryquant/orchestrator/internal/models"
)

// fakeLLMClient returns replies in order, by invocation count, and repeats
// the last one if asked for more than it was given.
type fakeLLMClient struct {
	replies []string
	calls   int
	err     error
}

func (c *fakeLLMClient) Complete(context.Context, llm.Request) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	idx := c.calls
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	c.calls++
	return c.replies[idx], nil
}

func flatSnapshot(symbol string) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol:    symbol,
		LastPrice: 2000,
		Indicators: models.Indicators{
			MA20: 2000, MA60: 2000, MACDHist: 0, RSI14: 50,
			BollUpper: 2050, BollLower: 1950,
		},
	}
}

func trendingSnapshot(symbol string) models.MarketSnapshot {
	return models.MarketSnapshot{
		Symbol:    symbol,
		LastPrice: 2000,
		Indicators: models.Indicators{
			MA20: 2010, MA60: 1950, MACDHist: 5, RSI14: 55,
			BollUpper: 2100, BollLower: 1900,
		},
	}
}

func TestDecide_NoClientAlwaysUsesFallback(t *testing.T) {
	eng := NewEngine(nil, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), trendingSnapshot("GC"), "agent-1", models.Position{}, 100000)

	assert.Equal(t, models.SourceFallback, d.Source)
	assert.Equal(t, models.ActionBuyToEnter, d.Action)
	assert.Greater(t, d.Quantity, 0.0)
}

func TestDecide_FallbackHoldHasZeroQuantity(t *testing.T) {
	eng := NewEngine(nil, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), flatSnapshot("GC"), "agent-1", models.Position{}, 100000)

	assert.Equal(t, models.ActionHold, d.Action)
	assert.Equal(t, 0.0, d.Quantity)
}

func TestDecide_FallbackSizesFromRemainingCapitalAndPrice(t *testing.T) {
	eng := NewEngine(nil, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), trendingSnapshot("GC"), "agent-1", models.Position{}, 50000)

	assert.InDelta(t, 2.5, d.Quantity, 0.0001)
}

func TestDecide_FallbackCloseLeavesSizingToCaller(t *testing.T) {
	eng := NewEngine(nil, nil, DefaultConfig(), zerolog.Nop())
	longPosition := models.Position{Side: models.SideBuy, Quantity: 3}
	bearishSnapshot := models.MarketSnapshot{
		Symbol:    "GC",
		LastPrice: 2000,
		Indicators: models.Indicators{
			MA20: 1950, MA60: 2010, MACDHist: -5, RSI14: 45,
			BollUpper: 2050, BollLower: 1950,
		},
	}
	d := eng.Decide(context.Background(), bearishSnapshot, "agent-1", longPosition, 100000)

	assert.Equal(t, models.ActionClose, d.Action)
	assert.Equal(t, 0.0, d.Quantity)
}

func TestDecide_LLMSuccessReturnsParsedDecision(t *testing.T) {
	client := &fakeLLMClient{replies: []string{
		`{"action":"buy_to_enter","quantity":3,"leverage":2,"entry_price":2000,"confidence":0.8,"rationale":"breakout"}`,
	}}
	eng := NewEngine(client, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), trendingSnapshot("GC"), "agent-1", models.Position{}, 100000)

	require.Equal(t, models.SourceLLM, d.Source)
	assert.Equal(t, models.ActionBuyToEnter, d.Action)
	assert.Equal(t, 3.0, d.Quantity)
	assert.Equal(t, 0.8, d.Confidence)
}

func TestDecide_LLMCallErrorFallsBack(t *testing.T) {
	client := &fakeLLMClient{err: assert.AnError}
	eng := NewEngine(client, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), trendingSnapshot("GC"), "agent-1", models.Position{}, 100000)

	assert.Equal(t, models.SourceFallback, d.Source)
}

func TestDecide_InvalidReplyRepairsOnceThenFallsBack(t *testing.T) {
	client := &fakeLLMClient{replies: []string{"not json", "still not json"}}
	eng := NewEngine(client, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), trendingSnapshot("GC"), "agent-1", models.Position{}, 100000)

	assert.Equal(t, models.SourceFallback, d.Source)
	assert.Equal(t, 2, client.calls)
}

func TestDecide_RepairedReplySucceedsOnSecondAttempt(t *testing.T) {
	client := &fakeLLMClient{replies: []string{
		"not json",
		`{"action":"hold","confidence":0.5,"rationale":"waiting"}`,
	}}
	eng := NewEngine(client, nil, DefaultConfig(), zerolog.Nop())
	d := eng.Decide(context.Background(), trendingSnapshot("GC"), "agent-1", models.Position{}, 100000)

	assert.Equal(t, models.SourceLLM, d.Source)
	assert.Equal(t, models.ActionHold, d.Action)
}

func TestConfidenceThreshold_ReturnsConfiguredValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.6
	eng := NewEngine(nil, nil, cfg, zerolog.Nop())
	assert.Equal(t, 0.6, eng.ConfidenceThreshold())
}
