package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cherryquant/orchestrator/internal/models"
)

// PaperBroker simulates fills against a cached last-traded price per symbol,
// fed by UpdatePrice. It holds at most one net position per agent and symbol,
// matching models.Position's CherryQuant semantics.
type PaperBroker struct {
	mu sync.Mutex

	positions  map[string]models.Position // keyed agentID|symbol
	priceCache map[string]float64

	events chan Event
}

// NewPaperBroker creates a paper broker with a buffered event channel.
func NewPaperBroker() *PaperBroker {
	return &PaperBroker{
		positions:  make(map[string]models.Position),
		priceCache: make(map[string]float64),
		events:     make(chan Event, 256),
	}
}

func positionKey(agentID, symbol string) string {
	return agentID + "|" + symbol
}

// UpdatePrice feeds the paper broker the latest mark price for a symbol,
// used both to execute market orders and to publish position snapshots.
func (p *PaperBroker) UpdatePrice(symbol string, price float64) {
	p.mu.Lock()
	p.priceCache[symbol] = price
	p.mu.Unlock()
}

// Submit fills the intent immediately at the cached mark price (or at the
// intent's limit price when no mark price is cached), updates the agent's
// position, and publishes an ack followed by a fill event.
func (p *PaperBroker) Submit(ctx context.Context, intent models.OrderIntent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price := p.priceCache[intent.Symbol]
	if price == 0 {
		if intent.LimitPrice > 0 {
			price = intent.LimitPrice
		} else {
			return "", fmt.Errorf("broker: no mark price cached for %s", intent.Symbol)
		}
	}

	orderID := uuid.NewString()
	now := time.Now()

	p.publish(Event{Kind: EventAck, OrderID: orderID, DecisionID: intent.DecisionID, AgentID: intent.AgentID, Symbol: intent.Symbol, Timestamp: now})

	key := positionKey(intent.AgentID, intent.Symbol)
	updated := p.applyFill(p.positions[key], intent, price, now)
	if updated.IsFlat() {
		delete(p.positions, key)
	} else {
		p.positions[key] = updated
	}

	p.publish(Event{
		Kind:       EventFill,
		OrderID:    orderID,
		DecisionID: intent.DecisionID,
		AgentID:    intent.AgentID,
		Symbol:     intent.Symbol,
		Price:      price,
		Quantity:   intent.Quantity,
		Position:   updated,
		Timestamp:  now,
	})

	return orderID, nil
}

// applyFill folds an order intent into the current position. Buys add to (or
// open) a long exposure; sells reduce a long or open a short. A position that
// flips sign resets its entry price to the fill price for the new side.
func (p *PaperBroker) applyFill(current models.Position, intent models.OrderIntent, price float64, now time.Time) models.Position {
	currentSigned := current.Quantity
	if current.Side == models.SideSell {
		currentSigned = -current.Quantity
	}

	intentSigned := intent.Quantity
	if intent.Side == models.SideSell {
		intentSigned = -intent.Quantity
	}

	newSigned := currentSigned + intentSigned

	result := models.Position{
		AgentID:    intent.AgentID,
		Symbol:     intent.Symbol,
		Leverage:   intent.Leverage,
		OpenedAt:   current.OpenedAt,
		EntryPrice: current.EntryPrice,
	}
	if result.OpenedAt.IsZero() {
		result.OpenedAt = now
	}

	switch {
	case newSigned == 0:
		return models.Position{AgentID: intent.AgentID, Symbol: intent.Symbol}
	case newSigned > 0:
		result.Side = models.SideBuy
		result.Quantity = newSigned
	default:
		result.Side = models.SideSell
		result.Quantity = -newSigned
	}

	sameDirection := (currentSigned >= 0 && newSigned > 0) || (currentSigned <= 0 && newSigned < 0)
	if current.Quantity == 0 || !sameDirection {
		result.EntryPrice = price
	} else if (currentSigned > 0) == (intentSigned > 0) {
		totalNotional := current.EntryPrice*current.Quantity + price*intent.Quantity
		result.EntryPrice = totalNotional / result.Quantity
	}

	return result
}

// CancelOrder is a no-op: PaperBroker fills synchronously inside Submit, so
// there is never an open order left to cancel by the time a caller could ask.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

// Position returns the current simulated position, with unrealized PnL
// computed against the cached mark price.
func (p *PaperBroker) Position(ctx context.Context, agentID, symbol string) (models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[positionKey(agentID, symbol)]
	if !ok {
		return models.Position{AgentID: agentID, Symbol: symbol}, nil
	}

	mark := p.priceCache[symbol]
	if mark > 0 {
		direction := 1.0
		if pos.Side == models.SideSell {
			direction = -1.0
		}
		pos.UnrealizedPnL = direction * (mark - pos.EntryPrice) * pos.Quantity * pos.Leverage
	}
	return pos, nil
}

// Events returns the channel of asynchronous broker events.
func (p *PaperBroker) Events() <-chan Event {
	return p.events
}

func (p *PaperBroker) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		// Drop rather than block the submitting goroutine; the decision
		// logger's own record is the durable source of truth for the fill.
	}
}

var _ Broker = (*PaperBroker)(nil)
