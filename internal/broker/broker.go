// Package broker provides the execution-gateway interface and a
// paper-trading implementation of it.
package broker

import (
	"context"
	"time"

	"github.com/cherryquant/orchestrator/internal/models"
)

// Broker is the execution surface the core submits order intents to and
// receives fills, rejects, and position snapshots from.
type Broker interface {
	// Submit sends an order intent for execution and returns the broker's
	// order id, or an error if the broker rejected it synchronously.
	Submit(ctx context.Context, intent models.OrderIntent) (string, error)

	// CancelOrder cancels a still-open order.
	CancelOrder(ctx context.Context, orderID string) error

	// Position returns the current position for an agent/symbol pair. A flat
	// position (IsFlat() == true) is returned rather than an error when none
	// exists.
	Position(ctx context.Context, agentID, symbol string) (models.Position, error)

	// Events returns the channel of asynchronous order/fill/position events.
	// The channel is closed when the broker shuts down.
	Events() <-chan Event
}

// EventKind distinguishes the asynchronous events a Broker emits.
type EventKind string

const (
	EventAck      EventKind = "ack"
	EventFill     EventKind = "fill"
	EventReject   EventKind = "reject"
	EventPosition EventKind = "position"
)

// Event is a single asynchronous broker event. Only the fields relevant to
// Kind are populated; DecisionID is carried through whenever the broker
// preserves client ids, so the decision logger can correlate fills back to
// the decision that produced them.
type Event struct {
	Kind       EventKind
	OrderID    string
	DecisionID string
	AgentID    string
	Symbol     string
	Price      float64
	Quantity   float64
	Reason     string
	Position   models.Position
	Timestamp  time.Time
}
