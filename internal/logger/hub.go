// Package logger implements the Decision Logger: the append-only audit
// trail for every decision cycle, plus a fan-out hub operators can
// subscribe to for a live decision feed.
package logger

import (
	"sync"
	"time"

	"github.com/cherryquant/orchestrator/internal/models"
)

// HubConfig tunes the streaming hub's buffering.
type HubConfig struct {
	BufferSize           int
	SubscriberBufferSize int
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{BufferSize: 1000, SubscriberBufferSize: 100}
}

// Hub fans decision records out to any number of subscribers, optionally
// filtered to one agent. A slow subscriber drops records rather than
// blocking the feed; the SQLite journal the logger also writes to is the
// durable source of truth, so a dropped stream update loses nothing.
type Hub struct {
	cfg HubConfig

	mu          sync.RWMutex
	subscribers map[string][]*subscriber // agent id -> subscribers, "" means "all agents"

	metricsMu sync.Mutex
	published uint64
	dropped   uint64
}

type subscriber struct {
	ch      chan models.DecisionRecord
	agentID string
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with a custom configuration.
func NewHubWithConfig(cfg HubConfig) *Hub {
	return &Hub{cfg: cfg, subscribers: make(map[string][]*subscriber)}
}

// Subscribe returns a channel of decision records for one agent. Pass "" to
// receive every agent's records.
func (h *Hub) Subscribe(agentID string) <-chan models.DecisionRecord {
	ch := make(chan models.DecisionRecord, h.cfg.SubscriberBufferSize)
	sub := &subscriber{ch: ch, agentID: agentID}

	h.mu.Lock()
	h.subscribers[agentID] = append(h.subscribers[agentID], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe closes and removes a subscription previously returned by
// Subscribe.
func (h *Hub) Unsubscribe(agentID string, ch <-chan models.DecisionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[agentID]
	for i, sub := range subs {
		if sub.ch == ch {
			close(sub.ch)
			h.subscribers[agentID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish fans a record out to every matching subscriber: those filtered on
// this agent, plus every "receive everything" subscriber. Non-blocking;
// subscribers that can't keep up are dropped for this record.
func (h *Hub) Publish(record models.DecisionRecord) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subscribers[record.Decision.AgentID])+len(h.subscribers[""]))
	targets = append(targets, h.subscribers[record.Decision.AgentID]...)
	targets = append(targets, h.subscribers[""]...)
	h.mu.RUnlock()

	h.metricsMu.Lock()
	h.published++
	h.metricsMu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- record:
		default:
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// Metrics reports the hub's lifetime counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return HubMetrics{Published: h.published, Dropped: h.dropped, Timestamp: time.Now()}
}

// HubMetrics is a point-in-time read of the hub's counters.
type HubMetrics struct {
	Published uint64
	Dropped   uint64
	Timestamp time.Time
}
