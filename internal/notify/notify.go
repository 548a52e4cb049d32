// Package notify implements the alerting sink the Portfolio Risk Manager
// publishes to: a pluggable fan-out generalised from the teacher's
// Telegram/email/webhook channel set down to whatever a given deployment
// actually wires in, plus a programmatic channel the dashboard layer can
// subscribe to through an AlertHub, separate from the decision logger's hub.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cherryquant/orchestrator/internal/risk"
	"github.com/cherryquant/orchestrator/internal/store"
	"github.com/cherryquant/orchestrator/pkg/utils"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Notification is one alert, trade, or halt event routed to every channel.
type Notification struct {
	Level     Level
	AgentID   string
	Message   string
	Timestamp time.Time
}

// Channel is one delivery target: a webhook, a log sink, a dashboard feed.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, n Notification) error
}

// Persister is the narrow store surface a MultiNotifier uses to keep a
// durable record of every alert alongside the decision journal.
// internal/store's SQLite-backed DataStore satisfies this.
type Persister interface {
	SaveAlert(ctx context.Context, alert store.Alert) error
}

// MultiNotifier fans a notification out to every enabled channel and
// satisfies risk.Notifier's narrow Notify(ctx, level, message) surface.
type MultiNotifier struct {
	channels  []Channel
	persister Persister
	log       zerolog.Logger
}

// New constructs a MultiNotifier over the given channels. A nil Persister
// skips durable alert storage; callers that only want console/webhook
// delivery can pass nil.
func New(log zerolog.Logger, persister Persister, channels ...Channel) *MultiNotifier {
	return &MultiNotifier{channels: channels, persister: persister, log: log}
}

// Notify implements risk.Notifier, which speaks in bare level/message
// strings, so this is the seam where that gets promoted to a full
// Notification and fanned out.
func (mn *MultiNotifier) Notify(ctx context.Context, level, message string) {
	mn.NotifyAgent(ctx, Level(level), "", message)
}

// NotifyAgent is the richer entry point used when the alert is scoped to a
// single agent (e.g. a repeated tick failure) rather than the whole
// portfolio.
func (mn *MultiNotifier) NotifyAgent(ctx context.Context, level Level, agentID, message string) {
	n := Notification{Level: level, AgentID: agentID, Message: message, Timestamp: time.Now()}

	for _, ch := range mn.channels {
		if !ch.Enabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			mn.log.Warn().Err(err).Str("channel", ch.Name()).Msg("notification delivery failed")
		}
	}

	if mn.persister != nil {
		alert := store.Alert{
			ID:        fmt.Sprintf("alert-%d", n.Timestamp.UnixNano()),
			Level:     string(level),
			Message:   message,
			AgentID:   agentID,
			CreatedAt: n.Timestamp,
		}
		if err := mn.persister.SaveAlert(ctx, alert); err != nil {
			mn.log.Warn().Err(err).Msg("alert persistence failed")
		}
	}
}

var _ risk.Notifier = (*MultiNotifier)(nil)

// LogChannel writes every notification through structured logging. It is
// always enabled and exists so a deployment with no external channel
// configured still has an audit trail of what would have gone out.
type LogChannel struct {
	log zerolog.Logger
}

// NewLogChannel constructs a LogChannel.
func NewLogChannel(log zerolog.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string    { return "log" }
func (c *LogChannel) Enabled() bool   { return true }
func (c *LogChannel) Send(_ context.Context, n Notification) error {
	evt := c.log.Info()
	if n.Level == LevelWarning {
		evt = c.log.Warn()
	} else if n.Level == LevelCritical {
		evt = c.log.Error()
	}
	evt.Str("agent_id", n.AgentID).Str("level", string(n.Level)).Msg(n.Message)
	return nil
}

// WebhookChannel POSTs a JSON payload to a configured URL, for operators
// wiring CherryQuant alerts into Slack/PagerDuty/a custom endpoint.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookChannel constructs a WebhookChannel. Disabled automatically if
// url is empty.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:     url,
		enabled: url != "",
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() string  { return "webhook" }
func (c *WebhookChannel) Enabled() bool { return c.enabled }

// webhookRetry governs retries of transient webhook delivery failures. A
// critical halt alert dropped on one flaky attempt is worse than a
// duplicate delivery, and the payload is idempotent on the receiving end.
var webhookRetry = utils.RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
}

func (c *WebhookChannel) Send(ctx context.Context, n Notification) error {
	payload := map[string]any{
		"level":     n.Level,
		"agent_id":  n.AgentID,
		"message":   n.Message,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	return utils.Retry(ctx, webhookRetry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "cherryquant-orchestrator/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("sending webhook: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// HubChannel republishes every notification through a publish closure.
// ChannelFor supplies one that feeds an AlertHub, a stream of its own that is
// separate from the decision logger's hub.
type HubChannel struct {
	publish func(level, agentID, message string, at time.Time)
}

// NewHubChannel wraps a publish func rather than *logger.Hub directly, so
// notify never imports logger and the two packages stay decoupled; the
// composition root supplies the closure.
func NewHubChannel(publish func(level, agentID, message string, at time.Time)) *HubChannel {
	return &HubChannel{publish: publish}
}

func (c *HubChannel) Name() string  { return "hub" }
func (c *HubChannel) Enabled() bool { return c.publish != nil }

func (c *HubChannel) Send(_ context.Context, n Notification) error {
	c.publish(string(n.Level), n.AgentID, n.Message, n.Timestamp)
	return nil
}

// AlertHub fans alerts out to any number of subscribers, mirroring the
// decision logger's streaming hub so the dashboard layer can follow the
// same subscribe/unsubscribe pattern for alerts as it does for decisions.
// A slow subscriber drops alerts rather than blocking delivery to the rest.
type AlertHub struct {
	mu          sync.RWMutex
	subscribers []chan Notification
	bufferSize  int
}

// NewAlertHub creates a hub whose subscriber channels buffer up to
// bufferSize pending alerts before dropping.
func NewAlertHub(bufferSize int) *AlertHub {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &AlertHub{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving every future alert.
func (h *AlertHub) Subscribe() <-chan Notification {
	ch := make(chan Notification, h.bufferSize)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe closes and removes a subscription previously returned by
// Subscribe.
func (h *AlertHub) Unsubscribe(ch <-chan Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subscribers {
		if sub == ch {
			close(sub)
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Publish fans n out to every subscriber, non-blocking.
func (h *AlertHub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		select {
		case sub <- n:
		default:
		}
	}
}

// ChannelFor adapts an AlertHub into the publish closure HubChannel expects.
func ChannelFor(hub *AlertHub) *HubChannel {
	return NewHubChannel(func(level, agentID, message string, at time.Time) {
		hub.Publish(Notification{Level: Level(level), AgentID: agentID, Message: message, Timestamp: at})
	})
}
