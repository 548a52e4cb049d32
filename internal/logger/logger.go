package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cherryquant/orchestrator/internal/models"
	"github.com/cherryquant/orchestrator/pkg/workerpool"
)

// Store is the persistence sink a DecisionLogger journals batches of
// records to. internal/store's SQLite-backed implementation satisfies this.
type Store interface {
	SaveDecisionRecords(ctx context.Context, records []models.DecisionRecord) error
}

// Config tunes batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 20, FlushInterval: 5 * time.Second}
}

// DecisionLogger is the Decision Logger: every call to Log is fanned out
// live via its Hub and journaled durably to Store in batches.
type DecisionLogger struct {
	cfg   Config
	store Store
	hub   *Hub
	log   zerolog.Logger

	batch *workerpool.BatchProcessor[models.DecisionRecord]

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a DecisionLogger. Call Run to start its periodic flush loop;
// without it, records still batch but only flush once BatchSize is reached.
func New(cfg Config, store Store, log zerolog.Logger) *DecisionLogger {
	l := &DecisionLogger{
		cfg:   cfg,
		store: store,
		hub:   NewHub(),
		log:   log,
		done:  make(chan struct{}),
	}
	l.batch = workerpool.NewBatchProcessor(cfg.BatchSize, l.persist)
	return l
}

// Hub returns the logger's streaming hub for subscribers.
func (l *DecisionLogger) Hub() *Hub {
	return l.hub
}

// Log records one decision cycle: it is published to the hub immediately
// and appended to the durable-write batch.
func (l *DecisionLogger) Log(ctx context.Context, record models.DecisionRecord) {
	if record.LoggedAt.IsZero() {
		record.LoggedAt = time.Now()
	}
	l.hub.Publish(record)
	if err := l.batch.Add(record); err != nil {
		l.log.Error().Err(err).Str("agent_id", record.Decision.AgentID).Msg("decision batch flush failed")
	}
}

// Run starts the periodic flush loop, guaranteeing a batch is never held
// longer than FlushInterval even if it never reaches BatchSize. Blocks
// until ctx is cancelled.
func (l *DecisionLogger) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := l.batch.Flush(); err != nil {
				l.log.Error().Err(err).Msg("final decision batch flush failed")
			}
			return
		case <-ticker.C:
			if err := l.batch.Flush(); err != nil {
				l.log.Error().Err(err).Msg("periodic decision batch flush failed")
			}
		}
	}
}

// Stop cancels the flush loop and waits for the final flush to complete.
func (l *DecisionLogger) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
}

func (l *DecisionLogger) persist(records []models.DecisionRecord) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveDecisionRecords(context.Background(), records)
}
