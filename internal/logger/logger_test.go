package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherryquant/orchestrator/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]models.DecisionRecord
}

func (s *fakeStore) SaveDecisionRecords(_ context.Context, records []models.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.DecisionRecord, len(records))
	copy(cp, records)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *fakeStore) totalRecords() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func recordFor(agentID string) models.DecisionRecord {
	return models.DecisionRecord{Decision: models.AIDecision{AgentID: agentID, DecisionID: agentID + "-d1"}}
}

func TestDecisionLogger_FlushesOnceBatchSizeReached(t *testing.T) {
	store := &fakeStore{}
	l := New(Config{BatchSize: 3, FlushInterval: time.Hour}, store, zerolog.Nop())

	l.Log(context.Background(), recordFor("a1"))
	l.Log(context.Background(), recordFor("a1"))
	assert.Equal(t, 0, store.totalRecords())

	l.Log(context.Background(), recordFor("a1"))
	require.Eventually(t, func() bool {
		return store.totalRecords() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestDecisionLogger_PeriodicFlushDrainsPartialBatch(t *testing.T) {
	store := &fakeStore{}
	l := New(Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	l.Log(context.Background(), recordFor("a1"))

	require.Eventually(t, func() bool {
		return store.totalRecords() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	l.Stop()
}

func TestDecisionLogger_StopFlushesRemainder(t *testing.T) {
	store := &fakeStore{}
	l := New(Config{BatchSize: 100, FlushInterval: time.Hour}, store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	l.Log(context.Background(), recordFor("a1"))
	l.Log(context.Background(), recordFor("a2"))

	cancel()
	l.Stop()

	assert.Equal(t, 2, store.totalRecords())
}

func TestDecisionLogger_PublishesToHubImmediately(t *testing.T) {
	l := New(Config{BatchSize: 100, FlushInterval: time.Hour}, nil, zerolog.Nop())
	ch := l.Hub().Subscribe("")

	l.Log(context.Background(), recordFor("a1"))

	select {
	case rec := <-ch:
		assert.Equal(t, "a1", rec.Decision.AgentID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published record")
	}
}

func TestHub_FiltersByAgentID(t *testing.T) {
	h := NewHub()
	mine := h.Subscribe("agent-1")
	all := h.Subscribe("")

	h.Publish(models.DecisionRecord{Decision: models.AIDecision{AgentID: "agent-2"}})

	select {
	case rec := <-all:
		assert.Equal(t, "agent-2", rec.Decision.AgentID)
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber should have received the record")
	}

	select {
	case <-mine:
		t.Fatal("agent-1 subscriber should not receive agent-2's record")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("a1")
	h.Unsubscribe("a1", ch)

	_, open := <-ch
	assert.False(t, open)
}

func TestHub_DropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHubWithConfig(HubConfig{BufferSize: 10, SubscriberBufferSize: 1})
	_ = h.Subscribe("") // never drained

	h.Publish(models.DecisionRecord{Decision: models.AIDecision{AgentID: "a1"}})
	h.Publish(models.DecisionRecord{Decision: models.AIDecision{AgentID: "a1"}})

	m := h.Metrics()
	assert.EqualValues(t, 2, m.Published)
	assert.EqualValues(t, 1, m.Dropped)
}
