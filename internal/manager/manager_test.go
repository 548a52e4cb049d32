package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cherryquant/orchestrator/internal/models"
)

// fakeAgent is a minimal Agent stub: it starts INITIALIZING, becomes IDLE
// (tickable) once Start is called (CreateAgent does this), and counts how
// many times Tick is invoked. An optional onTick hook lets a test panic or
// block on demand, to exercise the manager's isolation/throttling paths.
type fakeAgent struct {
	mu      sync.Mutex
	state   models.AgentState
	ticks   int32
	onTick  func()
	started bool
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{state: models.StateInitializing}
}

func (a *fakeAgent) Tick(ctx context.Context) {
	atomic.AddInt32(&a.ticks, 1)
	if a.onTick != nil {
		a.onTick()
	}
}
func (a *fakeAgent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	a.state = models.StateIdle
}
func (a *fakeAgent) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = models.StatePaused
}
func (a *fakeAgent) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = models.StateIdle
}
func (a *fakeAgent) Terminate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = models.StateTerminated
}
func (a *fakeAgent) Halt(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != models.StateTerminated {
		a.state = models.StateHalted
	}
}
func (a *fakeAgent) State() models.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
func (a *fakeAgent) Snapshot() models.AgentSnapshot {
	return models.AgentSnapshot{AgentID: "stub", State: a.State()}
}

func (a *fakeAgent) tickCount() int32 {
	return atomic.LoadInt32(&a.ticks)
}

func testManagerConfig() Config {
	cfg := DefaultConfig()
	cfg.SchedulerTick = 10 * time.Millisecond
	cfg.LLMCallsPerSecond = 100
	cfg.LLMBurst = 100
	return cfg
}

func TestCreateAgent_RejectsDuplicateID(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())
	cfg := models.StrategyConfig{AgentID: "a1", TickInterval: time.Hour}

	require.NoError(t, m.CreateAgent(newFakeAgent(), cfg))
	err := m.CreateAgent(newFakeAgent(), cfg)
	assert.Error(t, err)
}

func TestScheduler_TicksDueAgentsAndIsolatesPanics(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())

	ok := newFakeAgent()
	panicky := newFakeAgent()
	panicky.onTick = func() { panic("boom") }

	require.NoError(t, m.CreateAgent(ok, models.StrategyConfig{AgentID: "ok", TickInterval: time.Millisecond}))
	require.NoError(t, m.CreateAgent(panicky, models.StrategyConfig{AgentID: "panicky", TickInterval: time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		return ok.tickCount() > 0 && panicky.tickCount() > 0
	}, time.Second, 5*time.Millisecond)

	// A second scheduler pass after the panic proves the manager itself is
	// still alive and still scheduling the agent that panicked.
	require.Eventually(t, func() bool {
		return panicky.tickCount() > 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_SkipsPausedAgentsUntilResumed(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())

	paused := newFakeAgent()
	require.NoError(t, m.CreateAgent(paused, models.StrategyConfig{AgentID: "paused", TickInterval: time.Millisecond}))
	require.NoError(t, m.PauseAgent("paused"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), paused.tickCount())

	require.NoError(t, m.ResumeAgent("paused"))
	require.Eventually(t, func() bool {
		return paused.tickCount() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_ThrottlesBeyondLLMBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SchedulerTick = 5 * time.Millisecond
	cfg.LLMCallsPerSecond = 0 // no budget: nothing should ever tick
	cfg.LLMBurst = 0
	m := New(cfg, zerolog.Nop())

	a := newFakeAgent()
	require.NoError(t, m.CreateAgent(a, models.StrategyConfig{AgentID: "a1", TickInterval: 10 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), a.tickCount())
}

func TestStopAgent_RemovesFromScheduling(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())
	a := newFakeAgent()
	require.NoError(t, m.CreateAgent(a, models.StrategyConfig{AgentID: "a1", TickInterval: time.Millisecond}))

	require.NoError(t, m.StopAgent("a1"))
	assert.Equal(t, models.StateTerminated, a.State())
	assert.Empty(t, m.Snapshot())

	err := m.StopAgent("a1")
	assert.Error(t, err)
}

func TestSnapshot_ReturnsOneEntryPerAgent(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())
	require.NoError(t, m.CreateAgent(newFakeAgent(), models.StrategyConfig{AgentID: "a1", TickInterval: time.Hour}))
	require.NoError(t, m.CreateAgent(newFakeAgent(), models.StrategyConfig{AgentID: "a2", TickInterval: time.Hour}))

	assert.Len(t, m.Snapshot(), 2)
}

func TestHaltAll_TransitionsRegisteredAgentsToHalted(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())
	live := newFakeAgent()
	paused := newFakeAgent()
	require.NoError(t, m.CreateAgent(live, models.StrategyConfig{AgentID: "live", TickInterval: time.Hour}))
	require.NoError(t, m.CreateAgent(paused, models.StrategyConfig{AgentID: "paused", TickInterval: time.Hour}))
	require.NoError(t, m.PauseAgent("paused"))

	m.HaltAll("portfolio kill-switch tripped")

	assert.Equal(t, models.StateHalted, live.State())
	assert.Equal(t, models.StateHalted, paused.State())
}

func TestHaltAll_SkipsAlreadyTerminatedAgents(t *testing.T) {
	m := New(testManagerConfig(), zerolog.Nop())
	terminated := newFakeAgent()
	terminated.Terminate()
	m.mu.Lock()
	m.agents["gone"] = &entry{agent: terminated, cfg: models.StrategyConfig{AgentID: "gone", TickInterval: time.Hour}}
	m.mu.Unlock()

	m.HaltAll("reason")

	assert.Equal(t, models.StateTerminated, terminated.State())
}
