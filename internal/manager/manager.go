// Package manager implements the Agent Manager: it owns the lifecycle of
// every Strategy Agent, schedules their decision cycles on a monotonic
// clock honoring each agent's tick interval, and enforces a global LLM-call
// budget shared across all agents.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog"

	"github.com/cherryquant/orchestrator/internal/cherryerrors"
	"github.com/cherryquant/orchestrator/internal/models"
	"github.com/cherryquant/orchestrator/internal/strategy"
	"github.com/cherryquant/orchestrator/internal/telemetry"
	"github.com/cherryquant/orchestrator/pkg/workerpool"
)

// Agent is the narrow view of a strategy.Agent the manager drives. Defined
// locally so tests can stub it without depending on strategy's full
// construction surface.
type Agent interface {
	Tick(ctx context.Context)
	Start()
	Pause()
	Resume()
	Terminate()
	Halt(reason string)
	State() models.AgentState
	Snapshot() models.AgentSnapshot
}

// Config holds manager-wide tunables.
type Config struct {
	// Workers is the size of the tick worker pool. 0 uses runtime.NumCPU().
	Workers int

	// LLMCallsPerSecond and LLMBurst size the shared token bucket every
	// agent's LLM-calling tick draws from.
	LLMCallsPerSecond float64
	LLMBurst          int

	// SchedulerTick is how often the manager's clock wakes up to check
	// which agents are due.
	SchedulerTick time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           0,
		LLMCallsPerSecond: 1,
		LLMBurst:          3,
		SchedulerTick:     time.Second,
	}
}

type entry struct {
	agent        Agent
	cfg          models.StrategyConfig
	nextDeadline time.Time
	dueSince     time.Time // zero when not currently due; set the first tick the bucket deferred it
}

// Manager is the Agent Manager.
type Manager struct {
	cfg     Config
	pool    *workerpool.Pool
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.Mutex
	agents  map[string]*entry
	ticking map[string]bool // guards against overlapping ticks per agent

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Manager. Call Run to start its scheduler loop.
func New(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		pool:    workerpool.New(cfg.Workers),
		limiter: rate.NewLimiter(rate.Limit(cfg.LLMCallsPerSecond), cfg.LLMBurst),
		log:     log,
		agents:  make(map[string]*entry),
		ticking: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// CreateAgent registers a new agent under the given config and starts it in
// IDLE state, eligible for scheduling on its next due tick.
func (m *Manager) CreateAgent(agent Agent, cfg models.StrategyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[cfg.AgentID]; exists {
		return cherryerrors.ErrAgentAlreadyRunning
	}
	agent.Start()
	m.agents[cfg.AgentID] = &entry{agent: agent, cfg: cfg, nextDeadline: time.Now()}
	return nil
}

// StopAgent terminates an agent permanently and removes it from scheduling.
func (m *Manager) StopAgent(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.agents[agentID]
	if !ok {
		return cherryerrors.ErrAgentNotFound
	}
	e.agent.Terminate()
	delete(m.agents, agentID)
	return nil
}

// PauseAgent pauses a running agent; it is skipped by the scheduler but
// stays registered.
func (m *Manager) PauseAgent(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.agents[agentID]
	if !ok {
		return cherryerrors.ErrAgentNotFound
	}
	e.agent.Pause()
	return nil
}

// ResumeAgent resumes a paused agent.
func (m *Manager) ResumeAgent(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.agents[agentID]
	if !ok {
		return cherryerrors.ErrAgentNotFound
	}
	e.agent.Resume()
	return nil
}

// RemoveAgent is an alias for StopAgent, kept distinct in the API surface
// since an operator removing an agent and an agent halting itself are
// different events worth distinguishing in telemetry even though both
// currently do the same thing internally.
func (m *Manager) RemoveAgent(agentID string) error {
	return m.StopAgent(agentID)
}

// HaltAll forces every registered non-terminal agent into HALTED. Wired to
// the Portfolio Risk Manager's kill-switch (OnHalt), which trips on a
// drawdown breach (there is no daily-loss limit), so a breach takes every
// agent out of circulation within one scheduler tick, instead of each agent
// only discovering VetoHalted the next time it happens to tick on its own.
func (m *Manager) HaltAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.agents {
		if e.agent.State() == models.StateTerminated {
			continue
		}
		e.agent.Halt(reason)
	}
	m.log.Warn().Str("reason", reason).Msg("portfolio kill-switch tripped, halting every agent")
}

// Snapshot returns a point-in-time view of every registered agent.
func (m *Manager) Snapshot() []models.AgentSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.AgentSnapshot, 0, len(m.agents))
	for _, e := range m.agents {
		out = append(out, e.agent.Snapshot())
	}
	return out
}

// Run starts the worker pool and the scheduler loop; it blocks until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	defer close(m.done)

	m.pool.Start()
	defer m.pool.Stop()

	ticker := time.NewTicker(m.cfg.SchedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scheduleDue(ctx)
		}
	}
}

// Stop cancels the scheduler loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// scheduleDue walks every agent whose tick interval has elapsed. An agent
// that draws a token from the shared LLM budget is submitted to the worker
// pool immediately; one that doesn't is left marked due (dueSince records
// when) and retried on the next scheduler tick. Once an agent has been
// deferred for a full decision_interval, its tick is dropped and logged as
// throttled rather than deferred indefinitely.
func (m *Manager) scheduleDue(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var due []*entry
	for _, e := range m.agents {
		if !e.agent.State().CanTick() {
			continue
		}
		if m.ticking[e.cfg.AgentID] {
			continue
		}
		if now.Before(e.nextDeadline) {
			continue
		}
		if e.dueSince.IsZero() {
			e.dueSince = now
		}
		due = append(due, e)
	}

	// Ties are broken by earliest last-due (dueSince), so a long-deferred
	// agent draws from the shared budget before a freshly-due one.
	sort.Slice(due, func(i, j int) bool { return due[i].dueSince.Before(due[j].dueSince) })

	var toRun, toSkip []*entry
	for _, e := range due {
		switch {
		case m.limiter.Allow():
			e.nextDeadline = now.Add(e.cfg.TickInterval)
			e.dueSince = time.Time{}
			m.ticking[e.cfg.AgentID] = true
			toRun = append(toRun, e)
		case now.Sub(e.dueSince) >= e.cfg.TickInterval:
			e.nextDeadline = now.Add(e.cfg.TickInterval)
			e.dueSince = time.Time{}
			toSkip = append(toSkip, e)
		default:
			// left due; retried on the next scheduler tick.
		}
	}
	m.mu.Unlock()

	for _, e := range toSkip {
		m.log.Warn().Str("agent_id", e.cfg.AgentID).Str("status", "throttled").Msg("llm call budget exhausted for a full decision interval, tick dropped")
		telemetry.RecordThrottled()
	}

	for _, e := range toRun {
		e := e
		submitted := m.pool.Submit(func() {
			defer m.clearTicking(e.cfg.AgentID)
			m.runTick(ctx, e)
		})
		if !submitted {
			m.clearTicking(e.cfg.AgentID)
			m.log.Warn().Str("agent_id", e.cfg.AgentID).Msg("tick skipped, worker pool saturated")
		}
	}
}

func (m *Manager) clearTicking(agentID string) {
	m.mu.Lock()
	delete(m.ticking, agentID)
	m.mu.Unlock()
}

// runTick isolates any panic from an agent's tick to that one agent alone.
func (m *Manager) runTick(ctx context.Context, e *entry) {
	start := time.Now()
	defer func() {
		telemetry.RecordTick(e.cfg.AgentID, time.Since(start).Seconds())
		if r := recover(); r != nil {
			m.log.Error().Str("agent_id", e.cfg.AgentID).Interface("panic", r).Msg("manager: agent tick panicked, isolating")
		}
	}()

	e.agent.Tick(ctx)
	telemetry.SetAgentState(e.cfg.AgentID, string(e.agent.State()))
}

// Describe returns a human-readable summary of the manager's load, useful
// for a status endpoint.
func (m *Manager) Describe() string {
	stats := m.pool.Stats()
	return fmt.Sprintf("workers=%d running=%v tasks_total=%d tasks_done=%d queue_len=%d",
		stats.Workers, stats.Running, stats.TasksTotal, stats.TasksDone, stats.QueueLen)
}

var _ Agent = (*strategy.Agent)(nil)
