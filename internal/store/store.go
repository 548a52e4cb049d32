// Package store provides SQLite-backed persistence for strategy configs,
// agent state, positions, decisions, and portfolio snapshots.
package store

import (
	"context"
	"time"

	"github.com/cherryquant/orchestrator/internal/models"
)

// DataStore is the full persistence surface the orchestrator depends on.
type DataStore interface {
	SaveStrategyConfig(ctx context.Context, cfg models.StrategyConfig) error
	GetStrategyConfig(ctx context.Context, agentID string) (models.StrategyConfig, error)
	ListStrategyConfigs(ctx context.Context) ([]models.StrategyConfig, error)
	DeleteStrategyConfig(ctx context.Context, agentID string) error

	SaveAgentSnapshot(ctx context.Context, snapshot models.AgentSnapshot) error
	ListAgentSnapshots(ctx context.Context) ([]models.AgentSnapshot, error)

	SaveDecisionRecords(ctx context.Context, records []models.DecisionRecord) error
	GetDecisionRecords(ctx context.Context, filter DecisionFilter) ([]models.DecisionRecord, error)

	SavePortfolioSnapshot(ctx context.Context, view models.PortfolioView) error
	GetPortfolioSnapshots(ctx context.Context, from, to time.Time) ([]models.PortfolioView, error)

	SaveAlert(ctx context.Context, alert Alert) error
	GetActiveAlerts(ctx context.Context) ([]Alert, error)

	Close() error
}

// DecisionFilter narrows a decision-record query.
type DecisionFilter struct {
	AgentID string
	Symbol  string
	From    time.Time
	To      time.Time
	Limit   int
}

// Alert is an operator-facing notification persisted alongside the decision
// trail, e.g. a risk-manager halt or a repeated agent failure.
type Alert struct {
	ID        string    `db:"id"`
	Level     string    `db:"level"`
	Message   string    `db:"message"`
	AgentID   string    `db:"agent_id"`
	CreatedAt time.Time `db:"created_at"`
	Resolved  bool      `db:"resolved"`
}
