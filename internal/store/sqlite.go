package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/cherryquant/orchestrator/internal/models"
)

// SQLiteStore implements DataStore using SQLite (pure-Go driver, no cgo).
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at dbPath
// and initializes its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS strategy_configs (
		agent_id TEXT PRIMARY KEY,
		strategy_name TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		symbols_json TEXT NOT NULL DEFAULT '',
		commodities_json TEXT NOT NULL DEFAULT '',
		pool TEXT NOT NULL,
		max_symbols INTEGER NOT NULL DEFAULT 0,
		selection_mode TEXT NOT NULL DEFAULT 'manual',
		capital_usd REAL NOT NULL,
		max_position_size REAL NOT NULL DEFAULT 0,
		max_positions INTEGER NOT NULL DEFAULT 0,
		max_leverage REAL NOT NULL,
		risk_per_trade REAL NOT NULL DEFAULT 0,
		tick_interval_ns INTEGER NOT NULL,
		confidence_threshold REAL NOT NULL DEFAULT 0,
		llm_model TEXT NOT NULL,
		llm_temperature REAL NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		manual_override INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_snapshots (
		agent_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		position_json TEXT,
		realized_pnl REAL NOT NULL,
		last_tick_at DATETIME,
		last_error TEXT,
		halted_reason TEXT,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decision_records (
		decision_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		decision_time DATETIME NOT NULL,
		decision_json TEXT NOT NULL,
		risk_verdict_json TEXT,
		order_intent_json TEXT,
		logged_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decision_records_agent ON decision_records(agent_id, decision_time);

	CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		generated_at DATETIME NOT NULL,
		view_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_portfolio_snapshots_time ON portfolio_snapshots(generated_at);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		agent_id TEXT,
		created_at DATETIME NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database connection is alive, for health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveStrategyConfig(ctx context.Context, cfg models.StrategyConfig) error {
	symbolsJSON, err := json.Marshal(cfg.Symbols)
	if err != nil {
		return fmt.Errorf("marshaling symbols: %w", err)
	}
	commoditiesJSON, err := json.Marshal(cfg.Commodities)
	if err != nil {
		return fmt.Errorf("marshaling commodities: %w", err)
	}
	selectionMode := cfg.SelectionMode
	if selectionMode == "" {
		selectionMode = models.SelectionManual
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategy_configs (
			agent_id, strategy_name, symbol, symbols_json, commodities_json, pool, max_symbols, selection_mode,
			capital_usd, max_position_size, max_positions, max_leverage, risk_per_trade, tick_interval_ns,
			confidence_threshold, llm_model, llm_temperature, is_active, manual_override, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			strategy_name=excluded.strategy_name, symbol=excluded.symbol, symbols_json=excluded.symbols_json,
			commodities_json=excluded.commodities_json, pool=excluded.pool, max_symbols=excluded.max_symbols,
			selection_mode=excluded.selection_mode, capital_usd=excluded.capital_usd,
			max_position_size=excluded.max_position_size, max_positions=excluded.max_positions,
			max_leverage=excluded.max_leverage, risk_per_trade=excluded.risk_per_trade,
			tick_interval_ns=excluded.tick_interval_ns, confidence_threshold=excluded.confidence_threshold,
			llm_model=excluded.llm_model, llm_temperature=excluded.llm_temperature,
			is_active=excluded.is_active, manual_override=excluded.manual_override`,
		cfg.AgentID, cfg.StrategyName, cfg.Symbol, string(symbolsJSON), string(commoditiesJSON), cfg.Pool, cfg.MaxSymbols, string(selectionMode),
		cfg.CapitalUSD, cfg.MaxPositionSize, cfg.MaxPositions, cfg.MaxLeverage, cfg.RiskPerTrade, cfg.TickInterval.Nanoseconds(),
		cfg.ConfidenceThreshold, cfg.LLMModel, cfg.LLMTemp, boolToInt(cfg.IsActive), boolToInt(cfg.ManualOverride), cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving strategy config: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) GetStrategyConfig(ctx context.Context, agentID string) (models.StrategyConfig, error) {
	var row strategyConfigRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM strategy_configs WHERE agent_id = ?`, agentID)
	if err != nil {
		return models.StrategyConfig{}, fmt.Errorf("loading strategy config %s: %w", agentID, err)
	}
	return row.toModel(), nil
}

func (s *SQLiteStore) ListStrategyConfigs(ctx context.Context) ([]models.StrategyConfig, error) {
	var rows []strategyConfigRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM strategy_configs ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("listing strategy configs: %w", err)
	}
	out := make([]models.StrategyConfig, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *SQLiteStore) DeleteStrategyConfig(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM strategy_configs WHERE agent_id = ?`, agentID)
	return err
}

type strategyConfigRow struct {
	AgentID             string    `db:"agent_id"`
	StrategyName        string    `db:"strategy_name"`
	Symbol              string    `db:"symbol"`
	SymbolsJSON         string    `db:"symbols_json"`
	CommoditiesJSON     string    `db:"commodities_json"`
	Pool                string    `db:"pool"`
	MaxSymbols          int       `db:"max_symbols"`
	SelectionMode       string    `db:"selection_mode"`
	CapitalUSD          float64   `db:"capital_usd"`
	MaxPositionSize     float64   `db:"max_position_size"`
	MaxPositions        int       `db:"max_positions"`
	MaxLeverage         float64   `db:"max_leverage"`
	RiskPerTrade        float64   `db:"risk_per_trade"`
	TickIntervalNS      int64     `db:"tick_interval_ns"`
	ConfidenceThreshold float64   `db:"confidence_threshold"`
	LLMModel            string    `db:"llm_model"`
	LLMTemp             float64   `db:"llm_temperature"`
	IsActive            int       `db:"is_active"`
	ManualOverride      int       `db:"manual_override"`
	CreatedAt           time.Time `db:"created_at"`
}

func (r strategyConfigRow) toModel() models.StrategyConfig {
	var symbols, commodities []string
	if r.SymbolsJSON != "" {
		_ = json.Unmarshal([]byte(r.SymbolsJSON), &symbols)
	}
	if r.CommoditiesJSON != "" {
		_ = json.Unmarshal([]byte(r.CommoditiesJSON), &commodities)
	}
	return models.StrategyConfig{
		AgentID:             r.AgentID,
		StrategyName:        r.StrategyName,
		Symbol:              r.Symbol,
		Symbols:             symbols,
		Commodities:         commodities,
		Pool:                r.Pool,
		MaxSymbols:          r.MaxSymbols,
		SelectionMode:       models.SelectionMode(r.SelectionMode),
		CapitalUSD:          r.CapitalUSD,
		MaxPositionSize:     r.MaxPositionSize,
		MaxPositions:        r.MaxPositions,
		MaxLeverage:         r.MaxLeverage,
		RiskPerTrade:        r.RiskPerTrade,
		TickInterval:        time.Duration(r.TickIntervalNS),
		ConfidenceThreshold: r.ConfidenceThreshold,
		LLMModel:            r.LLMModel,
		LLMTemp:             r.LLMTemp,
		IsActive:            r.IsActive != 0,
		ManualOverride:      r.ManualOverride != 0,
		CreatedAt:           r.CreatedAt,
	}
}

func (s *SQLiteStore) SaveAgentSnapshot(ctx context.Context, snap models.AgentSnapshot) error {
	var posJSON []byte
	if snap.Position != nil {
		var err error
		posJSON, err = json.Marshal(snap.Position)
		if err != nil {
			return fmt.Errorf("marshaling position: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_snapshots (agent_id, state, position_json, realized_pnl, last_tick_at, last_error, halted_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			state=excluded.state, position_json=excluded.position_json, realized_pnl=excluded.realized_pnl,
			last_tick_at=excluded.last_tick_at, last_error=excluded.last_error, halted_reason=excluded.halted_reason,
			updated_at=excluded.updated_at`,
		snap.AgentID, string(snap.State), string(posJSON), snap.RealizedPnL, snap.LastTickAt, snap.LastError, snap.HaltedReason, time.Now())
	if err != nil {
		return fmt.Errorf("saving agent snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAgentSnapshots(ctx context.Context) ([]models.AgentSnapshot, error) {
	var rows []agentSnapshotRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM agent_snapshots`); err != nil {
		return nil, fmt.Errorf("listing agent snapshots: %w", err)
	}
	out := make([]models.AgentSnapshot, 0, len(rows))
	for _, r := range rows {
		snap := models.AgentSnapshot{
			AgentID:      r.AgentID,
			State:        models.AgentState(r.State),
			RealizedPnL:  r.RealizedPnL,
			LastError:    r.LastError.String,
			HaltedReason: r.HaltedReason.String,
		}
		if r.LastTickAt.Valid {
			snap.LastTickAt = r.LastTickAt.Time
		}
		if r.PositionJSON.Valid && r.PositionJSON.String != "" {
			var pos models.Position
			if err := json.Unmarshal([]byte(r.PositionJSON.String), &pos); err == nil {
				snap.Position = &pos
			}
		}
		out = append(out, snap)
	}
	return out, nil
}

type agentSnapshotRow struct {
	AgentID      string         `db:"agent_id"`
	State        string         `db:"state"`
	PositionJSON sql.NullString `db:"position_json"`
	RealizedPnL  float64        `db:"realized_pnl"`
	LastTickAt   sql.NullTime   `db:"last_tick_at"`
	LastError    sql.NullString `db:"last_error"`
	HaltedReason sql.NullString `db:"halted_reason"`
}

func (s *SQLiteStore) SaveDecisionRecords(ctx context.Context, records []models.DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning decision batch transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		decisionJSON, err := json.Marshal(rec.Decision)
		if err != nil {
			return fmt.Errorf("marshaling decision %s: %w", rec.Decision.DecisionID, err)
		}
		var riskJSON, orderJSON []byte
		if rec.RiskVerdict != nil {
			riskJSON, _ = json.Marshal(rec.RiskVerdict)
		}
		if rec.OrderIntent != nil {
			orderJSON, _ = json.Marshal(rec.OrderIntent)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO decision_records (decision_id, agent_id, symbol, decision_time, decision_json, risk_verdict_json, order_intent_json, logged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Decision.DecisionID, rec.Decision.AgentID, rec.Decision.Symbol, rec.Decision.DecisionTime,
			string(decisionJSON), string(riskJSON), string(orderJSON), rec.LoggedAt)
		if err != nil {
			return fmt.Errorf("inserting decision record %s: %w", rec.Decision.DecisionID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetDecisionRecords(ctx context.Context, filter DecisionFilter) ([]models.DecisionRecord, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT decision_json, risk_verdict_json, order_intent_json, logged_at FROM decision_records WHERE 1=1`)
	var args []interface{}

	if filter.AgentID != "" {
		query.WriteString(` AND agent_id = ?`)
		args = append(args, filter.AgentID)
	}
	if filter.Symbol != "" {
		query.WriteString(` AND symbol = ?`)
		args = append(args, filter.Symbol)
	}
	if !filter.From.IsZero() {
		query.WriteString(` AND decision_time >= ?`)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query.WriteString(` AND decision_time <= ?`)
		args = append(args, filter.To)
	}
	query.WriteString(` ORDER BY decision_time DESC`)
	if filter.Limit > 0 {
		query.WriteString(fmt.Sprintf(` LIMIT %d`, filter.Limit))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying decision records: %w", err)
	}
	defer rows.Close()

	var out []models.DecisionRecord
	for rows.Next() {
		var decisionJSON string
		var riskJSON, orderJSON sql.NullString
		var loggedAt time.Time
		if err := rows.Scan(&decisionJSON, &riskJSON, &orderJSON, &loggedAt); err != nil {
			return nil, fmt.Errorf("scanning decision record: %w", err)
		}

		var rec models.DecisionRecord
		if err := json.Unmarshal([]byte(decisionJSON), &rec.Decision); err != nil {
			return nil, fmt.Errorf("unmarshaling decision: %w", err)
		}
		if riskJSON.Valid && riskJSON.String != "" {
			var v models.RiskVerdict
			if err := json.Unmarshal([]byte(riskJSON.String), &v); err == nil {
				rec.RiskVerdict = &v
			}
		}
		if orderJSON.Valid && orderJSON.String != "" {
			var o models.OrderIntent
			if err := json.Unmarshal([]byte(orderJSON.String), &o); err == nil {
				rec.OrderIntent = &o
			}
		}
		rec.LoggedAt = loggedAt
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePortfolioSnapshot(ctx context.Context, view models.PortfolioView) error {
	viewJSON, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshaling portfolio view: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO portfolio_snapshots (generated_at, view_json) VALUES (?, ?)`, view.GeneratedAt, string(viewJSON))
	if err != nil {
		return fmt.Errorf("saving portfolio snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPortfolioSnapshots(ctx context.Context, from, to time.Time) ([]models.PortfolioView, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT view_json FROM portfolio_snapshots WHERE generated_at >= ? AND generated_at <= ? ORDER BY generated_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying portfolio snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.PortfolioView
	for rows.Next() {
		var viewJSON string
		if err := rows.Scan(&viewJSON); err != nil {
			return nil, fmt.Errorf("scanning portfolio snapshot: %w", err)
		}
		var v models.PortfolioView
		if err := json.Unmarshal([]byte(viewJSON), &v); err != nil {
			return nil, fmt.Errorf("unmarshaling portfolio view: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveAlert(ctx context.Context, alert Alert) error {
	resolved := 0
	if alert.Resolved {
		resolved = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, level, message, agent_id, created_at, resolved)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved=excluded.resolved`,
		alert.ID, alert.Level, alert.Message, alert.AgentID, alert.CreatedAt, resolved)
	if err != nil {
		return fmt.Errorf("saving alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetActiveAlerts(ctx context.Context) ([]Alert, error) {
	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM alerts WHERE resolved = 0 ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}
	out := make([]Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, Alert{
			ID:        r.ID,
			Level:     r.Level,
			Message:   r.Message,
			AgentID:   r.AgentID.String,
			CreatedAt: r.CreatedAt,
			Resolved:  r.Resolved != 0,
		})
	}
	return out, nil
}

type alertRow struct {
	ID        string         `db:"id"`
	Level     string         `db:"level"`
	Message   string         `db:"message"`
	AgentID   sql.NullString `db:"agent_id"`
	CreatedAt time.Time      `db:"created_at"`
	Resolved  int            `db:"resolved"`
}

var _ DataStore = (*SQLiteStore)(nil)
