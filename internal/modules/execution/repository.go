package execution

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const positionColumns = `symbol, week, status, gap_decision, entry_price, stop,
	target_1, target_2, shares, current_price, unrealized_r, updated_at`

const outcomeColumns = `id, symbol, week, entry_price, exit_price, shares,
	realized_r, win, closed_at`

const summaryColumns = `week, realized_pnl, unrealized_pnl, weekly_r_sum,
	win_rate, health_score, recommended_action, calculated_at`

// Repository persists position tracking state, closed-trade outcomes, and
// weekly summaries in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates an execution repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "execution_repo").Logger()}
}

// SavePositions upserts tracking records for the week in one transaction.
func (r *Repository) SavePositions(positions []domain.Position) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO positions (` + positionColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol, week) DO UPDATE SET
			   status = excluded.status,
			   gap_decision = excluded.gap_decision,
			   entry_price = excluded.entry_price,
			   stop = excluded.stop,
			   target_1 = excluded.target_1,
			   target_2 = excluded.target_2,
			   shares = excluded.shares,
			   current_price = excluded.current_price,
			   unrealized_r = excluded.unrealized_r,
			   updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range positions {
			_, err := stmt.Exec(p.Symbol, string(p.Week), string(p.Status),
				string(p.GapDecision), p.EntryPrice, p.Stop, p.Target1, p.Target2,
				p.Shares, p.CurrentPrice, p.UnrealizedR, p.UpdatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert position %s: %w", p.Symbol, err)
			}
		}
		return nil
	})
}

// GetPositions returns all tracking records for a week.
func (r *Repository) GetPositions(week domain.Week) ([]domain.Position, error) {
	rows, err := r.db.Query(
		`SELECT `+positionColumns+` FROM positions WHERE week = ? ORDER BY symbol`,
		string(week))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// GetOpenPositions returns every position still marked open, any week.
func (r *Repository) GetOpenPositions() ([]domain.Position, error) {
	rows, err := r.db.Query(
		`SELECT ` + positionColumns + ` FROM positions
		 WHERE status = 'open' ORDER BY week DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// SaveOutcome records one closed trade.
func (r *Repository) SaveOutcome(o domain.TradeOutcome) error {
	_, err := r.db.Exec(
		`INSERT INTO trade_outcomes (`+outcomeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		o.ID, o.Symbol, string(o.Week), o.EntryPrice, o.ExitPrice, o.Shares,
		o.RealizedR, boolToInt(o.Win), o.ClosedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save trade outcome %s: %w", o.Symbol, err)
	}
	return nil
}

// GetOutcomes returns all closed trades in close order, oldest first.
func (r *Repository) GetOutcomes() ([]domain.TradeOutcome, error) {
	rows, err := r.db.Query(
		`SELECT ` + outcomeColumns + ` FROM trade_outcomes ORDER BY closed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade outcomes: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// GetOutcomesSince returns closed trades after the cutoff, oldest first.
func (r *Repository) GetOutcomesSince(cutoff time.Time) ([]domain.TradeOutcome, error) {
	rows, err := r.db.Query(
		`SELECT `+outcomeColumns+` FROM trade_outcomes
		 WHERE closed_at > ? ORDER BY closed_at ASC`,
		cutoff.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query trade outcomes: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// SaveSummary upserts the Friday summary for its week.
func (r *Repository) SaveSummary(s domain.WeeklySummary) error {
	_, err := r.db.Exec(
		`INSERT INTO weekly_summaries (`+summaryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(week) DO UPDATE SET
		   realized_pnl = excluded.realized_pnl,
		   unrealized_pnl = excluded.unrealized_pnl,
		   weekly_r_sum = excluded.weekly_r_sum,
		   win_rate = excluded.win_rate,
		   health_score = excluded.health_score,
		   recommended_action = excluded.recommended_action,
		   calculated_at = excluded.calculated_at`,
		string(s.Week), s.RealizedPnL, s.UnrealizedPnL, s.WeeklyRSum,
		s.WinRate, s.HealthScore, s.RecommendedAction,
		s.CalculatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save weekly summary: %w", err)
	}
	return nil
}

// GetSummary returns the summary for a week, or (nil, nil) when absent.
func (r *Repository) GetSummary(week domain.Week) (*domain.WeeklySummary, error) {
	row := r.db.QueryRow(
		`SELECT `+summaryColumns+` FROM weekly_summaries WHERE week = ?`,
		string(week))

	var s domain.WeeklySummary
	var weekStr, calculatedAt string
	err := row.Scan(&weekStr, &s.RealizedPnL, &s.UnrealizedPnL, &s.WeeklyRSum,
		&s.WinRate, &s.HealthScore, &s.RecommendedAction, &calculatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan weekly summary: %w", err)
	}
	s.Week = domain.Week(weekStr)
	s.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
	return &s, nil
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var week, status, decision, updatedAt string

		err := rows.Scan(&p.Symbol, &week, &status, &decision, &p.EntryPrice,
			&p.Stop, &p.Target1, &p.Target2, &p.Shares, &p.CurrentPrice,
			&p.UnrealizedR, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		p.Week = domain.Week(week)
		p.Status = domain.PositionStatus(status)
		p.GapDecision = domain.GapDecision(decision)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanOutcomes(rows *sql.Rows) ([]domain.TradeOutcome, error) {
	var outcomes []domain.TradeOutcome
	for rows.Next() {
		var o domain.TradeOutcome
		var week, closedAt string
		var win int

		err := rows.Scan(&o.ID, &o.Symbol, &week, &o.EntryPrice, &o.ExitPrice,
			&o.Shares, &o.RealizedR, &win, &closedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade outcome: %w", err)
		}

		o.Week = domain.Week(week)
		o.Win = win == 1
		o.ClosedAt, _ = time.Parse(time.RFC3339, closedAt)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
