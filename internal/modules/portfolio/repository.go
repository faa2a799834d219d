package portfolio

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const allocationColumns = `week, regime_state, positions_json, sector_allocation_json,
	position_count, allocated_pct, cash_pct, total_risk_pct, correlation_filtered,
	sector_filtered, status, reason, calculated_at`

// Repository persists weekly allocations in the analysis database. Positions
// are stored as a JSON document inside the week-keyed row.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "portfolio_repo").Logger()}
}

// Save upserts the allocation for its week.
func (r *Repository) Save(a *domain.PortfolioAllocation) error {
	positions, err := json.Marshal(a.Positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}
	sectors, err := json.Marshal(a.SectorAllocation)
	if err != nil {
		return fmt.Errorf("failed to marshal sector allocation: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO portfolio_allocations (`+allocationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(week) DO UPDATE SET
		   regime_state = excluded.regime_state,
		   positions_json = excluded.positions_json,
		   sector_allocation_json = excluded.sector_allocation_json,
		   position_count = excluded.position_count,
		   allocated_pct = excluded.allocated_pct,
		   cash_pct = excluded.cash_pct,
		   total_risk_pct = excluded.total_risk_pct,
		   correlation_filtered = excluded.correlation_filtered,
		   sector_filtered = excluded.sector_filtered,
		   status = excluded.status,
		   reason = excluded.reason,
		   calculated_at = excluded.calculated_at`,
		string(a.Week), string(a.RegimeState), string(positions), string(sectors),
		len(a.Positions), a.AllocatedPct, a.CashPct, a.TotalRiskPct,
		a.CorrelationFiltered, a.SectorFiltered, string(a.Status), a.Reason,
		a.CalculatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save portfolio allocation: %w", err)
	}
	return nil
}

// GetByWeek returns the allocation for a week, or (nil, nil) when absent.
func (r *Repository) GetByWeek(week domain.Week) (*domain.PortfolioAllocation, error) {
	row := r.db.QueryRow(
		`SELECT `+allocationColumns+` FROM portfolio_allocations WHERE week = ?`,
		string(week))
	return scanAllocation(row)
}

// GetLatestApproved returns the most recent approved allocation, or
// (nil, nil) when none exist.
func (r *Repository) GetLatestApproved() (*domain.PortfolioAllocation, error) {
	row := r.db.QueryRow(
		`SELECT ` + allocationColumns + ` FROM portfolio_allocations
		 WHERE status IN ('approved', 'executed') ORDER BY week DESC LIMIT 1`)
	return scanAllocation(row)
}

// SetStatus moves the allocation through its approval lifecycle.
func (r *Repository) SetStatus(week domain.Week, status domain.AllocationStatus) error {
	_, err := r.db.Exec(
		`UPDATE portfolio_allocations SET status = ? WHERE week = ?`,
		string(status), string(week))
	return err
}

func scanAllocation(row *sql.Row) (*domain.PortfolioAllocation, error) {
	var a domain.PortfolioAllocation
	var week, state, positionsJSON, sectorsJSON, status, calculatedAt string
	var positionCount int

	err := row.Scan(&week, &state, &positionsJSON, &sectorsJSON, &positionCount,
		&a.AllocatedPct, &a.CashPct, &a.TotalRiskPct, &a.CorrelationFiltered,
		&a.SectorFiltered, &status, &a.Reason, &calculatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio allocation: %w", err)
	}

	if err := json.Unmarshal([]byte(positionsJSON), &a.Positions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
	}
	if err := json.Unmarshal([]byte(sectorsJSON), &a.SectorAllocation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sector allocation: %w", err)
	}

	a.Week = domain.Week(week)
	a.RegimeState = domain.RegimeState(state)
	a.Status = domain.AllocationStatus(status)
	a.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
	return &a, nil
}
