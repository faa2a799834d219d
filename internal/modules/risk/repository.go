package risk

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const sizeColumns = `symbol, week, stop_method, risk_per_share, base_shares,
	vol_adjustment, kelly_fraction, regime_multiplier, final_shares,
	position_value, risk_amount, position_pct, qualifies, calculated_at`

// Repository persists position sizes in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a risk repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "risk_repo").Logger()}
}

// SaveBatch upserts all sizes for the week in one transaction.
func (r *Repository) SaveBatch(sizes []domain.PositionSize) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO position_sizes (` + sizeColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol, week) DO UPDATE SET
			   stop_method = excluded.stop_method,
			   risk_per_share = excluded.risk_per_share,
			   base_shares = excluded.base_shares,
			   vol_adjustment = excluded.vol_adjustment,
			   kelly_fraction = excluded.kelly_fraction,
			   regime_multiplier = excluded.regime_multiplier,
			   final_shares = excluded.final_shares,
			   position_value = excluded.position_value,
			   risk_amount = excluded.risk_amount,
			   position_pct = excluded.position_pct,
			   qualifies = excluded.qualifies,
			   calculated_at = excluded.calculated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range sizes {
			_, err := stmt.Exec(s.Symbol, string(s.Week), string(s.StopMethod),
				s.RiskPerShare, s.BaseShares, s.VolAdjustment, s.KellyFraction,
				s.RegimeMultiplier, s.FinalShares, s.PositionValue, s.RiskAmount,
				s.PositionPct, boolToInt(s.Qualifies), s.CalculatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert position size %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// GetQualifying returns qualifying sizes for a week.
func (r *Repository) GetQualifying(week domain.Week) ([]domain.PositionSize, error) {
	rows, err := r.db.Query(
		`SELECT `+sizeColumns+` FROM position_sizes
		 WHERE week = ? AND qualifies = 1
		 ORDER BY symbol`, string(week))
	if err != nil {
		return nil, fmt.Errorf("failed to query position sizes: %w", err)
	}
	defer rows.Close()
	return scanSizes(rows)
}

// GetBySymbol returns a symbol's size for a week, or (nil, nil) when absent.
func (r *Repository) GetBySymbol(symbol string, week domain.Week) (*domain.PositionSize, error) {
	rows, err := r.db.Query(
		`SELECT `+sizeColumns+` FROM position_sizes WHERE symbol = ? AND week = ?`,
		symbol, string(week))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes, err := scanSizes(rows)
	if err != nil {
		return nil, err
	}
	if len(sizes) == 0 {
		return nil, nil
	}
	return &sizes[0], nil
}

func scanSizes(rows *sql.Rows) ([]domain.PositionSize, error) {
	var sizes []domain.PositionSize
	for rows.Next() {
		var s domain.PositionSize
		var week, stopMethod, calculatedAt string
		var qualifies int

		err := rows.Scan(&s.Symbol, &week, &stopMethod, &s.RiskPerShare, &s.BaseShares,
			&s.VolAdjustment, &s.KellyFraction, &s.RegimeMultiplier, &s.FinalShares,
			&s.PositionValue, &s.RiskAmount, &s.PositionPct, &qualifies, &calculatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position size: %w", err)
		}

		s.Week = domain.Week(week)
		s.StopMethod = domain.StopMethod(stopMethod)
		s.Qualifies = qualifies == 1
		s.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
		sizes = append(sizes, s)
	}
	return sizes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
