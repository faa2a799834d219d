package fundamentals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const fundamentalColumns = `symbol, growth_score, profitability_score,
	leverage_score, cash_flow_score, earnings_quality_score, fundamental_score,
	roce, roe, qualifies, calculated_at`

// Repository persists fundamental scores in the analysis database, keyed by
// symbol only: each monthly refresh replaces the previous snapshot.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a fundamentals repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "fundamentals_repo").Logger()}
}

// SaveBatch upserts all scores in one transaction.
func (r *Repository) SaveBatch(scores []domain.FundamentalScore) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO fundamental_scores (` + fundamentalColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol) DO UPDATE SET
			   growth_score = excluded.growth_score,
			   profitability_score = excluded.profitability_score,
			   leverage_score = excluded.leverage_score,
			   cash_flow_score = excluded.cash_flow_score,
			   earnings_quality_score = excluded.earnings_quality_score,
			   fundamental_score = excluded.fundamental_score,
			   roce = excluded.roce,
			   roe = excluded.roe,
			   qualifies = excluded.qualifies,
			   calculated_at = excluded.calculated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range scores {
			_, err := stmt.Exec(s.Symbol, s.GrowthScore, s.ProfitabilityScore,
				s.LeverageScore, s.CashFlowScore, s.EarningsQualityScore,
				s.FundamentalScore, s.ROCE, s.ROE, boolToInt(s.Qualifies),
				s.CalculatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert fundamental score %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// GetBySymbol returns a symbol's latest score, or (nil, nil) when absent.
func (r *Repository) GetBySymbol(symbol string) (*domain.FundamentalScore, error) {
	row := r.db.QueryRow(
		`SELECT `+fundamentalColumns+` FROM fundamental_scores WHERE symbol = ?`,
		symbol)

	var s domain.FundamentalScore
	var qualifies int
	var calculatedAt string
	err := row.Scan(&s.Symbol, &s.GrowthScore, &s.ProfitabilityScore,
		&s.LeverageScore, &s.CashFlowScore, &s.EarningsQualityScore,
		&s.FundamentalScore, &s.ROCE, &s.ROE, &qualifies, &calculatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fundamental score: %w", err)
	}
	s.Qualifies = qualifies == 1
	s.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
	return &s, nil
}

// GetQualifyingSymbols returns the symbols passing the fundamental screen,
// strongest first.
func (r *Repository) GetQualifyingSymbols() ([]string, error) {
	rows, err := r.db.Query(
		`SELECT symbol FROM fundamental_scores
		 WHERE qualifies = 1 ORDER BY fundamental_score DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamental scores: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
