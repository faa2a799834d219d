package liquidity

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const scoreColumns = `symbol, week, turnover_20d_cr, turnover_60d_cr, peak_30d_cr,
	volume_stability, circuit_hits_30d, avg_gap_pct, score, qualifies, calculated_at`

// Repository persists liquidity scores in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a liquidity repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "liquidity_repo").Logger()}
}

// SaveBatch upserts all scores for the week in one transaction.
func (r *Repository) SaveBatch(scores []domain.LiquidityScore) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO liquidity_scores (` + scoreColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol, week) DO UPDATE SET
			   turnover_20d_cr = excluded.turnover_20d_cr,
			   turnover_60d_cr = excluded.turnover_60d_cr,
			   peak_30d_cr = excluded.peak_30d_cr,
			   volume_stability = excluded.volume_stability,
			   circuit_hits_30d = excluded.circuit_hits_30d,
			   avg_gap_pct = excluded.avg_gap_pct,
			   score = excluded.score,
			   qualifies = excluded.qualifies,
			   calculated_at = excluded.calculated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range scores {
			_, err := stmt.Exec(s.Symbol, string(s.Week), s.Turnover20DCr, s.Turnover60DCr,
				s.Peak30DCr, s.VolumeStability, s.CircuitHits30D, s.AvgGapPct, s.Score,
				boolToInt(s.Qualifies), s.CalculatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert liquidity score %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// GetQualifying returns qualifying scores for a week, most liquid first.
func (r *Repository) GetQualifying(week domain.Week) ([]domain.LiquidityScore, error) {
	rows, err := r.db.Query(
		`SELECT `+scoreColumns+` FROM liquidity_scores
		 WHERE week = ? AND qualifies = 1
		 ORDER BY score DESC, symbol`, string(week))
	if err != nil {
		return nil, fmt.Errorf("failed to query liquidity scores: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

// GetBySymbol returns a symbol's score for a week, or (nil, nil) when absent.
func (r *Repository) GetBySymbol(symbol string, week domain.Week) (*domain.LiquidityScore, error) {
	rows, err := r.db.Query(
		`SELECT `+scoreColumns+` FROM liquidity_scores WHERE symbol = ? AND week = ?`,
		symbol, string(week))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores, err := scanScores(rows)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}
	return &scores[0], nil
}

func scanScores(rows *sql.Rows) ([]domain.LiquidityScore, error) {
	var scores []domain.LiquidityScore
	for rows.Next() {
		var s domain.LiquidityScore
		var week, calculatedAt string
		var qualifies int

		err := rows.Scan(&s.Symbol, &week, &s.Turnover20DCr, &s.Turnover60DCr,
			&s.Peak30DCr, &s.VolumeStability, &s.CircuitHits30D, &s.AvgGapPct,
			&s.Score, &qualifies, &calculatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan liquidity score: %w", err)
		}

		s.Week = domain.Week(week)
		s.Qualifies = qualifies == 1
		s.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
