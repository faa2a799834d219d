package momentum

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const scoreColumns = `symbol, week, score, filters_passed, pass_proximity,
	pass_ma_alignment, pass_relative_strength, pass_composite, pass_volatility,
	proximity_52w, ma_align_score, rs_1m, rs_3m, rs_6m, vol_ratio, qualifies, calculated_at`

// Repository persists momentum scores in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a momentum repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "momentum_repo").Logger()}
}

// SaveBatch upserts all scores for the week in one transaction.
func (r *Repository) SaveBatch(scores []domain.MomentumScore) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO momentum_scores (` + scoreColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol, week) DO UPDATE SET
			   score = excluded.score,
			   filters_passed = excluded.filters_passed,
			   pass_proximity = excluded.pass_proximity,
			   pass_ma_alignment = excluded.pass_ma_alignment,
			   pass_relative_strength = excluded.pass_relative_strength,
			   pass_composite = excluded.pass_composite,
			   pass_volatility = excluded.pass_volatility,
			   proximity_52w = excluded.proximity_52w,
			   ma_align_score = excluded.ma_align_score,
			   rs_1m = excluded.rs_1m,
			   rs_3m = excluded.rs_3m,
			   rs_6m = excluded.rs_6m,
			   vol_ratio = excluded.vol_ratio,
			   qualifies = excluded.qualifies,
			   calculated_at = excluded.calculated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range scores {
			_, err := stmt.Exec(s.Symbol, string(s.Week), s.Score, s.FiltersPassed,
				boolToInt(s.PassProximity), boolToInt(s.PassMAAlignment),
				boolToInt(s.PassRelativeStrength), boolToInt(s.PassComposite),
				boolToInt(s.PassVolatility),
				s.Proximity52W, s.MAAlignScore, s.RS1M, s.RS3M, s.RS6M, s.VolRatio,
				boolToInt(s.Qualifies), s.CalculatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert momentum score %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// GetQualifying returns qualifying scores for a week, strongest first.
func (r *Repository) GetQualifying(week domain.Week) ([]domain.MomentumScore, error) {
	rows, err := r.db.Query(
		`SELECT `+scoreColumns+` FROM momentum_scores
		 WHERE week = ? AND qualifies = 1
		 ORDER BY score DESC, symbol`, string(week))
	if err != nil {
		return nil, fmt.Errorf("failed to query momentum scores: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

// GetBySymbol returns a symbol's score for a week, or (nil, nil) when absent.
func (r *Repository) GetBySymbol(symbol string, week domain.Week) (*domain.MomentumScore, error) {
	rows, err := r.db.Query(
		`SELECT `+scoreColumns+` FROM momentum_scores WHERE symbol = ? AND week = ?`,
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

// CountQualifying returns how many symbols passed the gate for a week.
func (r *Repository) CountQualifying(week domain.Week) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM momentum_scores WHERE week = ? AND qualifies = 1`,
		string(week)).Scan(&count)
	return count, err
}

func scanScores(rows *sql.Rows) ([]domain.MomentumScore, error) {
	var scores []domain.MomentumScore
	for rows.Next() {
		var s domain.MomentumScore
		var week, calculatedAt string
		var pProx, pMA, pRS, pComp, pVol, qualifies int

		err := rows.Scan(&s.Symbol, &week, &s.Score, &s.FiltersPassed,
			&pProx, &pMA, &pRS, &pComp, &pVol,
			&s.Proximity52W, &s.MAAlignScore, &s.RS1M, &s.RS3M, &s.RS6M, &s.VolRatio,
			&qualifies, &calculatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan momentum score: %w", err)
		}

		s.Week = domain.Week(week)
		s.PassProximity = pProx == 1
		s.PassMAAlignment = pMA == 1
		s.PassRelativeStrength = pRS == 1
		s.PassComposite = pComp == 1
		s.PassVolatility = pVol == 1
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
