package consistency

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const scoreColumns = `symbol, week, pos_pct, plus3_pct, plus5_pct, std_dev,
	avg_weekly_return, sharpe, sortino, max_win_streak, consistency_score,
	regime_score, percentile_rank, final_score, filters_passed, significant,
	p_value, qualifies, calculated_at`

// Repository persists consistency scores in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a consistency repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "consistency_repo").Logger()}
}

// SaveBatch upserts all scores for the week in one transaction.
func (r *Repository) SaveBatch(scores []domain.ConsistencyScore) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO consistency_scores (` + scoreColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol, week) DO UPDATE SET
			   pos_pct = excluded.pos_pct,
			   plus3_pct = excluded.plus3_pct,
			   plus5_pct = excluded.plus5_pct,
			   std_dev = excluded.std_dev,
			   avg_weekly_return = excluded.avg_weekly_return,
			   sharpe = excluded.sharpe,
			   sortino = excluded.sortino,
			   max_win_streak = excluded.max_win_streak,
			   consistency_score = excluded.consistency_score,
			   regime_score = excluded.regime_score,
			   percentile_rank = excluded.percentile_rank,
			   final_score = excluded.final_score,
			   filters_passed = excluded.filters_passed,
			   significant = excluded.significant,
			   p_value = excluded.p_value,
			   qualifies = excluded.qualifies,
			   calculated_at = excluded.calculated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range scores {
			_, err := stmt.Exec(s.Symbol, string(s.Week), s.PosPct, s.Plus3Pct, s.Plus5Pct,
				s.StdDev, s.AvgWeeklyReturn, s.Sharpe, s.Sortino, s.MaxWinStreak,
				s.ConsistencyScore, s.RegimeScore, s.PercentileRank, s.FinalScore,
				s.FiltersPassed, boolToInt(s.Significant), s.PValue,
				boolToInt(s.Qualifies), s.CalculatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert consistency score %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// GetQualifying returns qualifying scores for a week, strongest first.
func (r *Repository) GetQualifying(week domain.Week) ([]domain.ConsistencyScore, error) {
	rows, err := r.db.Query(
		`SELECT `+scoreColumns+` FROM consistency_scores
		 WHERE week = ? AND qualifies = 1
		 ORDER BY final_score DESC, symbol`, string(week))
	if err != nil {
		return nil, fmt.Errorf("failed to query consistency scores: %w", err)
	}
	defer rows.Close()
	return scanScores(rows)
}

// GetBySymbol returns a symbol's score for a week, or (nil, nil) when absent.
func (r *Repository) GetBySymbol(symbol string, week domain.Week) (*domain.ConsistencyScore, error) {
	rows, err := r.db.Query(
		`SELECT `+scoreColumns+` FROM consistency_scores WHERE symbol = ? AND week = ?`,
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

func scanScores(rows *sql.Rows) ([]domain.ConsistencyScore, error) {
	var scores []domain.ConsistencyScore
	for rows.Next() {
		var s domain.ConsistencyScore
		var week, calculatedAt string
		var significant, qualifies int

		err := rows.Scan(&s.Symbol, &week, &s.PosPct, &s.Plus3Pct, &s.Plus5Pct,
			&s.StdDev, &s.AvgWeeklyReturn, &s.Sharpe, &s.Sortino, &s.MaxWinStreak,
			&s.ConsistencyScore, &s.RegimeScore, &s.PercentileRank, &s.FinalScore,
			&s.FiltersPassed, &significant, &s.PValue, &qualifies, &calculatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consistency score: %w", err)
		}

		s.Week = domain.Week(week)
		s.Significant = significant == 1
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
