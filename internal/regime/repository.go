package regime

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const assessmentColumns = `week, state, confidence, trend_score, breadth_score,
	volatility_score, leadership_score, composite, multiplier, calculated_at`

// Repository persists regime assessments keyed by week.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a regime repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "regime_repo").Logger()}
}

// Save upserts the assessment for its week.
func (r *Repository) Save(a *domain.RegimeAssessment) error {
	_, err := r.db.Exec(
		`INSERT INTO regime_assessments (`+assessmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(week) DO UPDATE SET
		   state = excluded.state,
		   confidence = excluded.confidence,
		   trend_score = excluded.trend_score,
		   breadth_score = excluded.breadth_score,
		   volatility_score = excluded.volatility_score,
		   leadership_score = excluded.leadership_score,
		   composite = excluded.composite,
		   multiplier = excluded.multiplier,
		   calculated_at = excluded.calculated_at`,
		string(a.Week), string(a.State), a.Confidence, a.TrendScore, a.BreadthScore,
		a.VolatilityScore, a.LeadershipScore, a.Composite, a.Multiplier,
		a.CalculatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save regime assessment: %w", err)
	}
	return nil
}

// GetByWeek returns the assessment for a week, or (nil, nil) when absent.
func (r *Repository) GetByWeek(week domain.Week) (*domain.RegimeAssessment, error) {
	row := r.db.QueryRow(
		`SELECT `+assessmentColumns+` FROM regime_assessments WHERE week = ?`,
		string(week),
	)
	return scanAssessment(row)
}

// GetLatest returns the most recent assessment, or (nil, nil) when none exist.
func (r *Repository) GetLatest() (*domain.RegimeAssessment, error) {
	row := r.db.QueryRow(
		`SELECT ` + assessmentColumns + ` FROM regime_assessments ORDER BY week DESC LIMIT 1`,
	)
	return scanAssessment(row)
}

func scanAssessment(row *sql.Row) (*domain.RegimeAssessment, error) {
	var a domain.RegimeAssessment
	var week, state, calculatedAt string

	err := row.Scan(&week, &state, &a.Confidence, &a.TrendScore, &a.BreadthScore,
		&a.VolatilityScore, &a.LeadershipScore, &a.Composite, &a.Multiplier, &calculatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan regime assessment: %w", err)
	}

	a.Week = domain.Week(week)
	a.State = domain.RegimeState(state)
	a.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
	return &a, nil
}
