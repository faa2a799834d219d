package recommendation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const recommendationColumns = `id, week, regime_state, regime_confidence,
	position_multiplier, total_setups, allocated_capital, allocated_pct,
	total_risk_pct, cards_json, stage_counts_json, status, created_at,
	approved_at, expired_at`

// staleAfter is how long a draft or approved recommendation stays live.
const staleAfter = 7 * 24 * time.Hour

// Repository persists weekly recommendations in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a recommendation repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "recommendation_repo").Logger()}
}

// Save upserts the recommendation for its week. Re-running a week replaces
// the draft in place and keeps the original id.
func (r *Repository) Save(rec *domain.Recommendation) error {
	cards, err := json.Marshal(rec.Cards)
	if err != nil {
		return fmt.Errorf("failed to marshal cards: %w", err)
	}
	counts, err := json.Marshal(rec.StageCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal stage counts: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO recommendations (`+recommendationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(week) DO UPDATE SET
		   regime_state = excluded.regime_state,
		   regime_confidence = excluded.regime_confidence,
		   position_multiplier = excluded.position_multiplier,
		   total_setups = excluded.total_setups,
		   allocated_capital = excluded.allocated_capital,
		   allocated_pct = excluded.allocated_pct,
		   total_risk_pct = excluded.total_risk_pct,
		   cards_json = excluded.cards_json,
		   stage_counts_json = excluded.stage_counts_json,
		   status = excluded.status,
		   created_at = excluded.created_at`,
		rec.ID, string(rec.Week), string(rec.RegimeState), rec.RegimeConfidence,
		rec.PositionMultiplier, rec.TotalSetups, rec.AllocatedCapital,
		rec.AllocatedPct, rec.TotalRiskPct, string(cards), string(counts),
		string(rec.Status), rec.CreatedAt.Format(time.RFC3339),
		nullableTime(rec.ApprovedAt), nullableTime(rec.ExpiredAt))
	if err != nil {
		return fmt.Errorf("failed to save recommendation: %w", err)
	}
	return nil
}

// GetByWeek returns the recommendation for a week, or (nil, nil) when absent.
func (r *Repository) GetByWeek(week domain.Week) (*domain.Recommendation, error) {
	row := r.db.QueryRow(
		`SELECT `+recommendationColumns+` FROM recommendations WHERE week = ?`,
		string(week))
	return scanRecommendation(row)
}

// GetLatest returns the most recent non-expired recommendation, or (nil, nil).
func (r *Repository) GetLatest() (*domain.Recommendation, error) {
	row := r.db.QueryRow(
		`SELECT ` + recommendationColumns + ` FROM recommendations
		 WHERE status != 'expired' ORDER BY week DESC LIMIT 1`)
	return scanRecommendation(row)
}

// Approve moves a draft to approved. Returns sql.ErrNoRows semantics via a
// boolean: false when the week has no draft to approve.
func (r *Repository) Approve(week domain.Week, at time.Time) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE recommendations SET status = 'approved', approved_at = ?
		 WHERE week = ? AND status = 'draft'`,
		at.Format(time.RFC3339), string(week))
	if err != nil {
		return false, fmt.Errorf("failed to approve recommendation: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExpireStale marks live recommendations older than a week as expired and
// returns how many were swept.
func (r *Repository) ExpireStale(now time.Time) (int, error) {
	cutoff := now.Add(-staleAfter)
	res, err := r.db.Exec(
		`UPDATE recommendations SET status = 'expired', expired_at = ?
		 WHERE status != 'expired' AND created_at < ?`,
		now.Format(time.RFC3339), cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to expire recommendations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().Int64("expired", n).Msg("Swept stale recommendations")
	}
	return int(n), nil
}

func scanRecommendation(row *sql.Row) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var week, state, cardsJSON, countsJSON, status, createdAt string
	var approvedAt, expiredAt sql.NullString

	err := row.Scan(&rec.ID, &week, &state, &rec.RegimeConfidence,
		&rec.PositionMultiplier, &rec.TotalSetups, &rec.AllocatedCapital,
		&rec.AllocatedPct, &rec.TotalRiskPct, &cardsJSON, &countsJSON,
		&status, &createdAt, &approvedAt, &expiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recommendation: %w", err)
	}

	if err := json.Unmarshal([]byte(cardsJSON), &rec.Cards); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cards: %w", err)
	}
	if err := json.Unmarshal([]byte(countsJSON), &rec.StageCounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage counts: %w", err)
	}

	rec.Week = domain.Week(week)
	rec.RegimeState = domain.RegimeState(state)
	rec.Status = domain.RecommendationStatus(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.ApprovedAt = parseNullableTime(approvedAt)
	rec.ExpiredAt = parseNullableTime(expiredAt)
	return &rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
