package recommendation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "analysis.db"),
		Profile: database.ProfileStandard,
		Name:    "analysis",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewRepository(db, zerolog.Nop())
}

func draft(week domain.Week, createdAt time.Time) *domain.Recommendation {
	return &domain.Recommendation{
		ID:                 "rec-" + string(week),
		Week:               week,
		RegimeState:        domain.RegimeRiskOn,
		RegimeConfidence:   0.82,
		PositionMultiplier: 1.0,
		TotalSetups:        5,
		AllocatedCapital:   650000,
		AllocatedPct:       65,
		TotalRiskPct:       4.5,
		Cards: []domain.RecommendationCard{
			{Symbol: "RELIANCE", SetupType: "BREAKOUT", Conviction: 7.8},
		},
		StageCounts: map[string]int{"s2_momentum": 120},
		Status:      domain.RecommendationDraft,
		CreatedAt:   createdAt,
	}
}

func TestSaveAndGetByWeek(t *testing.T) {
	repo := testRepo(t)
	week := domain.Week("2026-08-24")

	require.NoError(t, repo.Save(draft(week, time.Now().UTC())))

	got, err := repo.GetByWeek(week)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rec-2026-08-24", got.ID)
	assert.Equal(t, domain.RegimeRiskOn, got.RegimeState)
	assert.Equal(t, domain.RecommendationDraft, got.Status)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, "RELIANCE", got.Cards[0].Symbol)
	assert.Equal(t, 120, got.StageCounts["s2_momentum"])
	assert.Nil(t, got.ApprovedAt)
}

func TestGetByWeekMissing(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.GetByWeek(domain.Week("2026-01-05"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveRerunKeepsOriginalID(t *testing.T) {
	repo := testRepo(t)
	week := domain.Week("2026-08-24")

	first := draft(week, time.Now().UTC())
	require.NoError(t, repo.Save(first))

	rerun := draft(week, time.Now().UTC())
	rerun.ID = "rec-rerun"
	rerun.TotalSetups = 3
	require.NoError(t, repo.Save(rerun))

	got, err := repo.GetByWeek(week)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID, "week conflict keeps the first id")
	assert.Equal(t, 3, got.TotalSetups, "payload is replaced")
}

func TestApprove(t *testing.T) {
	repo := testRepo(t)
	week := domain.Week("2026-08-24")
	require.NoError(t, repo.Save(draft(week, time.Now().UTC())))

	at := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)
	ok, err := repo.Approve(week, at)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByWeek(week)
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendationApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(at))

	ok, err = repo.Approve(week, at)
	require.NoError(t, err)
	assert.False(t, ok, "already approved, nothing to approve")

	ok, err = repo.Approve(domain.Week("2026-09-07"), at)
	require.NoError(t, err)
	assert.False(t, ok, "unknown week")
}

func TestGetLatestSkipsExpired(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Save(draft(domain.Week("2026-08-17"), now.AddDate(0, 0, -10))))
	require.NoError(t, repo.Save(draft(domain.Week("2026-08-24"), now.AddDate(0, 0, -9))))

	n, err := repo.ExpireStale(now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.GetLatest()
	require.NoError(t, err)
	assert.Nil(t, got, "everything expired")

	require.NoError(t, repo.Save(draft(domain.Week("2026-08-31"), now)))
	got, err = repo.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.Week("2026-08-31"), got.Week)
}

func TestExpireStaleLeavesFreshDrafts(t *testing.T) {
	repo := testRepo(t)
	now := time.Now().UTC()

	require.NoError(t, repo.Save(draft(domain.Week("2026-08-24"), now.AddDate(0, 0, -2))))

	n, err := repo.ExpireStale(now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
