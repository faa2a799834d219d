package pipeline

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

func testJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "analysis.db"),
		Profile: database.ProfileStandard,
		Name:    "analysis",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewSQLiteJournal(db, zerolog.Nop())
}

func TestJournalStartAndFinish(t *testing.T) {
	journal := testJournal(t)

	started := time.Now().UTC().Truncate(time.Second)
	run := &Run{
		ID:          "run-1",
		Week:        domain.Week("2026-08-24"),
		StartedAt:   started,
		Status:      RunRunning,
		StageCounts: map[string]int{},
	}
	require.NoError(t, journal.Start(run))

	finished := started.Add(3 * time.Minute)
	run.FinishedAt = &finished
	run.Status = RunCompleted
	run.StageCounts = map[string]int{"s1_universe": 500, "s8_recommendation": 1}
	require.NoError(t, journal.Finish(run))

	runs, err := journal.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, domain.Week("2026-08-24"), got.Week)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 500, got.StageCounts["s1_universe"])
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
	assert.Empty(t, got.Error)
}

func TestJournalGetRecentOrdersNewestFirst(t *testing.T) {
	journal := testJournal(t)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := &Run{
			ID:          id,
			Week:        domain.Week("2026-08-24"),
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			Status:      RunFailed,
			StageCounts: map[string]int{},
		}
		run.Error = "stage s2_momentum failed"
		require.NoError(t, journal.Start(run))
		require.NoError(t, journal.Finish(run))
	}

	runs, err := journal.GetRecent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-b", runs[1].ID)
	assert.Equal(t, "stage s2_momentum failed", runs[0].Error)
	assert.Nil(t, runs[0].FinishedAt, "failed mid-run without a finish time")
}
