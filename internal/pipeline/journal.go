package pipeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const runColumns = `id, week, started_at, finished_at, status, stage_counts_json, error`

// SQLiteJournal persists run history in the analysis database.
type SQLiteJournal struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSQLiteJournal creates a run journal.
func NewSQLiteJournal(db *database.DB, log zerolog.Logger) *SQLiteJournal {
	return &SQLiteJournal{db: db, log: log.With().Str("component", "pipeline_journal").Logger()}
}

// Start inserts the running entry.
func (j *SQLiteJournal) Start(run *Run) error {
	_, err := j.db.Exec(
		`INSERT INTO pipeline_runs (id, week, started_at, status, stage_counts_json, error)
		 VALUES (?, ?, ?, ?, '{}', '')`,
		run.ID, string(run.Week), run.StartedAt.Format(time.RFC3339), string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to insert pipeline run: %w", err)
	}
	return nil
}

// Finish records the outcome and the per-stage counts.
func (j *SQLiteJournal) Finish(run *Run) error {
	counts, err := json.Marshal(run.StageCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal stage counts: %w", err)
	}

	var finishedAt any
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	_, err = j.db.Exec(
		`UPDATE pipeline_runs
		 SET finished_at = ?, status = ?, stage_counts_json = ?, error = ?
		 WHERE id = ?`,
		finishedAt, string(run.Status), string(counts), run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run: %w", err)
	}
	return nil
}

// GetRecent returns the latest runs, newest first.
func (j *SQLiteJournal) GetRecent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT `+runColumns+` FROM pipeline_runs
		 ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var week, startedAt, status, countsJSON string
		var finishedAt sql.NullString

		err := rows.Scan(&run.ID, &week, &startedAt, &finishedAt, &status,
			&countsJSON, &run.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}

		run.Week = domain.Week(week)
		run.Status = RunStatus(status)
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339, finishedAt.String)
			if err == nil {
				run.FinishedAt = &t
			}
		}
		if err := json.Unmarshal([]byte(countsJSON), &run.StageCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stage counts: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
