package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/backup"
	"github.com/aristath/lookout/internal/config"
	"github.com/aristath/lookout/internal/scheduler"
)

// InitializeScheduler registers the weekly cadence on a scheduler. The
// caller owns Start/Stop.
func InitializeScheduler(cfg *config.Config, c *Container, log zerolog.Logger) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	var uploader scheduler.Uploader
	if cfg.BackupEnabled {
		s3, err := backup.NewS3Uploader(context.Background(),
			cfg.BackupBucket, cfg.BackupPrefix, cfg.BackupRegion, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup uploader: %w", err)
		}
		uploader = s3
	}

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.PipelineSchedule, &scheduler.PipelineJob{
			Runner:          c.Runner,
			Recommendations: c.RecommendationRepo,
			Backup:          uploader,
			PortfolioValue:  cfg.PortfolioValue,
			RiskPctPerTrade: cfg.RiskPctPerTrade,
			Log:             log,
		}},
		{cfg.GapCheckSchedule, &scheduler.GapCheckJob{
			Provider:   c.Provider,
			Portfolios: c.PortfolioRepo,
			Engine:     c.Engine,
			Executions: c.ExecutionRepo,
			Log:        log,
		}},
		{cfg.SummarySchedule, &scheduler.SummaryJob{
			Provider:   c.Provider,
			Engine:     c.Engine,
			Executions: c.ExecutionRepo,
			Log:        log,
		}},
		{cfg.ExpirySchedule, &scheduler.ExpiryJob{
			Recommendations: c.RecommendationRepo,
			Log:             log,
		}},
	}

	// Fundamentals refresh only runs with a provider configured.
	if c.Fundamentals != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{cfg.FundamentalsSchedule, &scheduler.FundamentalsJob{
			Provider:     c.Fundamentals,
			Scorer:       c.FundamentalsScorer,
			Fundamentals: c.FundamentalsRepo,
			Stocks:       c.StockRepo,
			QualityFloor: 60,
			Log:          log,
		}})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", j.job.Name(), err)
		}
	}

	return sched, nil
}
