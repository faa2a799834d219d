package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/internal/marketdata"
	"github.com/aristath/lookout/internal/modules/execution"
	"github.com/aristath/lookout/internal/modules/fundamentals"
	"github.com/aristath/lookout/internal/modules/portfolio"
	"github.com/aristath/lookout/internal/modules/recommendation"
	"github.com/aristath/lookout/internal/modules/universe"
	"github.com/aristath/lookout/internal/pipeline"
)

const jobTimeout = 30 * time.Minute

// Uploader pushes the weekly recommendation off-site after a run.
type Uploader interface {
	UploadRecommendation(ctx context.Context, rec *domain.Recommendation) error
}

// PipelineJob runs the full weekly pipeline for the upcoming trading
// week, then backs up the resulting recommendation if an uploader is
// configured.
type PipelineJob struct {
	Runner          *pipeline.Runner
	Recommendations *recommendation.Repository
	Backup          Uploader // may be nil
	PortfolioValue  float64
	RiskPctPerTrade float64
	Log             zerolog.Logger
}

func (j *PipelineJob) Name() string { return "weekly_pipeline" }

func (j *PipelineJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	week := domain.WeekOf(time.Now().AddDate(0, 0, 7))
	rc := &pipeline.RunContext{
		Week:            week,
		PortfolioValue:  j.PortfolioValue,
		RiskPctPerTrade: j.RiskPctPerTrade,
	}
	if _, err := j.Runner.Run(ctx, rc); err != nil {
		return err
	}

	if j.Backup == nil {
		return nil
	}
	rec, err := j.Recommendations.GetByWeek(week)
	if err != nil || rec == nil {
		return err
	}
	if err := j.Backup.UploadRecommendation(ctx, rec); err != nil {
		// A failed backup must not mark the run failed.
		j.Log.Error().Err(err).Str("week", string(week)).Msg("Recommendation backup failed")
	}
	return nil
}

// GapCheckJob applies the Monday pre-open gap decision tree to the
// approved allocation for the current week.
type GapCheckJob struct {
	Provider   marketdata.Provider
	Portfolios *portfolio.Repository
	Engine     *execution.Engine
	Executions *execution.Repository
	Log        zerolog.Logger
}

func (j *GapCheckJob) Name() string { return "monday_gap_check" }

func (j *GapCheckJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	week := domain.WeekOf(time.Now())
	alloc, err := j.Portfolios.GetByWeek(week)
	if err != nil {
		return err
	}
	if alloc == nil || len(alloc.Positions) == 0 {
		j.Log.Info().Str("week", string(week)).Msg("No allocation to execute this week")
		return nil
	}

	opens := make(map[string]float64, len(alloc.Positions))
	for _, pos := range alloc.Positions {
		bars, err := j.Provider.FetchDailyBars(ctx, pos.Symbol, 5)
		if err != nil || len(bars) == 0 {
			j.Log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No opening quote")
			continue
		}
		opens[pos.Symbol] = bars[len(bars)-1].Open
	}

	positions := j.Engine.ApplyMondayOpens(alloc, opens)
	return j.Executions.SavePositions(positions)
}

// SummaryJob marks the week's positions to Friday closes, surfaces
// position alerts, and writes the weekly summary.
type SummaryJob struct {
	Provider   marketdata.Provider
	Engine     *execution.Engine
	Executions *execution.Repository
	Log        zerolog.Logger
}

func (j *SummaryJob) Name() string { return "friday_summary" }

func (j *SummaryJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	now := time.Now()
	week := domain.WeekOf(now)
	positions, err := j.Executions.GetPositions(week)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		j.Log.Info().Str("week", string(week)).Msg("No positions this week")
		return nil
	}

	prices := make(map[string]float64, len(positions))
	for _, pos := range positions {
		bars, err := j.Provider.FetchDailyBars(ctx, pos.Symbol, 5)
		if err != nil || len(bars) == 0 {
			j.Log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No closing quote")
			continue
		}
		prices[pos.Symbol] = bars[len(bars)-1].Close
	}

	positions = j.Engine.MarkToMarket(positions, prices)
	if err := j.Executions.SavePositions(positions); err != nil {
		return err
	}

	for _, pos := range positions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		alerts := execution.PositionAlerts(pos.Symbol, pos.CurrentPrice,
			pos.EntryPrice, pos.Stop, pos.Target1, pos.Target2)
		for _, alert := range alerts {
			j.Log.Warn().Str("symbol", pos.Symbol).Msg(alert)
		}
	}

	weekOutcomes, err := j.Executions.GetOutcomesSince(week.Time())
	if err != nil {
		return err
	}
	history, err := j.Executions.GetOutcomes()
	if err != nil {
		return err
	}

	summary := j.Engine.Summarize(week, positions, weekOutcomes, history, now)
	return j.Executions.SaveSummary(summary)
}

// ExpiryJob marks recommendations older than a week as expired.
type ExpiryJob struct {
	Recommendations *recommendation.Repository
	Log             zerolog.Logger
}

func (j *ExpiryJob) Name() string { return "expiry_sweep" }

func (j *ExpiryJob) Run() error {
	n, err := j.Recommendations.ExpireStale(time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		j.Log.Info().Int("expired", n).Msg("Expired stale recommendations")
	}
	return nil
}

// FundamentalsJob refreshes fundamental scores for the quality universe
// and flags qualifying stocks. Runs monthly: fundamentals move on
// quarterly results, not weekly prices.
type FundamentalsJob struct {
	Provider     fundamentals.Provider
	Scorer       *fundamentals.Scorer
	Fundamentals *fundamentals.Repository
	Stocks       *universe.StockRepository
	QualityFloor float64
	Log          zerolog.Logger
}

func (j *FundamentalsJob) Name() string { return "fundamentals_refresh" }

func (j *FundamentalsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	stocks, err := j.Stocks.GetHighQuality(j.QualityFloor)
	if err != nil {
		return err
	}

	var scores []domain.FundamentalScore
	for _, stock := range stocks {
		data, err := j.Provider.Fetch(ctx, stock.Symbol)
		if err != nil {
			j.Log.Warn().Err(err).Str("symbol", stock.Symbol).Msg("Fundamentals fetch failed")
			continue
		}
		if data == nil {
			continue // no coverage
		}
		data.Symbol = stock.Symbol

		// The universe builder seeds every stock with sector "Unknown";
		// the provider's profile is the first real label we see.
		sector := stock.Sector
		if data.Sector != "" && data.Sector != stock.Sector {
			sector = data.Sector
			if err := j.Stocks.SetSector(stock.Symbol, sector); err != nil {
				j.Log.Warn().Err(err).Str("symbol", stock.Symbol).Msg("Sector update failed")
			}
		}
		data.IsFinancial = fundamentals.IsFinancialSector(sector)
		scores = append(scores, j.Scorer.Score(*data))
	}

	if len(scores) == 0 {
		return fmt.Errorf("no fundamental scores computed for %d stocks", len(stocks))
	}
	if err := j.Fundamentals.SaveBatch(scores); err != nil {
		return err
	}
	for _, score := range scores {
		if err := j.Stocks.SetFundamentallyQualified(score.Symbol, score.Qualifies); err != nil {
			return err
		}
	}

	j.Log.Info().Int("scored", len(scores)).Int("universe", len(stocks)).Msg("Fundamentals refreshed")
	return nil
}
