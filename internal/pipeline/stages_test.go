package pipeline

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/internal/marketdata"
	"github.com/aristath/lookout/internal/modules/consistency"
	"github.com/aristath/lookout/internal/modules/execution"
	"github.com/aristath/lookout/internal/modules/liquidity"
	"github.com/aristath/lookout/internal/modules/momentum"
	"github.com/aristath/lookout/internal/modules/portfolio"
	"github.com/aristath/lookout/internal/modules/recommendation"
	"github.com/aristath/lookout/internal/modules/risk"
	"github.com/aristath/lookout/internal/modules/setups"
	"github.com/aristath/lookout/internal/modules/universe"
	"github.com/aristath/lookout/internal/regime"
	"github.com/aristath/lookout/pkg/formulas"
)

// fakeProvider serves deterministic fixtures for the full-DAG tests.
type fakeProvider struct {
	instruments []marketdata.Instrument
	mtf         map[string]bool
	nifty50     map[string]bool
	bars        map[string][]domain.DailyBar
	nifty       []domain.DailyBar
	sector      []domain.DailyBar
}

func (p *fakeProvider) FetchInstruments(context.Context) ([]marketdata.Instrument, error) {
	return p.instruments, nil
}

func (p *fakeProvider) FetchMTFSymbols(context.Context) (map[string]bool, error) {
	return p.mtf, nil
}

func (p *fakeProvider) FetchIndexConstituents(_ context.Context, index string) (map[string]bool, error) {
	if index == "NIFTY50" {
		return p.nifty50, nil
	}
	return map[string]bool{}, nil
}

func (p *fakeProvider) FetchDailyBars(_ context.Context, symbol string, _ int) ([]domain.DailyBar, error) {
	return p.bars[symbol], nil
}

func (p *fakeProvider) FetchBenchmark(context.Context, int) ([]domain.DailyBar, error) {
	return p.nifty, nil
}

func (p *fakeProvider) FetchSectorIndex(context.Context, string, int) ([]domain.DailyBar, error) {
	return p.sector, nil
}

// rotate returns the pattern shifted left by n, tiling circularly.
func rotate(pattern []float64, n int) []float64 {
	out := make([]float64, len(pattern))
	for i := range pattern {
		out[i] = pattern[(i+n)%len(pattern)]
	}
	return out
}

// weeklyClosePath expands weekly returns into five trading days each, Monday
// through Friday, compounding evenly across the week. Opens sit at the prior
// close so the series carries no overnight gaps.
func weeklyClosePath(start float64, weeklyReturns []float64) []domain.DailyBar {
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	bars := make([]domain.DailyBar, 0, len(weeklyReturns)*5)
	for w, r := range weeklyReturns {
		factor := math.Pow(1+r, 0.2)
		for d := 0; d < 5; d++ {
			open := price
			price *= factor
			bars = append(bars, domain.DailyBar{
				Date:   monday.AddDate(0, 0, 7*w+d),
				Open:   open,
				High:   price * 1.004,
				Low:    price * 0.996,
				Close:  price,
				Volume: 1_000_000,
			})
		}
	}
	return bars
}

// candidateReturns builds a 52-week series: 39 base weeks followed by a
// stronger recent quarter, so the 13-week average comfortably leads the
// 52-week one. Rotating the sub-patterns by different offsets decorrelates
// symbols; sharing an offset makes two symbols near-perfectly correlated.
func candidateReturns(recentStrong float64, offset int) []float64 {
	base := rotate([]float64{0.032, 0.012, -0.014}, offset)
	recentShape := rotate([]float64{
		recentStrong, 0.018, -0.01, recentStrong, 0.018, -0.01, recentStrong,
		0.018, -0.01, recentStrong, 0.018, 0.018, -0.01,
	}, offset)

	out := make([]float64, 0, 52)
	for len(out) < 39 {
		out = append(out, base...)
	}
	out = out[:39]
	return append(out, recentShape...)
}

type pipelineFixture struct {
	runner   *Runner
	journal  *SQLiteJournal
	regimes  *regime.Repository
	folios   *portfolio.Repository
	recs     *recommendation.Repository
	provider *fakeProvider
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	log := zerolog.Nop()

	universeDB, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "universe.db"),
		Profile: database.ProfileStandard,
		Name:    "universe",
	})
	require.NoError(t, err)
	require.NoError(t, universeDB.Migrate())
	t.Cleanup(func() { universeDB.Close() })

	analysisDB, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "analysis.db"),
		Profile: database.ProfileLedger,
		Name:    "analysis",
	})
	require.NoError(t, err)
	require.NoError(t, analysisDB.Migrate())
	t.Cleanup(func() { analysisDB.Close() })

	symbols := []string{"ALPHA", "BETA", "GAMMA", "DELTA", "WEAK"}
	members := make(map[string]bool, len(symbols))
	instruments := make([]marketdata.Instrument, 0, len(symbols))
	for _, s := range symbols {
		members[s] = true
		instruments = append(instruments, marketdata.Instrument{
			Symbol: s, Name: s, ISIN: "INE" + s, LotSize: 1, TickSize: 0.05,
		})
	}

	provider := &fakeProvider{
		instruments: instruments,
		mtf:         members,
		nifty50:     members,
		bars: map[string][]domain.DailyBar{
			// ALPHA and DELTA share an offset: near-identical return paths.
			"ALPHA": weeklyClosePath(400, candidateReturns(0.040, 0)),
			"BETA":  weeklyClosePath(350, candidateReturns(0.035, 1)),
			"GAMMA": weeklyClosePath(300, candidateReturns(0.032, 2)),
			"DELTA": weeklyClosePath(450, candidateReturns(0.038, 0)),
			"WEAK": weeklyClosePath(600, func() []float64 {
				var down []float64
				for len(down) < 52 {
					down = append(down, -0.012, -0.004, 0.002)
				}
				return down[:52]
			}()),
		},
		nifty: weeklyClosePath(20000, func() []float64 {
			var mild []float64
			for len(mild) < 80 {
				mild = append(mild, 0.002, 0.001, -0.001)
			}
			return mild[:80]
		}()),
		sector: weeklyClosePath(40000, []float64{0.01, 0.005, 0.01, 0.005, 0.01, 0.005, 0.01, 0.005}),
	}

	stocks := universe.NewStockRepository(universeDB, log)
	journal := NewSQLiteJournal(analysisDB, log)
	runner := NewRunner(journal, log)

	fix := &pipelineFixture{
		runner:   runner,
		journal:  journal,
		regimes:  regime.NewRepository(analysisDB, log),
		folios:   portfolio.NewRepository(analysisDB, log),
		recs:     recommendation.NewRepository(analysisDB, log),
		provider: provider,
	}

	stages := NewStages(Deps{
		Provider: provider,
		Fetcher:  marketdata.NewBatchFetcher(provider, nil, 4),

		Universe: universe.NewBuilder(provider, stocks, log),
		Stocks:   stocks,

		Classifier: regime.NewClassifier(log),
		RegimeRepo: fix.regimes,

		Momentum:        momentum.NewScorer(log),
		MomentumRepo:    momentum.NewRepository(analysisDB, log),
		Consistency:     consistency.NewScorer(log),
		ConsistencyRepo: consistency.NewRepository(analysisDB, log),
		Liquidity:       liquidity.NewScorer(log),
		LiquidityRepo:   liquidity.NewRepository(analysisDB, log),
		Detector:        setups.NewDetector(log),
		SetupsRepo:      setups.NewRepository(analysisDB, log),
		RiskRepo:        risk.NewRepository(analysisDB, log),
		PortfolioRepo:   fix.folios,

		RecommendationRepo: fix.recs,
		ExecutionRepo:      execution.NewRepository(analysisDB, log),

		Log: log,
	}, StagesConfig{MaxPositions: 12})
	stages.RegisterAll(runner)

	return fix
}

func TestPipelineFullRunRiskOn(t *testing.T) {
	fix := newPipelineFixture(t)
	week := domain.Week("2026-08-24")
	riskOn := domain.RegimeRiskOn

	run, err := fix.runner.Run(context.Background(), &RunContext{
		Week:            week,
		PortfolioValue:  1_000_000,
		RiskPctPerTrade: 0.015,
		RegimeOverride:  &riskOn,
	})
	require.NoError(t, err)
	require.Equal(t, RunCompleted, run.Status)

	// Five tradable symbols enter; the downtrending one falls at momentum.
	assert.Equal(t, 5, run.StageCounts["s1_universe"])
	assert.Equal(t, 4, run.StageCounts["s2_momentum"])

	// Filtering only ever narrows the set from stage to stage.
	chain := []string{"s2_momentum", "s3_consistency", "s4a_liquidity", "s4b_setups", "s5_risk"}
	for i := 1; i < len(chain); i++ {
		assert.LessOrEqual(t, run.StageCounts[chain[i]], run.StageCounts[chain[i-1]],
			"%s must not emit more than %s", chain[i], chain[i-1])
	}
	assert.Equal(t, 4, run.StageCounts["s4b_setups"])

	alloc, err := fix.folios.GetByWeek(week)
	require.NoError(t, err)
	require.NotNil(t, alloc)

	// The correlated twin loses its slot; three decorrelated names remain.
	assert.Equal(t, 1, alloc.CorrelationFiltered)
	require.Len(t, alloc.Positions, 3)

	invested := 0.0
	for _, pos := range alloc.Positions {
		assert.Less(t, pos.Stop, pos.EntryLow, "%s stop under entry zone", pos.Symbol)
		assert.Less(t, pos.EntryLow, pos.EntryHigh, pos.Symbol)
		assert.Less(t, pos.EntryHigh, pos.Target1, pos.Symbol)
		assert.LessOrEqual(t, pos.Target1, pos.Target2, pos.Symbol)
		assert.GreaterOrEqual(t, pos.Shares, 1, pos.Symbol)
		invested += pos.PositionValue
	}
	assert.LessOrEqual(t, invested, 0.70*1_000_000, "cash reserve respected")

	// Every kept pair stays under the correlation cap.
	returns := make(map[string][]float64, len(alloc.Positions))
	for _, pos := range alloc.Positions {
		bars := fix.provider.bars[pos.Symbol]
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}
		all := formulas.CalculateReturns(closes)
		returns[pos.Symbol] = all[len(all)-60:]
	}
	for i, a := range alloc.Positions {
		for _, b := range alloc.Positions[i+1:] {
			corr := formulas.Correlation(returns[a.Symbol], returns[b.Symbol])
			assert.LessOrEqual(t, math.Abs(corr), 0.70, "%s vs %s", a.Symbol, b.Symbol)
		}
	}

	rec, err := fix.recs.GetByWeek(week)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RegimeRiskOn, rec.RegimeState)
	assert.Equal(t, 3, rec.TotalSetups)
	assert.Len(t, rec.Cards, 3)
	assert.Equal(t, 4, rec.StageCounts["s2_momentum"])

	runs, err := fix.journal.GetRecent(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunCompleted, runs[0].Status)
}

func TestPipelineFullRunRiskOff(t *testing.T) {
	fix := newPipelineFixture(t)
	week := domain.Week("2026-08-24")
	riskOff := domain.RegimeRiskOff

	run, err := fix.runner.Run(context.Background(), &RunContext{
		Week:            week,
		PortfolioValue:  1_000_000,
		RiskPctPerTrade: 0.015,
		RegimeOverride:  &riskOff,
	})
	require.NoError(t, err)
	require.Equal(t, RunCompleted, run.Status)

	// Scoring stages are skipped, not failed.
	for _, id := range []string{"s3_consistency", "s4a_liquidity", "s4b_setups", "s5_risk"} {
		assert.Equal(t, 0, run.StageCounts[id], id)
	}

	alloc, err := fix.folios.GetByWeek(week)
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, domain.RegimeRiskOff, alloc.RegimeState)
	assert.Empty(t, alloc.Positions)
	assert.NotEmpty(t, alloc.Reason)
	assert.Equal(t, 1.0, alloc.CashPct)

	rec, err := fix.recs.GetByWeek(week)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RegimeRiskOff, rec.RegimeState)
	assert.Equal(t, 0, rec.TotalSetups)
	assert.Empty(t, rec.Cards)
}
