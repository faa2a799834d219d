package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/internal/marketdata"
	"github.com/aristath/lookout/internal/modules/consistency"
	"github.com/aristath/lookout/internal/modules/execution"
	"github.com/aristath/lookout/internal/modules/fundamentals"
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

// historyDays is the daily-bar window fetched per symbol: enough for the
// 200-day averages plus the 52-week levels.
const historyDays = 400

// correlationWindow is the trailing daily-return window used by the
// portfolio correlation filter.
const correlationWindow = 60

// Sector indices feeding the regime leadership sub-score.
var (
	cyclicalIndices  = []string{"NIFTY_BANK", "NIFTY_AUTO", "NIFTY_METAL", "NIFTY_REALTY"}
	defensiveIndices = []string{"NIFTY_FMCG", "NIFTY_PHARMA", "NIFTY_IT"}
)

// Deps carries every component the weekly stages compose.
type Deps struct {
	Provider marketdata.Provider
	Fetcher  *marketdata.BatchFetcher

	Universe *universe.Builder
	Stocks   *universe.StockRepository

	Classifier *regime.Classifier
	RegimeRepo *regime.Repository

	Momentum        *momentum.Scorer
	MomentumRepo    *momentum.Repository
	Consistency     *consistency.Scorer
	ConsistencyRepo *consistency.Repository
	Liquidity       *liquidity.Scorer
	LiquidityRepo   *liquidity.Repository
	Detector        *setups.Detector
	SetupsRepo      *setups.Repository
	RiskRepo        *risk.Repository
	PortfolioRepo   *portfolio.Repository

	RecommendationRepo *recommendation.Repository
	FundamentalsRepo   *fundamentals.Repository // optional
	ExecutionRepo      *execution.Repository

	Log zerolog.Logger
}

// StagesConfig carries the run-independent knobs.
type StagesConfig struct {
	QualityFloor float64 // minimum S1 quality score admitted to S2
	MaxPositions int
}

// Stages owns the weekly DAG and the in-memory hand-off between stages.
// The runner executes one run at a time, so the scratch state is safe.
type Stages struct {
	deps Deps
	cfg  StagesConfig
	log  zerolog.Logger

	// per-run scratch, reset by s2
	nifty      []domain.DailyBar
	niftyATR   float64
	bars       map[string][]domain.DailyBar
	indicators map[string]*domain.IndicatorSet
	stocks     map[string]domain.Stock
	breadth    regime.BreadthSample

	momScores  map[string]domain.MomentumScore
	consScores map[string]domain.ConsistencyScore
	liqScores  map[string]domain.LiquidityScore
	setupsBy   map[string]domain.TradeSetup
	sizesBy    map[string]domain.PositionSize
	alloc      *domain.PortfolioAllocation
}

// NewStages creates the stage set.
func NewStages(deps Deps, cfg StagesConfig) *Stages {
	if cfg.QualityFloor <= 0 {
		cfg.QualityFloor = 60
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 12
	}
	return &Stages{deps: deps, cfg: cfg, log: deps.Log.With().Str("component", "stages").Logger()}
}

// RegisterAll wires the weekly DAG onto the runner in execution order.
func (s *Stages) RegisterAll(r *Runner) {
	r.Register(&Stage{ID: "s1_universe", Timeout: IOTimeout, Run: s.runUniverse})
	r.Register(&Stage{ID: "s2_momentum", DependsOn: []string{"s1_universe"},
		Timeout: IOTimeout, Run: s.runMomentum})
	r.Register(&Stage{ID: "regime", DependsOn: []string{"s2_momentum"},
		Timeout: IOTimeout, Run: s.runRegime})
	r.Register(&Stage{ID: "s3_consistency", DependsOn: []string{"regime"},
		SkipOnRiskOff: true, Run: s.runConsistency})
	r.Register(&Stage{ID: "s4a_liquidity", DependsOn: []string{"s3_consistency"},
		SkipOnRiskOff: true, Run: s.runLiquidity})
	r.Register(&Stage{ID: "s4b_setups", DependsOn: []string{"s4a_liquidity"},
		SkipOnRiskOff: true, Run: s.runSetups})
	r.Register(&Stage{ID: "s5_risk", DependsOn: []string{"s4b_setups"},
		SkipOnRiskOff: true, Run: s.runRisk})
	r.Register(&Stage{ID: "s6_portfolio", DependsOn: []string{"s5_risk"}, Run: s.runPortfolio})
	r.Register(&Stage{ID: "s8_recommendation", DependsOn: []string{"s6_portfolio"},
		Run: s.runRecommendation})
}

func (s *Stages) runUniverse(ctx context.Context, _ *RunContext) (int, error) {
	summary, err := s.deps.Universe.Build(ctx)
	if err != nil {
		return 0, err
	}
	return summary.Tradable, nil
}

func (s *Stages) runMomentum(ctx context.Context, rc *RunContext) (int, error) {
	members, err := s.deps.Stocks.GetHighQuality(s.cfg.QualityFloor)
	if err != nil {
		return 0, err
	}

	nifty, err := s.deps.Provider.FetchBenchmark(ctx, historyDays)
	if err != nil {
		return 0, fmt.Errorf("benchmark fetch failed: %w", err)
	}
	niftyInd, err := marketdata.ComputeIndicators(nifty)
	if err != nil {
		return 0, fmt.Errorf("benchmark indicators failed: %w", err)
	}

	symbols := make([]string, len(members))
	stockBySymbol := make(map[string]domain.Stock, len(members))
	for i, st := range members {
		symbols[i] = st.Symbol
		stockBySymbol[st.Symbol] = st
	}

	bars, err := s.deps.Fetcher.FetchBatch(ctx, symbols, historyDays, correlationWindow)
	if err != nil {
		return 0, err
	}

	// Fresh scratch: everything downstream hangs off this stage's data.
	s.nifty = nifty
	s.niftyATR = niftyInd.ATR14
	s.bars = bars
	s.stocks = stockBySymbol
	s.indicators = make(map[string]*domain.IndicatorSet, len(bars))
	s.breadth = regime.BreadthSample{}
	s.momScores = make(map[string]domain.MomentumScore)
	s.consScores = nil
	s.liqScores = nil
	s.setupsBy = nil
	s.sizesBy = nil
	s.alloc = nil

	var scores []domain.MomentumScore
	qualifying := 0
	for symbol, symbolBars := range bars {
		ind, err := marketdata.ComputeIndicators(symbolBars)
		if err != nil {
			s.log.Debug().Str("symbol", symbol).Err(err).Msg("Indicators skipped")
			continue
		}
		s.indicators[symbol] = ind

		last := symbolBars[len(symbolBars)-1].Close
		s.breadth.Total++
		if ind.SMA200 > 0 && last > ind.SMA200 {
			s.breadth.Above200++
		}
		if ind.SMA50 > 0 && last > ind.SMA50 {
			s.breadth.Above50++
		}

		score := s.deps.Momentum.Score(symbol, rc.Week, symbolBars, ind, nifty)
		if score == nil {
			continue
		}
		scores = append(scores, *score)
		if score.Qualifies {
			s.momScores[symbol] = *score
			qualifying++
		}
	}

	if err := s.deps.MomentumRepo.SaveBatch(scores); err != nil {
		return 0, err
	}
	return qualifying, nil
}

func (s *Stages) runRegime(ctx context.Context, rc *RunContext) (int, error) {
	input := regime.Input{
		Week:            rc.Week,
		NiftyBars:       s.nifty,
		Breadth:         s.breadth,
		CyclicalReturns: s.sectorReturns(ctx, cyclicalIndices),
		DefensiveReturn: s.sectorReturns(ctx, defensiveIndices),
	}

	assessment, err := s.deps.Classifier.Classify(input)
	if err != nil {
		return 0, err
	}

	if rc.RegimeOverride != nil {
		assessment.State = *rc.RegimeOverride
		assessment.Multiplier = multiplierFor(assessment.State)
		s.log.Warn().Str("state", string(assessment.State)).Msg("Regime overridden for this run")
	}

	if err := s.deps.RegimeRepo.Save(assessment); err != nil {
		return 0, err
	}
	rc.Regime = assessment
	return 1, nil
}

// sectorReturns fetches each index and reduces it to a trailing 20-day
// return. Indices that fail to fetch are omitted; leadership degrades to
// neutral rather than failing the run.
func (s *Stages) sectorReturns(ctx context.Context, indices []string) []float64 {
	var out []float64
	for _, index := range indices {
		bars, err := s.deps.Provider.FetchSectorIndex(ctx, index, 40)
		if err != nil {
			s.log.Warn().Str("index", index).Err(err).Msg("Sector index fetch failed")
			continue
		}
		if len(bars) < 21 {
			continue
		}
		prev := bars[len(bars)-21].Close
		if prev <= 0 {
			continue
		}
		out = append(out, bars[len(bars)-1].Close/prev-1)
	}
	return out
}

func (s *Stages) runConsistency(_ context.Context, rc *RunContext) (int, error) {
	th := s.thresholds(rc)

	weekly := make(map[string][]domain.WeeklyBar, len(s.momScores))
	for symbol := range s.momScores {
		weekly[symbol] = marketdata.ResampleWeekly(s.bars[symbol])
	}

	scores := s.deps.Consistency.ScoreUniverse(rc.Week, weekly, th)
	if err := s.deps.ConsistencyRepo.SaveBatch(scores); err != nil {
		return 0, err
	}

	s.consScores = make(map[string]domain.ConsistencyScore)
	for _, sc := range scores {
		if sc.Qualifies {
			s.consScores[sc.Symbol] = sc
		}
	}
	return len(s.consScores), nil
}

func (s *Stages) runLiquidity(_ context.Context, rc *RunContext) (int, error) {
	var scores []domain.LiquidityScore
	s.liqScores = make(map[string]domain.LiquidityScore)

	for symbol := range s.consScores {
		score := s.deps.Liquidity.Score(symbol, rc.Week, s.bars[symbol])
		if score == nil {
			continue
		}
		scores = append(scores, *score)
		if score.Qualifies {
			s.liqScores[symbol] = *score
		}
	}

	if err := s.deps.LiquidityRepo.SaveBatch(scores); err != nil {
		return 0, err
	}
	return len(s.liqScores), nil
}

func (s *Stages) runSetups(_ context.Context, rc *RunContext) (int, error) {
	th := s.thresholds(rc)
	s.setupsBy = make(map[string]domain.TradeSetup)

	var all []domain.TradeSetup
	for symbol, liq := range s.liqScores {
		ind := s.indicators[symbol]
		if ind == nil {
			continue
		}
		setup := s.deps.Detector.Detect(symbol, rc.Week, s.bars[symbol], ind, th)
		if setup == nil {
			continue
		}

		mom := s.momScores[symbol]
		cons := s.consScores[symbol]
		setup.QualityComposite = setups.QualityComposite(
			mom.Score, cons.FinalScore, liq.Score, setup.Confidence)

		all = append(all, *setup)
		s.setupsBy[symbol] = *setup
	}

	if err := s.deps.SetupsRepo.SaveBatch(all); err != nil {
		return 0, err
	}
	return len(all), nil
}

func (s *Stages) runRisk(_ context.Context, rc *RunContext) (int, error) {
	outcomes, err := s.deps.ExecutionRepo.GetOutcomesSince(time.Now().UTC().AddDate(0, 0, -52*7))
	if err != nil {
		return 0, err
	}
	stats := risk.StatsFromOutcomes(outcomes)

	sizer := risk.NewSizer(risk.Config{
		PortfolioValue:  rc.PortfolioValue,
		RiskPctPerTrade: rc.RiskPctPerTrade,
	}, s.log)

	s.sizesBy = make(map[string]domain.PositionSize)
	var all []domain.PositionSize
	for symbol, setup := range s.setupsBy {
		size := sizer.Size(setup, setup.ATR14, s.niftyATR, stats, rc.Regime)
		all = append(all, size)
		if size.Qualifies {
			s.sizesBy[symbol] = size
		}
	}

	if err := s.deps.RiskRepo.SaveBatch(all); err != nil {
		return 0, err
	}
	return len(s.sizesBy), nil
}

func (s *Stages) runPortfolio(_ context.Context, rc *RunContext) (int, error) {
	th := s.thresholds(rc)

	var candidates []portfolio.Candidate
	for symbol, size := range s.sizesBy {
		setup := s.setupsBy[symbol]
		candidates = append(candidates, portfolio.Candidate{
			Setup:   setup,
			Size:    size,
			Sector:  s.stocks[symbol].Sector,
			Returns: trailingReturns(s.bars[symbol], correlationWindow),
		})
	}

	constructor := portfolio.NewConstructor(portfolio.Config{
		PortfolioValue: rc.PortfolioValue,
		MaxPositions:   s.cfg.MaxPositions,
	}, s.log)

	alloc := constructor.Build(rc.Week, rc.Regime, th, candidates)
	if err := s.deps.PortfolioRepo.Save(&alloc); err != nil {
		return 0, err
	}
	s.alloc = &alloc
	return len(alloc.Positions), nil
}

func (s *Stages) runRecommendation(_ context.Context, rc *RunContext) (int, error) {
	var inputs []recommendation.CardInputs
	if s.alloc != nil {
		for _, pos := range s.alloc.Positions {
			in := recommendation.CardInputs{
				Position: pos,
				Stock:    s.stocks[pos.Symbol],
				Setup:    s.setupsBy[pos.Symbol],
				Size:     s.sizesBy[pos.Symbol],
			}
			if m, ok := s.momScores[pos.Symbol]; ok {
				in.Momentum = &m
			}
			if c, ok := s.consScores[pos.Symbol]; ok {
				in.Consistency = &c
			}
			if l, ok := s.liqScores[pos.Symbol]; ok {
				in.Liquidity = &l
			}
			if s.deps.FundamentalsRepo != nil {
				if f, err := s.deps.FundamentalsRepo.GetBySymbol(pos.Symbol); err == nil && f != nil {
					in.Fundamental = f
				}
			}
			inputs = append(inputs, in)
		}
	}

	assembler := recommendation.NewAssembler(rc.PortfolioValue, s.log)
	rec := assembler.Assemble(rc.Week, rc.Regime, s.alloc, inputs, rc.Counts)
	if err := s.deps.RecommendationRepo.Save(&rec); err != nil {
		return 0, err
	}
	return rec.TotalSetups, nil
}

func (s *Stages) thresholds(rc *RunContext) domain.Thresholds {
	return domain.ThresholdsFor(rc.Regime.State, s.cfg.MaxPositions)
}

func multiplierFor(state domain.RegimeState) float64 {
	switch state {
	case domain.RegimeRiskOn:
		return 1.0
	case domain.RegimeChoppy:
		return 0.5
	default:
		return 0
	}
}

// trailingReturns reduces a bar series to its last n daily returns.
func trailingReturns(bars []domain.DailyBar, n int) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	returns := formulas.CalculateReturns(closes)
	if len(returns) > n {
		returns = returns[len(returns)-n:]
	}
	return returns
}
