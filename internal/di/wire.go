package di

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/config"
	"github.com/aristath/lookout/internal/database"
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
	"github.com/aristath/lookout/internal/pipeline"
	"github.com/aristath/lookout/internal/regime"
)

// candleTTL is how long cached candle series stay fresh. Daily bars only
// change at the close, so a day is enough.
const candleTTL = 24 * time.Hour

// Container holds every wired component.
type Container struct {
	UniverseDB *database.DB
	AnalysisDB *database.DB
	CacheDB    *database.DB

	Provider marketdata.Provider
	Fetcher  *marketdata.BatchFetcher

	UniverseBuilder *universe.Builder
	StockRepo       *universe.StockRepository

	Classifier *regime.Classifier
	RegimeRepo *regime.Repository

	MomentumRepo    *momentum.Repository
	ConsistencyRepo *consistency.Repository
	LiquidityRepo   *liquidity.Repository
	SetupsRepo      *setups.Repository
	RiskRepo        *risk.Repository
	PortfolioRepo   *portfolio.Repository

	RecommendationRepo *recommendation.Repository
	FundamentalsRepo   *fundamentals.Repository
	FundamentalsScorer *fundamentals.Scorer
	Fundamentals       fundamentals.Provider // nil without an API key

	Engine        *execution.Engine
	ExecutionRepo *execution.Repository

	Journal *pipeline.SQLiteJournal
	Runner  *pipeline.Runner
}

// Wire initializes databases and builds the full dependency graph.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, err
	}

	provider := marketdata.NewHTTPProvider(marketdata.Config{
		InstrumentsURL: cfg.InstrumentsURL,
		MTFURL:         cfg.MTFURL,
		QuotesBaseURL:  cfg.QuotesBaseURL,
		FetchDelay:     time.Duration(cfg.FetchDelayMS) * time.Millisecond,
		Log:            log,
	})
	cache := marketdata.NewCandleCache(c.CacheDB, candleTTL, log)
	c.Provider = provider
	c.Fetcher = marketdata.NewBatchFetcher(provider, cache, cfg.FetchConcurrency)

	c.StockRepo = universe.NewStockRepository(c.UniverseDB, log)
	c.UniverseBuilder = universe.NewBuilder(provider, c.StockRepo, log)

	c.Classifier = regime.NewClassifier(log)
	c.RegimeRepo = regime.NewRepository(c.AnalysisDB, log)

	c.MomentumRepo = momentum.NewRepository(c.AnalysisDB, log)
	c.ConsistencyRepo = consistency.NewRepository(c.AnalysisDB, log)
	c.LiquidityRepo = liquidity.NewRepository(c.AnalysisDB, log)
	c.SetupsRepo = setups.NewRepository(c.AnalysisDB, log)
	c.RiskRepo = risk.NewRepository(c.AnalysisDB, log)
	c.PortfolioRepo = portfolio.NewRepository(c.AnalysisDB, log)

	c.RecommendationRepo = recommendation.NewRepository(c.AnalysisDB, log)
	c.FundamentalsRepo = fundamentals.NewRepository(c.AnalysisDB, log)
	c.FundamentalsScorer = fundamentals.NewScorer(log)
	if cfg.FMPAPIKey != "" {
		c.Fundamentals = fundamentals.NewFMPProvider(fundamentals.FMPConfig{
			APIKey: cfg.FMPAPIKey,
			Log:    log,
		})
	}

	c.Engine = execution.NewEngine(log)
	c.ExecutionRepo = execution.NewRepository(c.AnalysisDB, log)

	c.Journal = pipeline.NewSQLiteJournal(c.AnalysisDB, log)
	c.Runner = pipeline.NewRunner(c.Journal, log)

	stages := pipeline.NewStages(pipeline.Deps{
		Provider: provider,
		Fetcher:  c.Fetcher,

		Universe: c.UniverseBuilder,
		Stocks:   c.StockRepo,

		Classifier: c.Classifier,
		RegimeRepo: c.RegimeRepo,

		Momentum:        momentum.NewScorer(log),
		MomentumRepo:    c.MomentumRepo,
		Consistency:     consistency.NewScorer(log),
		ConsistencyRepo: c.ConsistencyRepo,
		Liquidity:       liquidity.NewScorer(log),
		LiquidityRepo:   c.LiquidityRepo,
		Detector:        setups.NewDetector(log),
		SetupsRepo:      c.SetupsRepo,
		RiskRepo:        c.RiskRepo,
		PortfolioRepo:   c.PortfolioRepo,

		RecommendationRepo: c.RecommendationRepo,
		FundamentalsRepo:   c.FundamentalsRepo,
		ExecutionRepo:      c.ExecutionRepo,

		Log: log,
	}, pipeline.StagesConfig{
		MaxPositions: cfg.MaxPositions,
	})
	stages.RegisterAll(c.Runner)

	return c, nil
}

// Close releases the database connections.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.UniverseDB, c.AnalysisDB, c.CacheDB} {
		if db != nil {
			db.Close()
		}
	}
}
