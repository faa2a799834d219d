// Package domain holds the shared types that flow between pipeline stages.
package domain

import (
	"time"
)

// Week identifies a trading week by its ISO week start (Monday), formatted
// as YYYY-MM-DD. All stage records for one run share the same Week key.
type Week string

// WeekOf returns the Week containing t (Monday 00:00 of that ISO week).
func WeekOf(t time.Time) Week {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started the previous Monday
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	return Week(monday.Format("2006-01-02"))
}

// Time returns the Monday 00:00 instant of the week.
func (w Week) Time() time.Time {
	t, _ := time.Parse("2006-01-02", string(w))
	return t
}

// DailyBar is one day of OHLCV data for a symbol.
type DailyBar struct {
	Date   time.Time `msgpack:"d"`
	Open   float64   `msgpack:"o"`
	High   float64   `msgpack:"h"`
	Low    float64   `msgpack:"l"`
	Close  float64   `msgpack:"c"`
	Volume float64   `msgpack:"v"`
}

// Turnover returns the day's traded value in INR.
func (b DailyBar) Turnover() float64 {
	return b.Close * b.Volume
}

// WeeklyBar is a Monday-to-Friday resample of daily bars.
type WeeklyBar struct {
	Week   Week
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// IndicatorSet holds locally computed technical indicators for a symbol
// as of the most recent bar.
type IndicatorSet struct {
	SMA20    float64
	SMA50    float64
	SMA200   float64
	ATR14    float64
	RSI14    float64
	MACDHist []float64 // full histogram series, most recent last
	Vol20    float64   // mean volume over 20 bars
	Slope20  float64   // per-day fractional slope of SMA20 over a 20-bar window
	Slope50  float64
	Slope200 float64
	High52   float64
	Low52    float64
}

// Stock is a universe member with its quality tier.
type Stock struct {
	Symbol                 string
	Name                   string
	ISIN                   string
	Sector                 string
	LotSize                int
	TickSize               float64
	IsMTF                  bool
	InNifty50              bool
	InNifty100             bool
	InNifty200             bool
	InNifty500             bool
	QualityScore           float64
	Tier                   string // A, B, C, D
	FundamentallyQualified bool
	Active                 bool
}

// RegimeState classifies the market environment for the week.
type RegimeState string

const (
	RegimeRiskOn  RegimeState = "RISK_ON"
	RegimeChoppy  RegimeState = "CHOPPY"
	RegimeRiskOff RegimeState = "RISK_OFF"
)

// RegimeAssessment is the classifier output that gates the whole pipeline.
type RegimeAssessment struct {
	Week            Week
	State           RegimeState
	Confidence      float64 // 0..1
	TrendScore      float64 // each sub-score 0..100
	BreadthScore    float64
	VolatilityScore float64
	LeadershipScore float64
	Composite       float64
	Multiplier      float64 // {0, 0.5, 0.7, 1.0}
	CalculatedAt    time.Time
}

// Thresholds carries the regime-adaptive knobs injected into scoring stages.
// Produced once per run by the regime classifier; no global mutable state.
type Thresholds struct {
	PosPctMin      float64
	Plus3PctLow    float64
	Plus3PctHigh   float64
	StdDevMax      float64
	SharpeMin      float64
	RRFloor        float64
	AllowedSetups  []SetupType
	CashReservePct float64
	MaxPositions   int
}

// ThresholdsFor returns the threshold set for a regime state.
func ThresholdsFor(state RegimeState, maxPositions int) Thresholds {
	switch state {
	case RegimeRiskOn:
		return Thresholds{
			PosPctMin: 0.60, Plus3PctLow: 0.22, Plus3PctHigh: 0.40,
			StdDevMax: 0.065, SharpeMin: 0.12,
			RRFloor:        2.0,
			AllowedSetups:  []SetupType{SetupPullback, SetupVCPBreakout, SetupRetest, SetupGapFill},
			CashReservePct: 0.30,
			MaxPositions:   min(10, maxPositions),
		}
	case RegimeChoppy:
		return Thresholds{
			PosPctMin: 0.65, Plus3PctLow: 0.25, Plus3PctHigh: 0.35,
			StdDevMax: 0.060, SharpeMin: 0.15,
			RRFloor:        2.5,
			AllowedSetups:  []SetupType{SetupPullback},
			CashReservePct: 0.35,
			MaxPositions:   min(5, maxPositions),
		}
	default: // RISK_OFF
		return Thresholds{
			PosPctMin: 0.70, Plus3PctLow: 0.20, Plus3PctHigh: 0.30,
			StdDevMax: 0.045, SharpeMin: 0.18,
			RRFloor:        3.0,
			AllowedSetups:  nil,
			CashReservePct: 1.0,
			MaxPositions:   0,
		}
	}
}

// SetupAllowed reports whether the setup type may be traded in this regime.
func (t Thresholds) SetupAllowed(s SetupType) bool {
	for _, allowed := range t.AllowedSetups {
		if allowed == s {
			return true
		}
	}
	return false
}

// MomentumScore is the S2 output for one symbol.
type MomentumScore struct {
	Symbol               string
	Week                 Week
	Score                float64 // 0..100 composite
	FiltersPassed        int
	PassProximity        bool
	PassMAAlignment      bool
	PassRelativeStrength bool
	PassComposite        bool
	PassVolatility       bool
	Proximity52W         float64
	MAAlignScore         int // 0..5
	RS1M                 float64
	RS3M                 float64
	RS6M                 float64
	VolRatio             float64
	Qualifies            bool
	CalculatedAt         time.Time
}

// ConsistencyScore is the S3 output for one symbol.
type ConsistencyScore struct {
	Symbol           string
	Week             Week
	PosPct           float64
	Plus3Pct         float64
	Plus5Pct         float64
	StdDev           float64
	AvgWeeklyReturn  float64
	Sharpe           float64
	Sortino          float64
	MaxWinStreak     int
	ConsistencyScore float64 // 0..100
	RegimeScore      float64 // avg13w / avg52w, clipped [0, 3]
	PercentileRank   float64
	FinalScore       float64
	FiltersPassed    int // 0..6
	Significant      bool
	PValue           float64
	Qualifies        bool
	CalculatedAt     time.Time
}

// LiquidityScore is the S4A output for one symbol.
type LiquidityScore struct {
	Symbol          string
	Week            Week
	Turnover20DCr   float64
	Turnover60DCr   float64
	Peak30DCr       float64
	VolumeStability float64 // 0..1
	CircuitHits30D  int
	AvgGapPct       float64
	Score           float64 // 0..100
	Qualifies       bool
	CalculatedAt    time.Time
}

// SetupType enumerates the four recognized chart patterns.
type SetupType string

const (
	SetupPullback    SetupType = "PULLBACK"
	SetupVCPBreakout SetupType = "VCP_BREAKOUT"
	SetupRetest      SetupType = "RETEST"
	SetupGapFill     SetupType = "GAP_FILL"
)

// StopMethod records which of the two stop candidates was tighter.
type StopMethod string

const (
	StopStructure  StopMethod = "structure"
	StopVolatility StopMethod = "volatility"
)

// TradeSetup is the S4B output: a fully specified trade geometry.
type TradeSetup struct {
	Symbol           string
	Week             Week
	SetupType        SetupType
	EntryLow         float64
	EntryHigh        float64
	Stop             float64
	StopMethod       StopMethod
	StopDistancePct  float64
	Target1          float64
	Target2          float64
	RR               float64
	Confidence       float64 // 0..100, pattern-specific
	QualityComposite float64
	CurrentPrice     float64
	High52W          float64
	Low52W           float64
	SMA20            float64
	SMA50            float64
	SMA200           float64
	ATR14            float64
	CalculatedAt     time.Time
}

// MidEntry returns the midpoint of the entry band.
func (s TradeSetup) MidEntry() float64 {
	return (s.EntryLow + s.EntryHigh) / 2
}

// PositionSize is the S5 output for one setup.
type PositionSize struct {
	Symbol           string
	Week             Week
	StopMethod       StopMethod
	RiskPerShare     float64
	BaseShares       int
	VolAdjustment    float64
	KellyFraction    float64
	RegimeMultiplier float64
	FinalShares      int
	PositionValue    float64
	RiskAmount       float64
	PositionPct      float64
	Qualifies        bool
	CalculatedAt     time.Time
}

// PortfolioPosition is one selected position inside a PortfolioAllocation.
type PortfolioPosition struct {
	Rank             int       `json:"rank"`
	Symbol           string    `json:"symbol"`
	Sector           string    `json:"sector"`
	SetupType        SetupType `json:"setup_type"`
	EntryLow         float64   `json:"entry_low"`
	EntryHigh        float64   `json:"entry_high"`
	Stop             float64   `json:"stop"`
	Target1          float64   `json:"target_1"`
	Target2          float64   `json:"target_2"`
	RR               float64   `json:"rr"`
	Shares           int       `json:"shares"`
	PositionValue    float64   `json:"position_value"`
	RiskAmount       float64   `json:"risk_amount"`
	PositionPct      float64   `json:"position_pct"`
	QualityComposite float64   `json:"quality_composite"`
}

// AllocationStatus tracks the approval lifecycle of a weekly allocation.
type AllocationStatus string

const (
	AllocationDraft    AllocationStatus = "draft"
	AllocationApproved AllocationStatus = "approved"
	AllocationExecuted AllocationStatus = "executed"
)

// PortfolioAllocation is the S6 output for the week.
type PortfolioAllocation struct {
	Week                Week
	RegimeState         RegimeState
	Positions           []PortfolioPosition
	SectorAllocation    map[string]float64 // sector -> % of portfolio
	AllocatedPct        float64
	CashPct             float64
	TotalRiskPct        float64
	CorrelationFiltered int
	SectorFiltered      int
	Status              AllocationStatus
	Reason              string
	CalculatedAt        time.Time
}

// GapDecision enumerates the Monday-open execution outcomes.
type GapDecision string

const (
	GapSkipThroughStop   GapDecision = "SKIP_GAPPED_THROUGH_STOP"
	GapSkipDoNotChase    GapDecision = "SKIP_DO_NOT_CHASE"
	GapEnterAtOpen       GapDecision = "ENTER_AT_OPEN"
	GapEnterSmallAgainst GapDecision = "ENTER_AT_OPEN_SMALL_GAP_AGAINST"
	GapWaitAndWatch      GapDecision = "WAIT_AND_WATCH"
)

// PositionStatus tracks an opened (or skipped) weekly position.
type PositionStatus string

const (
	PositionPending PositionStatus = "pending"
	PositionOpen    PositionStatus = "open"
	PositionSkipped PositionStatus = "skipped"
	PositionClosed  PositionStatus = "closed"
)

// Position is S7 tracking state for one recommendation across the week.
type Position struct {
	Symbol       string
	Week         Week
	Status       PositionStatus
	GapDecision  GapDecision
	EntryPrice   float64
	Stop         float64
	Target1      float64
	Target2      float64
	Shares       int
	CurrentPrice float64
	UnrealizedR  float64
	UpdatedAt    time.Time
}

// TradeOutcome is a closed trade used for the rolling Kelly statistics.
type TradeOutcome struct {
	ID         string
	Symbol     string
	Week       Week
	EntryPrice float64
	ExitPrice  float64
	Shares     int
	RealizedR  float64
	Win        bool
	ClosedAt   time.Time
}

// SystemStats is the rolling 52-week performance snapshot consumed by the
// Kelly fraction. Read-only during a run; updated only as trades close.
type SystemStats struct {
	WinRate    float64
	AvgWinR    float64
	AvgLossR   float64
	SampleSize int
}

// DefaultSystemStats is the prior used with insufficient trade history.
func DefaultSystemStats() SystemStats {
	return SystemStats{WinRate: 0.50, AvgWinR: 1.2, AvgLossR: 1.1, SampleSize: 0}
}

// FundamentalScore is the optional monthly-refresh fundamental assessment.
type FundamentalScore struct {
	Symbol               string
	GrowthScore          float64
	ProfitabilityScore   float64
	LeverageScore        float64
	CashFlowScore        float64
	EarningsQualityScore float64
	FundamentalScore     float64 // 0..100 weighted composite
	ROCE                 float64
	ROE                  float64
	Qualifies            bool
	CalculatedAt         time.Time
}

// WeeklySummary is the Friday review output.
type WeeklySummary struct {
	Week              Week
	RealizedPnL       float64
	UnrealizedPnL     float64
	WeeklyRSum        float64
	WinRate           float64
	HealthScore       float64
	RecommendedAction string // CONTINUE, REDUCE, PAUSE, STOP
	CalculatedAt      time.Time
}

// RecommendationStatus is the approval lifecycle of a weekly recommendation.
type RecommendationStatus string

const (
	RecommendationDraft    RecommendationStatus = "draft"
	RecommendationApproved RecommendationStatus = "approved"
	RecommendationExpired  RecommendationStatus = "expired"
)

// RecommendationCard is one actionable trade in the weekly recommendation.
// Cards are stored as a JSON document inside the week's recommendation row.
type RecommendationCard struct {
	Symbol          string    `json:"symbol"`
	CompanyName     string    `json:"company_name"`
	Sector          string    `json:"sector"`
	SetupType       SetupType `json:"setup_type"`
	Conviction      float64   `json:"conviction"` // 0..10
	ConvictionLabel string    `json:"conviction_label"`

	MomentumScore    float64  `json:"momentum_score"`
	ConsistencyScore float64  `json:"consistency_score"`
	LiquidityScore   float64  `json:"liquidity_score"`
	FundamentalScore *float64 `json:"fundamental_score,omitempty"`
	SetupConfidence  float64  `json:"setup_confidence"`

	CurrentPrice   float64 `json:"current_price"`
	High52W        float64 `json:"high_52w"`
	Low52W         float64 `json:"low_52w"`
	From52WHighPct float64 `json:"from_52w_high_pct"`
	DMA20          float64 `json:"dma_20"`
	DMA50          float64 `json:"dma_50"`
	DMA200         float64 `json:"dma_200"`

	EntryLow        float64    `json:"entry_low"`
	EntryHigh       float64    `json:"entry_high"`
	Stop            float64    `json:"stop"`
	StopMethod      StopMethod `json:"stop_method"`
	StopDistancePct float64    `json:"stop_distance_pct"`
	Target1         float64    `json:"target_1"`
	Target2         float64    `json:"target_2"`
	RR1             float64    `json:"rr_1"`
	RR2             float64    `json:"rr_2"`

	Shares           int     `json:"shares"`
	InvestmentAmount float64 `json:"investment_amount"`
	RiskAmount       float64 `json:"risk_amount"`
	PositionPct      float64 `json:"position_pct"`

	ActionSteps    []string `json:"action_steps"`
	GapContingency string   `json:"gap_contingency"`
	Invalidation   []string `json:"invalidation"`
	TextCard       string   `json:"text_card"`
}

// Recommendation is the S8 weekly output: the approved-trades document.
type Recommendation struct {
	ID                 string
	Week               Week
	RegimeState        RegimeState
	RegimeConfidence   float64
	PositionMultiplier float64
	TotalSetups        int
	AllocatedCapital   float64
	AllocatedPct       float64
	TotalRiskPct       float64
	Cards              []RecommendationCard
	StageCounts        map[string]int
	Status             RecommendationStatus
	CreatedAt          time.Time
	ApprovedAt         *time.Time
	ExpiredAt          *time.Time
}
