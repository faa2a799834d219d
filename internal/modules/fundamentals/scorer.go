// Package fundamentals scores financial health on a monthly refresh cycle.
// The score is optional input to the recommendation conviction: symbols
// without provider coverage simply carry no fundamental component.
package fundamentals

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

// Composite weights over the five dimensions.
const (
	growthWeight        = 0.30
	profitabilityWeight = 0.25
	leverageWeight      = 0.20
	cashFlowWeight      = 0.15
	qualityWeight       = 0.10
)

// Normalization anchors. Growth and yield inputs are percentages.
const (
	epsGrowthFull     = 10.0 // EPS QoQ growth scoring saturates here
	revenueGrowthFull = 15.0
	roeFull           = 30.0
	fcfYieldFull      = 8.0

	roceHurdle          = 18.0
	roceHurdleFinancial = 12.0
	deLimit             = 0.8
	deLimitFinancial    = 4.0
)

// Data is the raw provider snapshot for one symbol. All growth and return
// figures are percentages; DebtEquity is a plain ratio.
type Data struct {
	Symbol           string
	Sector           string  // from the provider's company profile, "" when unavailable
	EPSGrowthPct     float64 // quarter over quarter
	RevenueGrowthPct float64 // year over year
	ROCE             float64
	ROE              float64
	DebtEquity       float64
	FCFYieldPct      float64
	CashEPS          float64
	ReportedEPS      float64
	IsFinancial      bool
}

// Scorer computes the fundamental composite.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a fundamentals scorer.
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "fundamentals").Logger()}
}

// Score grades one symbol 0..100 across growth, profitability, leverage,
// cash flow, and earnings quality. Qualifying needs three of the five
// pass/fail checks; the numeric score is independent of qualification.
func (s *Scorer) Score(d Data) domain.FundamentalScore {
	epsScore := formulas.Clamp(d.EPSGrowthPct/epsGrowthFull*100, 0, 100)
	revScore := formulas.Clamp(d.RevenueGrowthPct/revenueGrowthFull*100, 0, 100)
	growth := 0.6*epsScore + 0.4*revScore
	passGrowth := d.EPSGrowthPct >= 5 && d.RevenueGrowthPct >= 8

	roceHurdleFor := roceHurdle
	deLimitFor := deLimit
	if d.IsFinancial {
		roceHurdleFor = roceHurdleFinancial
		deLimitFor = deLimitFinancial
	}

	roceScore := formulas.Clamp(d.ROCE/(roceHurdleFor*1.5)*100, 0, 100)
	roeScore := formulas.Clamp(d.ROE/roeFull*100, 0, 100)
	profitability := 0.5*roceScore + 0.5*roeScore
	passProfitability := d.ROCE >= roceHurdleFor && d.ROE >= 20

	leverage := leverageScore(d.DebtEquity, deLimitFor)
	passLeverage := d.DebtEquity < deLimitFor

	var cashFlow float64
	if d.FCFYieldPct > 0 {
		cashFlow = formulas.Clamp(d.FCFYieldPct/fcfYieldFull*100, 0, 100)
	} else {
		cashFlow = formulas.Clamp(50+d.FCFYieldPct*10, 0, 100)
	}
	passCashFlow := d.FCFYieldPct >= 4

	quality := earningsQuality(d.CashEPS, d.ReportedEPS)
	passQuality := d.CashEPS > d.ReportedEPS

	composite := growthWeight*growth +
		profitabilityWeight*profitability +
		leverageWeight*leverage +
		cashFlowWeight*cashFlow +
		qualityWeight*quality

	passed := countTrue(passGrowth, passProfitability, passLeverage, passCashFlow, passQuality)

	return domain.FundamentalScore{
		Symbol:               d.Symbol,
		GrowthScore:          formulas.Round2(growth),
		ProfitabilityScore:   formulas.Round2(profitability),
		LeverageScore:        formulas.Round2(leverage),
		CashFlowScore:        formulas.Round2(cashFlow),
		EarningsQualityScore: formulas.Round2(quality),
		FundamentalScore:     formulas.Round2(composite),
		ROCE:                 formulas.Round2(d.ROCE),
		ROE:                  formulas.Round2(d.ROE),
		Qualifies:            passed >= 3,
		CalculatedAt:         time.Now().UTC(),
	}
}

// leverageScore rewards low debt: zero debt is a full score, the score
// decays linearly to zero at the limit, then halves again beyond it.
func leverageScore(debtEquity, limit float64) float64 {
	switch {
	case debtEquity <= 0:
		return 100
	case debtEquity < limit:
		return 100 - debtEquity/limit*100
	default:
		return formulas.Clamp(50-(debtEquity-limit)/limit*50, 0, 100)
	}
}

// earningsQuality compares cash EPS against reported EPS: cash conversion at
// or above reported earnings scores full.
func earningsQuality(cashEPS, reportedEPS float64) float64 {
	if reportedEPS <= 0 {
		return 50
	}
	if cashEPS >= reportedEPS {
		return 100
	}
	return formulas.Clamp(cashEPS/reportedEPS*100, 0, 100)
}

func countTrue(conditions ...bool) int {
	n := 0
	for _, c := range conditions {
		if c {
			n++
		}
	}
	return n
}
