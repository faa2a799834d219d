package fundamentals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Provider fetches the raw fundamental snapshot for one symbol. Returns
// (nil, nil) when the provider has no coverage for the symbol.
type Provider interface {
	Fetch(ctx context.Context, symbol string) (*Data, error)
}

// Financial sectors get the relaxed leverage and ROCE thresholds.
var financialSectors = map[string]bool{
	"Banks":              true,
	"NBFC":               true,
	"Insurance":          true,
	"Financial Services": true,
	"Finance":            true,
}

// IsFinancialSector reports whether the sector uses financial thresholds.
func IsFinancialSector(sector string) bool {
	return financialSectors[sector]
}

// FMPConfig configures the Financial Modeling Prep client.
type FMPConfig struct {
	BaseURL    string // default https://financialmodelingprep.com
	APIKey     string
	FetchDelay time.Duration
	Log        zerolog.Logger
}

// FMPProvider implements Provider against the FMP v3 API. NSE symbols are
// queried with the .NS suffix.
type FMPProvider struct {
	cfg     FMPConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewFMPProvider creates an FMP client with the configured pacing.
func NewFMPProvider(cfg FMPConfig) *FMPProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://financialmodelingprep.com"
	}
	delay := cfg.FetchDelay
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &FMPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		log:     cfg.Log.With().Str("component", "fmp").Logger(),
	}
}

type keyMetricsTTM struct {
	ROIC              float64 `json:"roicTTM"`
	ROE               float64 `json:"roeTTM"`
	DebtToEquity      float64 `json:"debtToEquityTTM"`
	FreeCashFlowYield float64 `json:"freeCashFlowYieldTTM"`
	NetIncomePerShare float64 `json:"netIncomePerShareTTM"`
	OperatingCFShare  float64 `json:"operatingCashFlowPerShareTTM"`
}

type financialGrowth struct {
	EPSGrowth     float64 `json:"epsgrowth"`
	RevenueGrowth float64 `json:"revenueGrowth"`
}

type companyProfile struct {
	Sector string `json:"sector"`
}

// Fetch pulls TTM key metrics, the latest growth figures, and the company
// profile for the symbol. A missing profile is tolerated; the sector just
// stays empty.
func (p *FMPProvider) Fetch(ctx context.Context, symbol string) (*Data, error) {
	quoted := symbol + ".NS"

	var metrics []keyMetricsTTM
	if err := p.getJSON(ctx, fmt.Sprintf("%s/api/v3/key-metrics-ttm/%s?apikey=%s",
		p.cfg.BaseURL, quoted, p.cfg.APIKey), &metrics); err != nil {
		return nil, fmt.Errorf("failed to fetch key metrics for %s: %w", symbol, err)
	}
	if len(metrics) == 0 {
		p.log.Debug().Str("symbol", symbol).Msg("No fundamental coverage")
		return nil, nil
	}
	m := metrics[0]

	var growth []financialGrowth
	if err := p.getJSON(ctx, fmt.Sprintf("%s/api/v3/financial-growth/%s?limit=1&apikey=%s",
		p.cfg.BaseURL, quoted, p.cfg.APIKey), &growth); err != nil {
		return nil, fmt.Errorf("failed to fetch growth for %s: %w", symbol, err)
	}

	d := &Data{
		Symbol:      symbol,
		ROCE:        m.ROIC * 100,
		ROE:         m.ROE * 100,
		DebtEquity:  m.DebtToEquity,
		FCFYieldPct: m.FreeCashFlowYield * 100,
		CashEPS:     m.OperatingCFShare,
		ReportedEPS: m.NetIncomePerShare,
	}
	if len(growth) > 0 {
		d.EPSGrowthPct = growth[0].EPSGrowth * 100
		d.RevenueGrowthPct = growth[0].RevenueGrowth * 100
	}

	var profiles []companyProfile
	if err := p.getJSON(ctx, fmt.Sprintf("%s/api/v3/profile/%s?apikey=%s",
		p.cfg.BaseURL, quoted, p.cfg.APIKey), &profiles); err != nil {
		p.log.Warn().Str("symbol", symbol).Err(err).Msg("Profile fetch failed")
	} else if len(profiles) > 0 {
		d.Sector = profiles[0].Sector
	}
	return d, nil
}

func (p *FMPProvider) getJSON(ctx context.Context, url string, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "lookout/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
