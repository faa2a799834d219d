// Package marketdata fetches instruments, constituents and daily OHLCV data
// from external providers and computes indicators locally.
package marketdata

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/lookout/internal/domain"
)

// Instrument is the minimal provider shape for a listed equity.
type Instrument struct {
	Symbol         string  `json:"trading_symbol"`
	Name           string  `json:"name"`
	ISIN           string  `json:"isin"`
	Segment        string  `json:"segment"`
	InstrumentType string  `json:"instrument_type"`
	LotSize        int     `json:"lot_size"`
	TickSize       float64 `json:"tick_size"`
}

// Provider abstracts the external market-data sources. Implementations must
// be safe for concurrent use; pacing is handled internally.
type Provider interface {
	FetchInstruments(ctx context.Context) ([]Instrument, error)
	FetchMTFSymbols(ctx context.Context) (map[string]bool, error)
	FetchIndexConstituents(ctx context.Context, index string) (map[string]bool, error)
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]domain.DailyBar, error)
	FetchBenchmark(ctx context.Context, days int) ([]domain.DailyBar, error)
	FetchSectorIndex(ctx context.Context, index string, days int) ([]domain.DailyBar, error)
}

// Index constituent lists published as CSVs.
var indexListURLs = map[string]string{
	"NIFTY50":  "https://archives.nseindia.com/content/indices/ind_nifty50list.csv",
	"NIFTY100": "https://archives.nseindia.com/content/indices/ind_nifty100list.csv",
	"NIFTY200": "https://archives.nseindia.com/content/indices/ind_nifty200list.csv",
	"NIFTY500": "https://archives.nseindia.com/content/indices/ind_nifty500list.csv",
}

// benchmarkSymbol is the quote symbol for the Nifty 50 index.
const benchmarkSymbol = "^NSEI"

// Config holds provider endpoints and pacing.
type Config struct {
	InstrumentsURL string
	MTFURL         string
	QuotesBaseURL  string
	FetchDelay     time.Duration // minimum inter-call delay
	Log            zerolog.Logger
}

// HTTPProvider implements Provider over public HTTP endpoints with a
// token-bucket limiter enforcing the inter-call delay.
type HTTPProvider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewHTTPProvider creates a provider with the configured pacing.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	delay := cfg.FetchDelay
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &HTTPProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		log:     cfg.Log.With().Str("component", "marketdata").Logger(),
	}
}

func (p *HTTPProvider) get(ctx context.Context, url string) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "lookout/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp, nil
}

// FetchInstruments downloads the NSE equity instruments dump (gzip JSON)
// and returns the NSE_EQ / EQ subset.
func (p *HTTPProvider) FetchInstruments(ctx context.Context) ([]Instrument, error) {
	resp, err := p.get(ctx, p.cfg.InstrumentsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}
	defer resp.Body.Close()

	all, err := decodeInstruments(resp.Body)
	if err != nil {
		return nil, err
	}

	equities := make([]Instrument, 0, len(all))
	for _, inst := range all {
		if inst.Segment == "NSE_EQ" && inst.InstrumentType == "EQ" {
			equities = append(equities, inst)
		}
	}

	p.log.Info().Int("total", len(all)).Int("equities", len(equities)).Msg("Fetched instruments")
	return equities, nil
}

// FetchMTFSymbols downloads the MTF-eligible instruments dump and returns
// the set of symbols.
func (p *HTTPProvider) FetchMTFSymbols(ctx context.Context) (map[string]bool, error) {
	resp, err := p.get(ctx, p.cfg.MTFURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MTF list: %w", err)
	}
	defer resp.Body.Close()

	all, err := decodeInstruments(resp.Body)
	if err != nil {
		return nil, err
	}

	symbols := make(map[string]bool, len(all))
	for _, inst := range all {
		symbols[inst.Symbol] = true
	}

	p.log.Info().Int("count", len(symbols)).Msg("Fetched MTF symbols")
	return symbols, nil
}

func decodeInstruments(body io.Reader) ([]Instrument, error) {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	var instruments []Instrument
	if err := json.NewDecoder(gz).Decode(&instruments); err != nil {
		return nil, fmt.Errorf("failed to decode instruments JSON: %w", err)
	}
	return instruments, nil
}

// FetchIndexConstituents downloads the published constituent CSV for one of
// the Nifty indices and returns the symbol set.
func (p *HTTPProvider) FetchIndexConstituents(ctx context.Context, index string) (map[string]bool, error) {
	url, ok := indexListURLs[index]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", index)
	}

	resp, err := p.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s constituents: %w", index, err)
	}
	defer resp.Body.Close()

	reader := csv.NewReader(resp.Body)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s constituents CSV: %w", index, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("empty constituents CSV for %s", index)
	}

	symbolCol := -1
	for i, header := range records[0] {
		if strings.EqualFold(strings.TrimSpace(header), "Symbol") {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("no Symbol column in %s constituents CSV", index)
	}

	symbols := make(map[string]bool, len(records)-1)
	for _, record := range records[1:] {
		if symbolCol < len(record) {
			symbols[strings.TrimSpace(record[symbolCol])] = true
		}
	}

	p.log.Info().Str("index", index).Int("count", len(symbols)).Msg("Fetched index constituents")
	return symbols, nil
}

// chartResponse is the quote-chart JSON envelope.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDailyBars fetches up to `days` daily bars for an NSE symbol.
// Bars failing validation are dropped with a logged reason.
func (p *HTTPProvider) FetchDailyBars(ctx context.Context, symbol string, days int) ([]domain.DailyBar, error) {
	return p.fetchChart(ctx, symbol+".NS", days)
}

// FetchBenchmark fetches the Nifty 50 index series.
func (p *HTTPProvider) FetchBenchmark(ctx context.Context, days int) ([]domain.DailyBar, error) {
	return p.fetchChart(ctx, benchmarkSymbol, days)
}

// FetchSectorIndex fetches a sector index series (e.g. ^NSEBANK) for the
// regime leadership sub-score.
func (p *HTTPProvider) FetchSectorIndex(ctx context.Context, index string, days int) ([]domain.DailyBar, error) {
	return p.fetchChart(ctx, index, days)
}

func (p *HTTPProvider) fetchChart(ctx context.Context, quoteSymbol string, days int) ([]domain.DailyBar, error) {
	// Calendar days needed to cover N trading days, with slack for holidays
	calendarDays := days*7/5 + 10
	url := fmt.Sprintf("%s/%s?range=%dd&interval=1d", p.cfg.QuotesBaseURL, quoteSymbol, calendarDays)

	resp, err := p.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", quoteSymbol, err)
	}
	defer resp.Body.Close()

	var decoded chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode chart JSON for %s: %w", quoteSymbol, err)
	}
	if decoded.Chart.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s", quoteSymbol, decoded.Chart.Error.Description)
	}
	if len(decoded.Chart.Result) == 0 || len(decoded.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no chart data for %s", quoteSymbol)
	}

	result := decoded.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]domain.DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		bar := domain.DailyBar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: quote.Volume[i],
		}
		if reason := validateBar(bar, lastClose(bars)); reason != "" {
			p.log.Debug().Str("symbol", quoteSymbol).Time("date", bar.Date).Str("reason", reason).Msg("Dropping bar")
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

func lastClose(bars []domain.DailyBar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// validateBar returns a non-empty rejection reason for malformed bars:
// inverted ranges, non-positive prices, or a >50% daily move (assumed bad
// data without a corporate-action adjustment).
func validateBar(bar domain.DailyBar, prevClose float64) string {
	if bar.Close <= 0 || bar.Open <= 0 {
		return "non-positive price"
	}
	if bar.High < bar.Low {
		return "high below low"
	}
	if prevClose > 0 {
		change := (bar.Close - prevClose) / prevClose
		if change > 0.50 || change < -0.50 {
			return "daily move above 50%"
		}
	}
	return ""
}
