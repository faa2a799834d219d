package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/internal/pipeline"
)

// Handlers implements the API endpoints.
type Handlers struct {
	cfg Config
	log zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(cfg Config) *Handlers {
	return &Handlers{cfg: cfg, log: cfg.Log.With().Str("component", "handlers").Logger()}
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleSystemStats reports host CPU and memory usage.
func (h *Handlers) HandleSystemStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_pct"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["mem_pct"] = vm.UsedPercent
		stats["mem_used_mb"] = vm.Used / 1024 / 1024
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleLatestRegime returns the most recent regime assessment.
func (h *Handlers) HandleLatestRegime(w http.ResponseWriter, _ *http.Request) {
	assessment, err := h.cfg.Regimes.GetLatest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if assessment == nil {
		writeError(w, http.StatusNotFound, errNotFound("no regime assessment yet"))
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// HandleLatestRecommendation returns the latest non-expired recommendation.
func (h *Handlers) HandleLatestRecommendation(w http.ResponseWriter, _ *http.Request) {
	rec, err := h.cfg.Recommendations.GetLatest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, errNotFound("no recommendation yet"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleRecommendationByWeek returns one week's recommendation.
func (h *Handlers) HandleRecommendationByWeek(w http.ResponseWriter, r *http.Request) {
	week := domain.Week(chi.URLParam(r, "week"))

	rec, err := h.cfg.Recommendations.GetByWeek(week)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, errNotFound("no recommendation for week"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleApproveRecommendation moves a draft to approved.
func (h *Handlers) HandleApproveRecommendation(w http.ResponseWriter, r *http.Request) {
	week := domain.Week(chi.URLParam(r, "week"))

	approved, err := h.cfg.Recommendations.Approve(week, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !approved {
		writeError(w, http.StatusConflict, errNotFound("no draft recommendation for week"))
		return
	}

	h.log.Info().Str("week", string(week)).Msg("Recommendation approved")
	writeJSON(w, http.StatusOK, map[string]any{"week": week, "status": "approved"})
}

type runRequest struct {
	Week            string  `json:"week"`
	PortfolioValue  float64 `json:"portfolio_value"`
	RiskPctPerTrade float64 `json:"risk_pct_per_trade"`
	RegimeOverride  string  `json:"regime_override"`
}

// HandleRunPipeline triggers an asynchronous weekly run.
func (h *Handlers) HandleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil {
		// An empty body runs with defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rc := &pipeline.RunContext{
		Week:            domain.WeekOf(time.Now().UTC()),
		PortfolioValue:  h.cfg.AppCfg.PortfolioValue,
		RiskPctPerTrade: h.cfg.AppCfg.RiskPctPerTrade,
	}
	if req.Week != "" {
		rc.Week = domain.Week(req.Week)
	}
	if req.PortfolioValue > 0 {
		rc.PortfolioValue = req.PortfolioValue
	}
	if req.RiskPctPerTrade > 0 {
		rc.RiskPctPerTrade = req.RiskPctPerTrade
	}
	if req.RegimeOverride != "" {
		state := domain.RegimeState(req.RegimeOverride)
		rc.RegimeOverride = &state
	}

	go func() {
		if _, err := h.cfg.Runner.Run(context.Background(), rc); err != nil {
			h.log.Error().Err(err).Str("week", string(rc.Week)).Msg("Pipeline run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"week": rc.Week, "status": "started"})
}

// HandleRecentRuns returns the run journal, newest first.
func (h *Handlers) HandleRecentRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := h.cfg.Journal.GetRecent(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandlePositions returns all open positions.
func (h *Handlers) HandlePositions(w http.ResponseWriter, _ *http.Request) {
	positions, err := h.cfg.Executions.GetOpenPositions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type errNotFound string

func (e errNotFound) Error() string { return string(e) }
