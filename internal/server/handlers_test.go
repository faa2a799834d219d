package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/internal/modules/recommendation"
)

func testHandlers(t *testing.T) *Handlers {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "analysis.db"),
		Profile: database.ProfileStandard,
		Name:    "analysis",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewHandlers(Config{
		Log:             zerolog.Nop(),
		Recommendations: recommendation.NewRepository(db, zerolog.Nop()),
	})
}

func weekRequest(method, target, week string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("week", week)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleHealth(t *testing.T) {
	h := testHandlers(t)
	rec := httptest.NewRecorder()

	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleLatestRecommendationNotFound(t *testing.T) {
	h := testHandlers(t)
	rec := httptest.NewRecorder()

	h.HandleLatestRecommendation(rec, httptest.NewRequest(http.MethodGet, "/api/recommendations/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecommendationLifecycleOverHTTP(t *testing.T) {
	h := testHandlers(t)
	week := domain.Week("2026-08-24")

	require.NoError(t, h.cfg.Recommendations.Save(&domain.Recommendation{
		ID:        "rec-1",
		Week:      week,
		Status:    domain.RecommendationDraft,
		CreatedAt: time.Now().UTC(),
		Cards:     []domain.RecommendationCard{{Symbol: "RELIANCE"}},
	}))

	rec := httptest.NewRecorder()
	h.HandleRecommendationByWeek(rec, weekRequest(http.MethodGet, "/api/recommendations/2026-08-24", "2026-08-24"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, week, got.Week)
	assert.Equal(t, domain.RecommendationDraft, got.Status)

	rec = httptest.NewRecorder()
	h.HandleApproveRecommendation(rec, weekRequest(http.MethodPost, "/api/recommendations/2026-08-24/approve", "2026-08-24"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second approve has no draft left to move.
	rec = httptest.NewRecorder()
	h.HandleApproveRecommendation(rec, weekRequest(http.MethodPost, "/api/recommendations/2026-08-24/approve", "2026-08-24"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleLatestRecommendation(rec, httptest.NewRequest(http.MethodGet, "/api/recommendations/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.RecommendationApproved, got.Status)
}
