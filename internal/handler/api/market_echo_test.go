package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/repository"
	"FinPulse/internal/service/ratelimit"
	"FinPulse/internal/services/llm"
	"FinPulse/internal/services/narrative"
	"FinPulse/internal/usecase"
	xhttp "FinPulse/pkg/http"
	"FinPulse/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{ resets int }

func (s *stubSource) ResetSource() models.SourceMode {
	s.resets++
	return models.SourceLive
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type list[T any] struct {
	Rows  []T `json:"rows"`
	Total int `json:"total"`
}

var t0 = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

func seed(t *testing.T, store *repository.SnapshotStore, id string, price, pct float64, minute int) {
	t.Helper()
	s := models.Snapshot{
		InstrumentID:  id,
		DisplayName:   id,
		Price:         price,
		Open:          price / (1 + pct/100),
		ChangePercent: pct,
		ObservedAt:    t0.Add(time.Duration(minute) * time.Minute),
		Provenance:    models.ProvenanceLive,
	}
	s.Narrative = narrative.Render(s, time.UTC)
	vec, err := llm.NewHashEmbedder(64).Embed(context.Background(), s.Narrative)
	require.NoError(t, err)
	s.Embedding = vec
	store.Append(s)
}

func newTestServer(t *testing.T, adminToken string, limiter *ratelimit.Limiter) (*echo.Echo, *repository.SnapshotStore, *stubSource) {
	t.Helper()
	store := repository.NewSnapshotStore(100)
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	views := usecase.NewMarketViews(store, usecase.WithAlertRule(100, 3))
	engine := usecase.NewQueryEngine(store, llm.NewHashEmbedder(64), nil, m)
	src := &stubSource{}

	e := echo.New()
	NewMarketEchoHandler(nil, views, engine, src, limiter, adminToken).RegisterRoutes(e)
	return e, store, src
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestMarketEcho_LatestAndTop(t *testing.T) {
	e, store, _ := newTestServer(t, "", nil)
	seed(t, store, "TCS.NS", 3570, 2, 1)
	seed(t, store, "INFY.NS", 1490, -1.5, 1)
	seed(t, store, "HDFCBANK.NS", 1640, 0.4, 1)
	seed(t, store, "TCS.NS", 3580, 2.3, 2)

	rec, env := do(e, http.MethodGet, "/api/stocks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest list[models.Snapshot]
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	assert.Equal(t, 3, latest.Total)

	rec, env = do(e, http.MethodGet, "/api/stocks/top-gainers?n=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var gainers list[models.Snapshot]
	require.NoError(t, json.Unmarshal(env.Data, &gainers))
	require.Len(t, gainers.Rows, 2)
	assert.Equal(t, "TCS.NS", gainers.Rows[0].InstrumentID)
	assert.Equal(t, 3580.0, gainers.Rows[0].Price)

	_, env = do(e, http.MethodGet, "/api/stocks/top-losers", "", nil)
	var losers list[models.Snapshot]
	require.NoError(t, json.Unmarshal(env.Data, &losers))
	assert.Equal(t, "INFY.NS", losers.Rows[0].InstrumentID)

	rec, _ = do(e, http.MethodGet, "/api/stocks/top-gainers?n=0", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(e, http.MethodGet, "/api/stocks/top-gainers?n=1000", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketEcho_Instrument(t *testing.T) {
	e, store, _ := newTestServer(t, "", nil)
	seed(t, store, "TCS.NS", 3570, 2, 1)

	rec, env := do(e, http.MethodGet, "/api/stocks/tcs.ns", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "TCS.NS", s.InstrumentID)

	rec, env = do(e, http.MethodGet, "/api/stocks/WIPRO.NS", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_NOT_FOUND", errs[0].Code)
	assert.Equal(t, "instrument WIPRO.NS is not tracked", errs[0].Message)
}

func TestMarketEcho_SourceResetWithoutIngestion(t *testing.T) {
	store := repository.NewSnapshotStore(10)
	views := usecase.NewMarketViews(store)
	engine := usecase.NewQueryEngine(store, llm.NewHashEmbedder(8), nil, metrics.NewWithRegisterer(prometheus.NewRegistry()))
	e := echo.New()
	NewMarketEchoHandler(nil, views, engine, nil, nil, "").RegisterRoutes(e)

	rec, env := do(e, http.MethodPost, "/api/admin/source/reset", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var errs []xhttp.AppError
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UNAVAILABLE", errs[0].Code)
}

func TestMapError_UnknownIsInternal(t *testing.T) {
	var appErr *xhttp.AppError
	require.ErrorAs(t, mapError(errors.New("embedding backend exploded")), &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, "ERR_INTERNAL", appErr.Code)
	assert.Equal(t, "something went wrong", appErr.Message)
}

func TestMarketEcho_AlertsAndAnalytics(t *testing.T) {
	e, store, _ := newTestServer(t, "", nil)
	seed(t, store, "TCS.NS", 3570, 4.2, 1)
	seed(t, store, "INFY.NS", 1490, -0.2, 1)

	_, env := do(e, http.MethodGet, "/api/alerts?limit=5", "", nil)
	var alerts list[models.AlertView]
	require.NoError(t, json.Unmarshal(env.Data, &alerts))
	require.Len(t, alerts.Rows, 1)
	assert.Equal(t, "TCS.NS moved +4.20% - High volatility detected!", alerts.Rows[0].Message)

	rec, env := do(e, http.MethodGet, "/api/analytics?window=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=15", rec.Header().Get(echo.HeaderCacheControl))
	var analytics list[models.AnalyticsView]
	require.NoError(t, json.Unmarshal(env.Data, &analytics))
	assert.Equal(t, 2, analytics.Total)

	rec, _ = do(e, http.MethodGet, "/api/alerts?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketEcho_QueryModes(t *testing.T) {
	e, store, _ := newTestServer(t, "", nil)

	_, env := do(e, http.MethodPost, "/api/query", `{"question":"how is TCS doing?"}`, nil)
	var ans models.Answer
	require.NoError(t, json.Unmarshal(env.Data, &ans))
	assert.Equal(t, models.ModeInitializing, ans.Mode)

	seed(t, store, "TCS.NS", 3570, 2, 1)
	rec, env := do(e, http.MethodPost, "/api/query", `{"question":"how is TCS doing?"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &ans))
	assert.Equal(t, models.ModeOffline, ans.Mode)
	assert.Equal(t, []string{"TCS.NS"}, ans.Sources)
	assert.NotEmpty(t, ans.QueryID)

	rec, _ = do(e, http.MethodPost, "/api/query", `{"question":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(e, http.MethodPost, "/api/query", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketEcho_QueryRateLimited(t *testing.T) {
	e, _, _ := newTestServer(t, "", ratelimit.New(2, 0))

	for i := 0; i < 2; i++ {
		rec, _ := do(e, http.MethodPost, "/api/query", `{"question":"q"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := do(e, http.MethodPost, "/api/query", `{"question":"q"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMarketEcho_HealthAndAdmin(t *testing.T) {
	e, store, src := newTestServer(t, "s3cret", nil)

	_, env := do(e, http.MethodGet, "/api/health", "", nil)
	var h models.Health
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "initializing", h.Status)

	seed(t, store, "TCS.NS", 3570, 2, 1)
	_, env = do(e, http.MethodGet, "/api/health", "", nil)
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, 1, h.StoredCount)

	rec, _ := do(e, http.MethodPost, "/api/admin/source/reset", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, src.resets)

	auth := map[string]string{adminTokenHeader: "s3cret"}
	rec, env = do(e, http.MethodPost, "/api/admin/source/reset", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, src.resets)
	assert.JSONEq(t, `{"mode":"live"}`, string(env.Data))

	rec, env = do(e, http.MethodPost, "/api/admin/generative/reset", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var reset resetResponse
	require.NoError(t, json.Unmarshal(env.Data, &reset))
	assert.Equal(t, "offline", reset.Mode)
	assert.Contains(t, reset.Error, "not configured")
}
