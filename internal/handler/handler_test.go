package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartflow/internal/client/dexscreener"
	"smartflow/internal/client/nansen"
	"smartflow/internal/config"
	"smartflow/internal/db"
	"smartflow/internal/flow"
	"smartflow/internal/lock"
	"smartflow/internal/metrics"
	gormrepository "smartflow/internal/repository/gorm"
	"smartflow/internal/service"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubNetflow struct {
	records []flow.NetflowRecord
	err     error
}

func (s stubNetflow) FetchNetflow(context.Context, nansen.NetflowRequest) ([]flow.NetflowRecord, []flow.Rejection, error) {
	return s.records, nil, s.err
}

type stubMarket struct{}

func (stubMarket) FetchMarketData(context.Context, []string, int) dexscreener.MarketResult {
	return dexscreener.MarketResult{Chunks: 1}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

type testServer struct {
	engine *gin.Engine
	gdb    *db.DB
	store  *gormrepository.Store
	query  *service.FlowQueryService
}

func newTestServer(t *testing.T, netflow stubNetflow, fallback bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(config.DBConfig{
		Provider: db.ProviderSQLite,
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	store := gormrepository.New(gdb.Gorm)
	mapping := flow.Mapping{
		{Label: "5min", Horizon: flow.Horizon1h, Interval: flow.IntervalM5},
		{Label: "24h", Horizon: flow.Horizon24h, Interval: flow.IntervalH24},
	}
	m := metrics.New("smartflow_test")
	now := func() time.Time { return testNow }
	query := &service.FlowQueryService{Repo: store, Mapping: mapping, FallbackEnabled: fallback, Metrics: m, Now: now}
	refresh := &service.RefreshService{
		Netflow:   netflow,
		Market:    stubMarket{},
		Publisher: &service.Publisher{Store: store, Locker: lock.NewMemory(0), Metrics: m},
		Runs:      store,
		Metrics:   m,
		Mapping:   mapping,
		Now:       now,
	}

	r := gin.New()
	r.Use(CORS())
	(&HealthHandler{DB: gdb.Gorm}).Register(r)
	(&MetricsHandler{Handler: m.Handler()}).Register(r)
	(&FlowsHandler{Query: query, Refresh: refresh}).Register(r)
	return &testServer{engine: r, gdb: gdb, store: store, query: query}
}

func (s *testServer) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.engine.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func netflowRecords() []flow.NetflowRecord {
	rec := func(addr, symbol string, net1h, net24h int64) flow.NetflowRecord {
		return flow.NetflowRecord{
			Address: addr,
			Symbol:  symbol,
			Chain:   flow.ChainSolana,
			NetFlow: map[flow.Horizon]decimal.Decimal{
				flow.Horizon1h:  decimal.NewFromInt(net1h),
				flow.Horizon24h: decimal.NewFromInt(net24h),
			},
			TraderCount: 7,
		}
	}
	return []flow.NetflowRecord{
		rec("So11111111111111111111111111111111111111112", "SOL", -300, 1200),
		rec("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "BONK", 900, -50),
	}
}

func TestRefreshThenListFlows(t *testing.T) {
	s := newTestServer(t, stubNetflow{records: netflowRecords()}, false)

	w, env := s.do(t, http.MethodPost, "/api/flows/refresh")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run service.RunResult
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, "succeeded", run.Status)
	assert.Equal(t, service.TriggerManual, run.Trigger)
	assert.Equal(t, 4, run.Rows)

	w, env = s.do(t, http.MethodGet, "/api/flows?timeframe=24h")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(dataSourceHeader))
	assert.Equal(t, "store", env.Meta["source"])
	assert.Equal(t, "24h", env.Meta["timeframe"])
	assert.Equal(t, testNow.Format(time.RFC3339), env.Meta["last_refreshed_at"])

	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "SOL", items[0]["symbol"])
	assert.Equal(t, "1200", items[0]["net_flows"])
	assert.Equal(t, "1200", items[0]["inflows"])
	assert.Equal(t, "BONK", items[1]["symbol"])
	assert.Equal(t, "50", items[1]["outflows"])
	assert.Contains(t, items[0], "token_sectors")

	w, env = s.do(t, http.MethodGet, "/api/flows")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5min", env.Meta["timeframe"])
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "BONK", items[0]["symbol"])

	w, env = s.do(t, http.MethodGet, "/api/flows/runs?status=succeeded")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &runs))
	require.Len(t, runs, 1)
}

func TestListFlowsUnknownTimeframe(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, false)
	w, env := s.do(t, http.MethodGet, "/api/flows?timeframe=2h")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Equal(t, []any{"5min", "24h"}, env.Meta["timeframes"])
}

func TestListFlowsEmptyWithoutFallback(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, false)
	w, env := s.do(t, http.MethodGet, "/api/flows?timeframe=24h")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "store", env.Meta["source"])
	assert.Equal(t, float64(0), env.Meta["count"])
	assert.NotContains(t, env.Meta, "last_refreshed_at")
}

func TestListFlowsFallbackIsLabelled(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, true)
	w, env := s.do(t, http.MethodGet, "/api/flows?timeframe=24h&limit=3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(dataSourceHeader))
	assert.Equal(t, "fallback", env.Meta["source"])

	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 3)

	_, again := s.do(t, http.MethodGet, "/api/flows?timeframe=24h&limit=3")
	assert.JSONEq(t, string(env.Data), string(again.Data))
}

func TestListFlowsStoreErrorIsBadGateway(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, false)
	require.NoError(t, db.Close(s.gdb))

	w, env := s.do(t, http.MethodGet, "/api/flows?timeframe=24h")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotEmpty(t, env.Message)
}

func TestRefreshNetflowFailure(t *testing.T) {
	upErr := &flow.UpstreamError{Provider: "nansen", Status: http.StatusUnauthorized, Err: errors.New("bad key")}
	s := newTestServer(t, stubNetflow{err: upErr}, false)

	w, env := s.do(t, http.MethodPost, "/api/flows/refresh")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "failed", env.Meta["status"])
	assert.NotEmpty(t, env.Meta["run_id"])
}

func TestListTimeframes(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, false)
	w, env := s.do(t, http.MethodGet, "/api/flows/timeframes")
	require.Equal(t, http.StatusOK, w.Code)

	var body timeframesResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, flow.MappingVersion, body.Version)
	require.Len(t, body.Timeframes, 2)
	assert.Equal(t, flow.Horizon24h, body.Timeframes[1].Horizon)
	assert.Equal(t, flow.IntervalH24, body.Timeframes[1].Interval)
	assert.Equal(t, map[string]int64{"5min": 0, "24h": 0}, body.Rows)
}

func TestListTimeframesCountsPublishedRows(t *testing.T) {
	s := newTestServer(t, stubNetflow{records: netflowRecords()}, false)
	w, _ := s.do(t, http.MethodPost, "/api/flows/refresh")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(t, http.MethodGet, "/api/flows/timeframes")
	require.Equal(t, http.StatusOK, w.Code)
	var body timeframesResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, map[string]int64{"5min": 2, "24h": 2}, body.Rows)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, false)
	w, _ := s.do(t, http.MethodOptions, "/api/flows")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = s.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadiness(t *testing.T) {
	s := newTestServer(t, stubNetflow{}, false)
	w, _ := s.do(t, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)

	r := gin.New()
	(&HealthHandler{DB: s.gdb.Gorm, Locks: downPinger{}}).Register(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "lock_unreachable")

	r = gin.New()
	(&HealthHandler{}).Register(r)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_missing")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, stubNetflow{records: netflowRecords()}, false)
	_, _ = s.do(t, http.MethodPost, "/api/flows/refresh")

	w, _ := s.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "smartflow_test_pipeline_runs_total")
}
