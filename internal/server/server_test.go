package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/decision"
	"github.com/tradegate/tradegate/internal/logging"
)

// Metrics register on the default prometheus registry, so the whole package
// shares one server instance.
var (
	once       sync.Once
	testServer *Server
)

func getServer(t *testing.T) *Server {
	t.Helper()
	once.Do(func() {
		gin.SetMode(gin.TestMode)

		dir, err := os.MkdirTemp("", "tradegate-server-test")
		require.NoError(t, err)

		cfg := config.Default()
		cfg.Audit.Path = filepath.Join(dir, "decisions.jsonl")
		cfg.HTTPLimit.Enabled = false

		testServer, err = NewServer(cfg, logging.NewNop())
		require.NoError(t, err)
	})
	require.NotNil(t, testServer)
	return testServer
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func goodRequest() map[string]any {
	return map[string]any{
		"symbol":              "BTCUSDT",
		"direction":           "buy",
		"trend_alignment":     0.9,
		"momentum":            0.85,
		"volume_confirmation": 0.8,
		"price":               100.0,
		"stop_loss":           98.0,
		"take_profit":         106.0,
		"account_balance":     10000.0,
		"session":             "london",
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := getServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 100.0, body["system_health"])
}

func TestDecideRecommendsInHybridMode(t *testing.T) {
	s := getServer(t)
	w := doJSON(t, s, http.MethodPost, "/v1/decide", goodRequest())
	require.Equal(t, http.StatusOK, w.Code)

	var d decision.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, decision.OutcomeRecommend, d.Outcome)
	assert.NotEmpty(t, d.ID)
	assert.Len(t, d.Verdicts, 4)
}

func TestDecideRejectsOnVeto(t *testing.T) {
	s := getServer(t)
	req := goodRequest()
	req["news_window"] = true

	w := doJSON(t, s, http.MethodPost, "/v1/decide", req)
	require.Equal(t, http.StatusOK, w.Code)

	var d decision.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, decision.OutcomeReject, d.Outcome)
	assert.Contains(t, d.VetoReasons, "high-impact news window")
}

func TestDecideRequiresSymbol(t *testing.T) {
	s := getServer(t)
	req := goodRequest()
	delete(req, "symbol")

	w := doJSON(t, s, http.MethodPost, "/v1/decide", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecideRejectsMalformedBody(t *testing.T) {
	s := getServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/decide", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s := getServer(t)
	w := doJSON(t, s, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "health")
	assert.Contains(t, body, "breakers")
	assert.Contains(t, body, "limiter")
	assert.Contains(t, body, "decisions")
}

func TestPauseAndResume(t *testing.T) {
	s := getServer(t)

	w := doJSON(t, s, http.MethodPost, "/v1/pause", map[string]string{"reason": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/decide", goodRequest())
	require.Equal(t, http.StatusOK, w.Code)
	var d decision.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, decision.OutcomePaused, d.Outcome)
	assert.Contains(t, d.Reason, "maintenance")

	w = doJSON(t, s, http.MethodPost, "/v1/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/v1/decide", goodRequest())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.NotEqual(t, decision.OutcomePaused, d.Outcome)
}

func TestRecentDecisions(t *testing.T) {
	s := getServer(t)
	doJSON(t, s, http.MethodPost, "/v1/decide", goodRequest())

	w := doJSON(t, s, http.MethodGet, "/v1/decisions/recent?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Decisions []decision.Decision `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Decisions)
}

func TestRecentDecisionsRejectsBadLimit(t *testing.T) {
	s := getServer(t)
	w := doJSON(t, s, http.MethodGet, "/v1/decisions/recent?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := getServer(t)
	w := doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tradegate_")
}
