package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aeo-optimizer/backend/analyzer"
	"github.com/aeo-optimizer/backend/config"
	"github.com/aeo-optimizer/backend/logging"
	"github.com/aeo-optimizer/backend/middleware"
	"github.com/aeo-optimizer/backend/stats"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const faqPage = `<h1>Best Running Shoes</h1><p>...</p><h2>FAQ</h2><h3>What are the best running shoes?</h3><p>The best running shoes are...</p>`

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *server) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Server.RateLimit = 100
	cfg.Server.RateBurst = 100
	if mutate != nil {
		mutate(cfg)
	}

	a, err := analyzer.New()
	require.NoError(t, err)
	storage, err := stats.NewStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Shutdown(context.Background()) })

	s := &server{
		analyzer: a,
		stats:    logging.NewStatistics(nil),
		storage:  storage,
		metrics:  middleware.NewMetrics(),
		logger:   arbor.NewNoOpLogger(),
		detailed: true,
		started:  time.Now(),
	}
	return newRouter(s, cfg), s
}

func postAnalyze(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func analyzeBody(t *testing.T, in map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(in)
	require.NoError(t, err)
	return string(b)
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["qualitative"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestAnalyzeEndpoint(t *testing.T) {
	r, s := newTestServer(t, nil)

	w := postAnalyze(r, analyzeBody(t, map[string]interface{}{
		"url":      "example.com/shoes",
		"html":     faqPage,
		"keywords": []string{"best running shoes"},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result analyzer.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "https://example.com/shoes", result.URL)
	assert.GreaterOrEqual(t, result.Scores.QuestionAnswerMatch, 70)
	assert.Equal(t, 0, result.Details.HeadingAnalysis.SkippedLevels)
	assert.NotContains(t, w.Body.String(), `"aiAnalysisScore"`)

	assert.Equal(t, 1, s.stats.AnalysisRequests)
	assert.Equal(t, 1, s.stats.QualitativeFallbacks)
	month := s.storage.GetCurrentStats()
	assert.Equal(t, 1, month.Analyses)
	assert.Equal(t, 1, month.QualitativeUnavailable)
}

func TestAnalyzeEndpoint_Errors(t *testing.T) {
	r, s := newTestServer(t, func(cfg *config.Config) {})

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed json", `{"url": `, http.StatusBadRequest, "INVALID_INPUT"},
		{"too many keywords", analyzeBody(t, map[string]interface{}{
			"url": "example.com", "html": faqPage, "keywords": strings.Split(strings.Repeat("k,", 21), ","),
		}), http.StatusBadRequest, "INVALID_INPUT"},
		{"missing url", analyzeBody(t, map[string]interface{}{"html": faqPage}), http.StatusBadRequest, "INVALID_INPUT"},
		{"unsupported scheme", analyzeBody(t, map[string]interface{}{"url": "ftp://example.com", "html": faqPage}), http.StatusBadRequest, "INVALID_INPUT"},
		{"empty content", analyzeBody(t, map[string]interface{}{"url": "example.com", "html": "<script>x()</script>"}), http.StatusUnprocessableEntity, "EMPTY_CONTENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postAnalyze(r, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.Equal(t, len(tests), s.stats.ErrorCount)
	assert.Equal(t, len(tests), s.storage.GetCurrentStats().Rejected)
}

func TestAnalyzeEndpoint_RateLimited(t *testing.T) {
	r, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.RateBurst = 1
	})
	body := analyzeBody(t, map[string]interface{}{"url": "example.com", "html": faqPage})

	assert.Equal(t, http.StatusOK, postAnalyze(r, body).Code)
	w := postAnalyze(r, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestStatisticsEndpoint(t *testing.T) {
	r, _ := newTestServer(t, nil)
	postAnalyze(r, analyzeBody(t, map[string]interface{}{"url": "https://blog.example.com/post", "html": faqPage}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["totalRequests"])
	assert.Contains(t, body, "popularHosts")
	assert.Contains(t, body, "currentMonth")
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestServer(t, nil)
	postAnalyze(r, analyzeBody(t, map[string]interface{}{"url": "example.com", "html": faqPage}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `aeo_analyses_total{content_type="generic",outcome="ok"} 1`)
	assert.Contains(t, w.Body.String(), `aeo_http_requests_total{route="/api/analyze",status="200"} 1`)
}

func TestCORS(t *testing.T) {
	r, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorStatus(t *testing.T) {
	_, emptyErr := analyzer.Extract("")
	require.Error(t, emptyErr)

	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{emptyErr, http.StatusUnprocessableEntity, "EMPTY_CONTENT"},
		{fmt.Errorf("analysis cancelled: %w", context.Canceled), http.StatusServiceUnavailable, "CANCELLED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		status, kind := errorStatus(tt.err)
		assert.Equal(t, tt.status, status)
		assert.Equal(t, tt.kind, kind)
	}
}

func TestBuildAnalyzer(t *testing.T) {
	for _, key := range []string{"AEO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY", "AEO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg := config.NewDefaultConfig()
	a, provider, err := buildAnalyzer(context.Background(), cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Nil(t, provider, "no key means no model")

	cfg.Analyzer.QualitativeEnabled = true
	cfg.Claude.APIKey = "test-key"
	a, provider, err = buildAnalyzer(context.Background(), cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	assert.NotNil(t, a)
	require.NotNil(t, provider)
	assert.NoError(t, provider.Close())

	cfg.Analyzer.ScoringFile = "does-not-exist.yaml"
	_, _, err = buildAnalyzer(context.Background(), cfg, arbor.NewNoOpLogger())
	assert.Error(t, err)
}
