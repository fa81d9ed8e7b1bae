package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aeo-optimizer/backend/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandler_RecoversPanic(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(arbor.NewNoOpLogger()))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"An unexpected error occurred","kind":"INTERNAL"}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/id", nil))
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, w.Body.String())

	incoming := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, incoming)
	assert.Equal(t, incoming, serve(r, req).Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	assert.NotEqual(t, "<script>", serve(r, req).Header().Get(RequestIDHeader))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, request("10.0.0.1").Code)

	w := request("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	// buckets are per client
	assert.Equal(t, http.StatusOK, request("10.0.0.2").Code)

	clock = clock.Add(time.Second)
	assert.Equal(t, http.StatusOK, request("10.0.0.1").Code)
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.limiterFor("10.0.0.1")
	clock = clock.Add(idleTTL + time.Minute)
	rl.limiterFor("10.0.0.2")

	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestStatsMiddleware_TracksVisitors(t *testing.T) {
	stats := logging.NewStatistics(nil)
	r := gin.New()
	r.Use(RequestID(), StatsMiddleware(stats, arbor.NewNoOpLogger()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":80"
		serve(r, req)
	}
	assert.Equal(t, 2, stats.GetUniqueVisitorsCount())
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	serve(r, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	m.ObserveAnalysis("saas", "ok", false, 120*time.Millisecond)
	m.ObserveAnalysis("saas", "ok", true, 2*time.Second)
	m.ObserveAnalysis("", "INVALID_INPUT", false, time.Millisecond)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `aeo_http_requests_total{route="/api/health",status="200"} 1`)
	assert.Contains(t, text, `aeo_analyses_total{content_type="saas",outcome="ok"} 2`)
	assert.Contains(t, text, `aeo_analyses_total{content_type="unknown",outcome="INVALID_INPUT"} 1`)
	assert.Contains(t, text, `aeo_qualitative_fallbacks_total 1`)
	assert.Contains(t, text, `aeo_analysis_duration_seconds_count{qualitative="true"} 1`)
}
