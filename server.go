package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aeo-optimizer/backend/analyzer"
	"github.com/aeo-optimizer/backend/config"
	"github.com/aeo-optimizer/backend/logging"
	"github.com/aeo-optimizer/backend/middleware"
	"github.com/aeo-optimizer/backend/stats"
	"github.com/gin-gonic/gin"
	"github.com/ternarybob/arbor"
)

// analyzeRequest is the body of POST /api/analyze
type analyzeRequest struct {
	URL      string   `json:"url"`
	HTML     string   `json:"html"`
	Keywords []string `json:"keywords" binding:"omitempty,max=20,dive,max=200"`
	Industry string   `json:"industry" binding:"max=100"`
}

type server struct {
	analyzer    *analyzer.Analyzer
	stats       *logging.Statistics
	storage     *stats.Storage
	metrics     *middleware.Metrics
	logger      arbor.ILogger
	qualitative bool
	detailed    bool
	started     time.Time
}

func newRouter(s *server, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(s.logger))
	r.Use(s.metrics.Middleware())
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(middleware.StatsMiddleware(s.stats, s.logger))

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/statistics", s.statistics)
		api.POST("/analyze", middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).RateLimit(), s.analyze)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.TrimSuffix(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAny:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With, "+middleware.RequestIDHeader)
		c.Header("Access-Control-Expose-Headers", middleware.RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"qualitative": s.qualitative,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *server) statistics(c *gin.Context) {
	body := s.stats.GetStatistics(s.detailed)
	if s.storage != nil {
		body["currentMonth"] = s.storage.GetCurrentStats()
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) analyze(c *gin.Context) {
	start := time.Now()
	logger := s.logger.WithCorrelationId(middleware.RequestIDFrom(c))

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.record(req.URL, nil, string(analyzer.KindInvalidInput), time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
			"kind":  string(analyzer.KindInvalidInput),
		})
		return
	}

	result, err := s.analyzer.AnalyzeWithContext(c.Request.Context(), analyzer.Input{
		HTML:     req.HTML,
		URL:      req.URL,
		Keywords: req.Keywords,
		Industry: req.Industry,
	})
	if err != nil {
		status, kind := errorStatus(err)
		s.record(req.URL, nil, kind, time.Since(start))
		logger.Warn().Str("url", req.URL).Str("kind", kind).Err(err).Msg("Analysis failed")
		c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
		return
	}

	s.record(result.URL, result, "", time.Since(start))
	logger.Info().
		Str("url", result.URL).
		Str("content_type", string(result.Details.ContentType)).
		Int("overall_score", result.Scores.OverallScore).
		Bool("qualitative", result.Scores.AIAnalysisScore != nil).
		Msg("Analysis complete")
	c.JSON(http.StatusOK, result)
}

// errorStatus maps an analysis error to an HTTP status and error kind
func errorStatus(err error) (int, string) {
	var aerr *analyzer.AnalysisError
	switch {
	case errors.As(err, &aerr):
		switch aerr.Kind {
		case analyzer.KindInvalidInput:
			return http.StatusBadRequest, string(aerr.Kind)
		case analyzer.KindEmptyContent:
			return http.StatusUnprocessableEntity, string(aerr.Kind)
		}
		return http.StatusInternalServerError, string(aerr.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// record updates statistics, metrics and monthly totals. failure is the error
// kind of a failed request and empty on success.
func (s *server) record(url string, result *analyzer.AnalysisResult, failure string, d time.Duration) {
	ev := logging.AnalysisEvent{URL: url, Duration: d, Failed: failure != ""}
	outcome := stats.Outcome{Rejected: failure != ""}
	label := failure
	assessed := false

	if result != nil {
		assessed = result.Scores.AIAnalysisScore != nil
		label = "ok"
		ev.ContentType = string(result.Details.ContentType)
		ev.QualitativeUnavailable = !assessed
		outcome.ContentType = ev.ContentType
		outcome.Assessed = assessed
	}

	s.stats.TrackAnalysis(ev)
	s.metrics.ObserveAnalysis(ev.ContentType, label, assessed, d)
	if s.storage != nil {
		s.storage.Record(outcome)
	}
}
