package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aeo-optimizer/backend/analyzer"
	"github.com/aeo-optimizer/backend/config"
	"github.com/aeo-optimizer/backend/llm"
	"github.com/aeo-optimizer/backend/logging"
	"github.com/aeo-optimizer/backend/middleware"
	"github.com/aeo-optimizer/backend/stats"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"
)

var (
	configFile = flag.String("config", os.Getenv("AEO_CONFIG"), "Configuration file path (TOML)")
	serverPort = flag.Int("port", 0, "Server port (overrides config)")
	serverHost = flag.String("host", "", "Server host (overrides config)")
)

func loadEnv() {
	// .env.development wins for local runs
	if err := godotenv.Load(".env.development"); err != nil {
		_ = godotenv.Load()
	}
}

func main() {
	loadEnv()
	flag.Parse()

	cfg, err := config.LoadFromFiles(*configFile)
	if err != nil {
		logging.GetLogger().Fatal().Str("path", *configFile).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	config.ApplyFlagOverrides(cfg, *serverPort, *serverHost)

	logger := logging.InitLogger(cfg.Logging)
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()
	a, provider, err := buildAnalyzer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize analyzer")
	}
	if provider != nil {
		defer provider.Close()
	}

	flushInterval, err := cfg.StatsFlushInterval()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid statistics flush interval")
	}
	storage, err := stats.NewStorage(cfg.Stats.DataDir, stats.WithLogger(logger), stats.WithFlushInterval(flushInterval))
	if err != nil {
		logger.Fatal().Str("data_dir", cfg.Stats.DataDir).Err(err).Msg("Failed to open statistics storage")
	}
	storage.Cleanup(2)

	s := &server{
		analyzer:    a,
		stats:       logging.Initialize(),
		storage:     storage,
		metrics:     middleware.NewMetrics(),
		logger:      logger,
		qualitative: provider != nil,
		detailed:    !cfg.IsProduction(),
		started:     time.Now(),
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           newRouter(s, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("environment", cfg.Environment).
		Bool("qualitative", provider != nil).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := storage.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to persist statistics")
	}
	logger.Info().Msg("Server stopped")
}

// buildAnalyzer wires the scoring profiles and, when enabled and a key is
// available, the language model provider.
func buildAnalyzer(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (*analyzer.Analyzer, llm.Provider, error) {
	timeout, err := cfg.QualitativeTimeout()
	if err != nil {
		return nil, nil, err
	}

	opts := []analyzer.Option{
		analyzer.WithLogger(logger),
		analyzer.WithQualitativeTimeout(timeout),
		analyzer.WithDigestBudget(cfg.Analyzer.DigestTokenBudget),
		analyzer.WithMaxContentBytes(cfg.Analyzer.MaxContentBytes),
	}

	if cfg.Analyzer.ScoringFile != "" {
		scoring, err := analyzer.LoadScoringFile(cfg.Analyzer.ScoringFile)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, analyzer.WithScoring(scoring))
	}

	var provider llm.Provider
	if cfg.Analyzer.QualitativeEnabled {
		provider, err = llm.NewProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Qualitative analysis disabled")
			provider = nil
		} else {
			opts = append(opts, analyzer.WithModel(provider))
		}
	}

	a, err := analyzer.New(opts...)
	if err != nil {
		if provider != nil {
			provider.Close()
		}
		return nil, nil, err
	}
	return a, provider, nil
}
