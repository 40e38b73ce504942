package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/Agnikulu/veritas/internal/models"
	"github.com/Agnikulu/veritas/internal/vectorindex"
)

// This binary runs a single ingestion pass and exits — the counterpart to
// POST /admin/ingest for cron-triggered runs that don't need the API
// surface up at all.
func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "configs/config.dev.yaml", "Path to configuration file")
		force      = flag.Bool("force", false, "Bypass the cooldown gate")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg, *verbose)
	logger.Info().Str("config_path", *configPath).Bool("force", *force).Msg("starting ingestion run")

	metricsServer := metrics.NewServer(cfg.Ingestion.MetricsPort, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Warn().Err(err).Msg("metrics server failed to start (non-fatal)")
	}

	if dir := filepath.Dir(cfg.DocStore.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.DocStore.Path).Msg("failed to create docstore directory")
		}
	}
	store, err := docstore.Open(cfg.DocStore.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DocStore.Path).Msg("failed to open document store")
	}
	defer store.Close()

	index, err := vectorindex.New(vectorindex.Config{
		URL:           cfg.VectorIndex.URL,
		MinSimilarity: cfg.VectorIndex.MinSimilarity,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.VectorIndex.URL).Msg("failed to reach vector index")
	}

	embeddingChain := embedding.NewChain([]embedding.Provider{
		embedding.NewRemoteProvider("gemini", geminiEmbedEndpoint, cfg.Embedding.GeminiAPIKey, "text-embedding-004", cfg.Embedding.Dimension, cfg.ModelGateway.RequestTimeout),
		embedding.NewRemoteProvider("openrouter", openRouterEmbedEndpoint, cfg.Embedding.OpenRouterAPIKey, "openai/text-embedding-3-small", cfg.Embedding.Dimension, cfg.ModelGateway.RequestTimeout),
		embedding.NewLocalProvider(cfg.Embedding.OllamaEndpoint, "nomic-embed-text", cfg.Embedding.Dimension, cfg.ModelGateway.OfflineTimeout),
		embedding.NewDeterministicProvider(cfg.Embedding.Dimension),
	}, logger)

	conns := []connectors.Connector{
		connectors.NewNewsConnector(cfg.Connectors.NewsAPIEndpoint, cfg.Connectors.NewsAPIKey, cfg.Ingestion.ConnectorTimeout, logger),
		connectors.NewGovConnector(cfg.Connectors.GovFeedURLs, cfg.Ingestion.ConnectorTimeout, logger),
		connectors.NewFactCheckConnector(cfg.Connectors.FactCheckEndpoint, cfg.Connectors.FactCheckAPIKey, cfg.Ingestion.ConnectorTimeout, logger),
		connectors.NewSocialConnector(cfg.Connectors.SocialEndpoint, cfg.Ingestion.ConnectorTimeout, logger),
	}

	orchestrator := ingestion.New(store, index, embeddingChain, conns, cfg.Ingestion, cfg.Connectors.DefaultMaxItems, logger)

	run, err := orchestrator.Ingest(context.Background(), *force, "cron")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := metricsServer.Stop(shutdownCtx); stopErr != nil {
		logger.Error().Err(stopErr).Msg("error stopping metrics server")
	}

	if err != nil {
		switch err {
		case ingestion.ErrAlreadyRunning:
			logger.Warn().Msg("ingestion run already in progress, skipping")
			os.Exit(0)
		case ingestion.ErrCooldown:
			logger.Info().Msg("ingestion cooldown active, skipping (use -force to override)")
			os.Exit(0)
		default:
			logger.Fatal().Err(err).Msg("ingestion run failed")
		}
	}

	summary, _ := json.Marshal(run)
	logger.Info().
		Str("status", string(run.Status)).
		RawJSON("run", summary).
		Msg("ingestion run finished")

	if run.Status == models.IngestFailed {
		os.Exit(1)
	}
}

const (
	geminiEmbedEndpoint     = "https://generativelanguage.googleapis.com/v1beta/openai"
	openRouterEmbedEndpoint = "https://openrouter.ai/api/v1"
)

// setupLogger configures structured logging: the level comes from -verbose or
// the configured level, and output is JSON when the configured format is
// "json", console-formatted otherwise.
func setupLogger(cfg *config.Config, verbose bool) zerolog.Logger {
	logLevel := zerolog.InfoLevel
	if verbose {
		logLevel = zerolog.DebugLevel
	} else {
		switch cfg.Logging.Level {
		case "debug":
			logLevel = zerolog.DebugLevel
		case "info":
			logLevel = zerolog.InfoLevel
		case "warn":
			logLevel = zerolog.WarnLevel
		case "error":
			logLevel = zerolog.ErrorLevel
		}
	}
	zerolog.SetGlobalLevel(logLevel)

	if cfg.Logging.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Str("component", "ingestor").Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	return zerolog.New(output).With().Timestamp().Str("component", "ingestor").Logger()
}
