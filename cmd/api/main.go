package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Agnikulu/veritas/internal/api"
	"github.com/Agnikulu/veritas/internal/config"
	"github.com/Agnikulu/veritas/internal/connectors"
	"github.com/Agnikulu/veritas/internal/docstore"
	"github.com/Agnikulu/veritas/internal/embedding"
	"github.com/Agnikulu/veritas/internal/ingestion"
	"github.com/Agnikulu/veritas/internal/metrics"
	"github.com/Agnikulu/veritas/internal/modelgateway"
	"github.com/Agnikulu/veritas/internal/rag"
	"github.com/Agnikulu/veritas/internal/resilience"
	"github.com/Agnikulu/veritas/internal/vectorindex"
)

func main() {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	configPath := flag.String("config", "", "Path to configuration file")
	portOverride := flag.Int("port", 0, "Override API port (default from config)")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "configs/config.dev.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *portOverride > 0 {
		cfg.API.Port = *portOverride
	}

	level, _ := zerolog.ParseLevel(cfg.Logging.Level)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "veritas-api").Logger().Level(level)
	logger.Info().Str("config", cfgPath).Int("port", cfg.API.Port).Msg("starting verification engine API")

	metricsServer := metrics.NewServer(cfg.Ingestion.MetricsPort, logger)
	if err := metricsServer.Start(); err != nil {
		logger.Warn().Err(err).Int("port", cfg.Ingestion.MetricsPort).Msg("metrics server failed to start (non-fatal)")
	} else {
		logger.Info().Int("port", cfg.Ingestion.MetricsPort).Msg("metrics server started")
	}

	// ---- Redis (rate limiter only; absence degrades to in-memory limiting) ----
	redisClient := redis.NewClient(&redis.Options{
		Addr:         trimRedisScheme(cfg.Redis.URL),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis not reachable at startup, rate limiting falls back to in-process limiter")
		_ = redisClient.Close()
		redisClient = nil
	} else {
		logger.Info().Str("addr", cfg.Redis.URL).Msg("connected to redis")
	}
	pingCancel()

	// ---- Document store (C4) ----
	if dir := filepath.Dir(cfg.DocStore.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("path", cfg.DocStore.Path).Msg("failed to create docstore directory")
		}
	}
	store, err := docstore.Open(cfg.DocStore.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DocStore.Path).Msg("failed to open document store")
	}
	logger.Info().Str("path", cfg.DocStore.Path).Msg("document store ready")

	// ---- Vector index (C3) ----
	index, err := vectorindex.New(vectorindex.Config{
		URL:           cfg.VectorIndex.URL,
		MinSimilarity: cfg.VectorIndex.MinSimilarity,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.VectorIndex.URL).Msg("failed to reach vector index")
	}
	logger.Info().Str("url", cfg.VectorIndex.URL).Msg("vector index ready")

	// ---- Embedding fallback chain (C2): remote Gemini -> remote OpenRouter
	// -> local Ollama -> deterministic, matching the backend preference order
	// used by the model gateway below. ----
	embeddingChain := embedding.NewChain([]embedding.Provider{
		embedding.NewRemoteProvider("gemini", geminiEmbedEndpoint, cfg.Embedding.GeminiAPIKey, "text-embedding-004", cfg.Embedding.Dimension, cfg.ModelGateway.RequestTimeout),
		embedding.NewRemoteProvider("openrouter", openRouterEmbedEndpoint, cfg.Embedding.OpenRouterAPIKey, "openai/text-embedding-3-small", cfg.Embedding.Dimension, cfg.ModelGateway.RequestTimeout),
		embedding.NewLocalProvider(cfg.Embedding.OllamaEndpoint, "nomic-embed-text", cfg.Embedding.Dimension, cfg.ModelGateway.OfflineTimeout),
		embedding.NewDeterministicProvider(cfg.Embedding.Dimension),
	}, logger)

	// ---- Model gateway (C7): same three reachable backends, same API
	// keys/endpoints as the embedding chain above (spec.md env vars are
	// shared between the two concerns). ----
	health := resilience.NewHealthTracker(logger)
	gateway := modelgateway.New([]modelgateway.Backend{
		modelgateway.NewRemoteBackend("remote-gemini", modelgateway.ProviderGemini, "", cfg.Embedding.GeminiAPIKey, "gemini-1.5-flash", cfg.ModelGateway.RequestTimeout),
		modelgateway.NewRemoteBackend("remote-openrouter", modelgateway.ProviderOpenRouter, "", cfg.Embedding.OpenRouterAPIKey, "meta-llama/llama-3.1-8b-instruct", cfg.ModelGateway.RequestTimeout),
		modelgateway.NewLocalBackend("local-ollama", cfg.Embedding.OllamaEndpoint, "llama3", cfg.ModelGateway.OfflineTimeout),
	}, modelgateway.Config{
		ForceOfflineMode: cfg.ModelGateway.ForceOfflineMode,
		ModelTimeout:     cfg.ModelGateway.ModelTimeout,
		MaxRetries:       cfg.ModelGateway.MaxRetries,
		HealthInterval:   cfg.ModelGateway.HealthInterval,
	}, health, logger)

	samplerCtx, samplerCancel := context.WithCancel(context.Background())
	gateway.StartHealthSampler(samplerCtx, cfg.ModelGateway.HealthInterval)

	// ---- Source connectors (C1) ----
	newsConn := connectors.NewNewsConnector(cfg.Connectors.NewsAPIEndpoint, cfg.Connectors.NewsAPIKey, cfg.Ingestion.ConnectorTimeout, logger)
	govConn := connectors.NewGovConnector(cfg.Connectors.GovFeedURLs, cfg.Ingestion.ConnectorTimeout, logger)
	factCheckConn := connectors.NewFactCheckConnector(cfg.Connectors.FactCheckEndpoint, cfg.Connectors.FactCheckAPIKey, cfg.Ingestion.ConnectorTimeout, logger)
	socialConn := connectors.NewSocialConnector(cfg.Connectors.SocialEndpoint, cfg.Ingestion.ConnectorTimeout, logger)

	// ---- Ingestion orchestrator (C6) ----
	orchestrator := ingestion.New(store, index, embeddingChain, []connectors.Connector{
		newsConn, govConn, factCheckConn, socialConn,
	}, cfg.Ingestion, cfg.Connectors.DefaultMaxItems, logger)

	// ---- RAG verification engine (C8) ----
	// liveNews/liveFactCheck let Phase 2 pull fresh evidence on a cache miss
	// without waiting on a full ingestion run.
	ragEngine := rag.New(index, store, embeddingChain, gateway, newsConn, factCheckConn, cfg.RAG, logger)

	claimLogQueue := ingestion.NewClaimLogQueue(store, cfg.Ingestion.QLogCapacity, logger)
	queueCtx, queueCancel := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	go func() {
		claimLogQueue.Run(queueCtx)
		close(queueDone)
	}()

	apiServer := api.NewAPIServer(redisClient, ragEngine, orchestrator, store, gateway, claimLogQueue, cfg, logger)
	addr := fmt.Sprintf(":%d", cfg.API.Port)
	httpServer := apiServer.ListenAndServe(addr)

	go func() {
		logger.Info().Str("addr", addr).Msg("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	samplerCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}
	queueCancel()
	<-queueDone
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("document store close error")
	}
	_ = apiServer.Shutdown(shutdownCtx)

	logger.Info().Msg("verification engine API stopped")
}

const (
	geminiEmbedEndpoint     = "https://generativelanguage.googleapis.com/v1beta/openai"
	openRouterEmbedEndpoint = "https://openrouter.ai/api/v1"
)

// trimRedisScheme strips a redis:// prefix so the URL can be used directly
// as a go-redis Addr.
func trimRedisScheme(url string) string {
	const scheme = "redis://"
	if len(url) > len(scheme) && url[:len(scheme)] == scheme {
		return url[len(scheme):]
	}
	return url
}
