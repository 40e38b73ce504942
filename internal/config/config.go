package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Ingestion    IngestionConfig    `yaml:"ingestion"`
	Connectors   ConnectorsConfig   `yaml:"connectors"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	VectorIndex  VectorIndexConfig  `yaml:"vector_index"`
	DocStore     DocStoreConfig     `yaml:"docstore"`
	ModelGateway ModelGatewayConfig `yaml:"model_gateway"`
	RAG          RAGConfig          `yaml:"rag"`
	API          APIConfig          `yaml:"api"`
	Auth         AuthConfig         `yaml:"auth"`
	Redis        RedisConfig        `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// IngestionConfig configures the orchestrator (C6).
type IngestionConfig struct {
	ChunkSize        int           `yaml:"chunk_size"`
	ChunkOverlap     int           `yaml:"chunk_overlap"`
	CooldownSeconds  int           `yaml:"cooldown_seconds"`
	ConnectorTimeout time.Duration `yaml:"connector_timeout"`
	BatchSize        int           `yaml:"batch_size"` // B_EMBED
	QLogCapacity     int           `yaml:"q_log_capacity"`
	MetricsPort      int           `yaml:"metrics_port"`
}

// ConnectorsConfig configures the source connector clients (C1).
type ConnectorsConfig struct {
	NewsAPIKey       string `yaml:"-"`
	NewsAPIEndpoint  string `yaml:"news_api_endpoint"`
	GovFeedURLs      []string `yaml:"gov_feed_urls"`
	FactCheckAPIKey  string `yaml:"-"`
	FactCheckEndpoint string `yaml:"fact_check_endpoint"`
	SocialEndpoint   string `yaml:"social_endpoint"`
	DefaultMaxItems  int    `yaml:"default_max_items"`
}

// EmbeddingConfig configures the embedding provider fallback chain (C2).
type EmbeddingConfig struct {
	GeminiAPIKey     string `yaml:"-"`
	OpenRouterAPIKey string `yaml:"-"`
	OllamaEndpoint   string `yaml:"ollama_endpoint"`
	Dimension        int    `yaml:"dimension"`
}

// VectorIndexConfig configures the Elasticsearch-backed vector index (C3).
type VectorIndexConfig struct {
	URL           string  `yaml:"url"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// DocStoreConfig configures the SQLite document store (C4).
type DocStoreConfig struct {
	Path string `yaml:"path"`
}

// ModelGatewayConfig configures the model backend chain (C7).
type ModelGatewayConfig struct {
	ForceOfflineMode bool          `yaml:"force_offline_mode"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	OfflineTimeout   time.Duration `yaml:"offline_timeout"`
	ModelTimeout     time.Duration `yaml:"model_timeout"`
	HealthInterval   time.Duration `yaml:"health_interval"`
	MaxRetries       int           `yaml:"max_retries"`
}

// RAGConfig configures the two-phase verification engine (C8).
type RAGConfig struct {
	CanonSimilarity float64 `yaml:"canon_similarity"` // τ_canon
	ContextSize     int     `yaml:"context_size"`      // K_CONTEXT
	SnippetChars    int     `yaml:"snippet_chars"`     // S_SNIPPET
}

// APIConfig configures the HTTP surface (C9).
type APIConfig struct {
	Port         int             `yaml:"port"`
	CORSOrigins  []string        `yaml:"cors_origins"`
	RateLimiting APIRateLimiting `yaml:"rate_limiting"`
}

// APIRateLimiting configures the Redis-backed sliding-window rate limiter.
type APIRateLimiting struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requests_per_minute"`
	BurstSize         int      `yaml:"burst_size"`
	KeyType           string   `yaml:"key_type"`
	Whitelist         []string `yaml:"whitelist"` // exact IPs or CIDRs exempt from limiting
}

// AuthConfig configures admin authentication (static shared secret only).
type AuthConfig struct {
	AdminToken string `yaml:"-"`
}

// RedisConfig configures the Redis connection backing the rate limiter.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file, environment overrides, and
// validated defaults.
func LoadConfig(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	setDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Ingestion.ChunkSize == 0 {
		cfg.Ingestion.ChunkSize = 800 // W_CHUNK
	}
	if cfg.Ingestion.ChunkOverlap == 0 {
		cfg.Ingestion.ChunkOverlap = 120 // W_OVERLAP
	}
	if cfg.Ingestion.CooldownSeconds == 0 {
		cfg.Ingestion.CooldownSeconds = 600 // T_COOLDOWN
	}
	if cfg.Ingestion.ConnectorTimeout == 0 {
		cfg.Ingestion.ConnectorTimeout = 60 * time.Second // T_CONNECTOR
	}
	if cfg.Ingestion.BatchSize == 0 {
		cfg.Ingestion.BatchSize = 32 // B_EMBED
	}
	if cfg.Ingestion.QLogCapacity == 0 {
		cfg.Ingestion.QLogCapacity = 1024 // Q_LOG
	}
	if cfg.Ingestion.MetricsPort == 0 {
		cfg.Ingestion.MetricsPort = 2112
	}

	if cfg.Connectors.NewsAPIEndpoint == "" {
		cfg.Connectors.NewsAPIEndpoint = "https://newsapi.org/v2"
	}
	if cfg.Connectors.FactCheckEndpoint == "" {
		cfg.Connectors.FactCheckEndpoint = "https://factchecktools.googleapis.com/v1alpha1"
	}
	if cfg.Connectors.DefaultMaxItems == 0 {
		cfg.Connectors.DefaultMaxItems = 100
	}

	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.OllamaEndpoint == "" {
		cfg.Embedding.OllamaEndpoint = "http://localhost:11434"
	}

	if cfg.VectorIndex.URL == "" {
		cfg.VectorIndex.URL = "http://localhost:9200"
	}
	if cfg.VectorIndex.MinSimilarity == 0 {
		cfg.VectorIndex.MinSimilarity = 0.65 // MIN_SIMILARITY
	}

	if cfg.DocStore.Path == "" {
		cfg.DocStore.Path = "data/veritas.db"
	}

	if cfg.ModelGateway.RequestTimeout == 0 {
		cfg.ModelGateway.RequestTimeout = 15 * time.Second // T_REQUEST online
	}
	if cfg.ModelGateway.OfflineTimeout == 0 {
		cfg.ModelGateway.OfflineTimeout = 20 * time.Second // T_REQUEST offline
	}
	if cfg.ModelGateway.ModelTimeout == 0 {
		cfg.ModelGateway.ModelTimeout = 30 * time.Second // T_MODEL
	}
	if cfg.ModelGateway.HealthInterval == 0 {
		cfg.ModelGateway.HealthInterval = 60 * time.Second // T_HEALTH
	}
	if cfg.ModelGateway.MaxRetries == 0 {
		cfg.ModelGateway.MaxRetries = 3 // R_MAX
	}

	if cfg.RAG.CanonSimilarity == 0 {
		cfg.RAG.CanonSimilarity = 0.85 // τ_canon
	}
	if cfg.RAG.ContextSize == 0 {
		cfg.RAG.ContextSize = 25 // K_CONTEXT
	}
	if cfg.RAG.SnippetChars == 0 {
		cfg.RAG.SnippetChars = 500 // S_SNIPPET
	}

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RateLimiting.RequestsPerMinute == 0 {
		cfg.API.RateLimiting.RequestsPerMinute = 60
	}
	if cfg.API.RateLimiting.BurstSize == 0 {
		cfg.API.RateLimiting.BurstSize = 20
	}
	if cfg.API.RateLimiting.KeyType == "" {
		cfg.API.RateLimiting.KeyType = "ip"
	}

	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		cfg.Connectors.NewsAPIKey = v
	}
	if v := os.Getenv("FACT_CHECK_API_KEY"); v != "" {
		cfg.Connectors.FactCheckAPIKey = v
	}
	if v := os.Getenv("GOV_FEED_URLS"); v != "" {
		cfg.Connectors.GovFeedURLs = strings.Split(v, ",")
	}
	if v := os.Getenv("SOCIAL_ENDPOINT"); v != "" {
		cfg.Connectors.SocialEndpoint = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Embedding.GeminiAPIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Embedding.OpenRouterAPIKey = v
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		cfg.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("FORCE_OFFLINE_MODE"); v == "true" || v == "1" {
		cfg.ModelGateway.ForceOfflineMode = true
	}
	if v := os.Getenv("X_ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := os.Getenv("CHROMA_PERSIST_PATH"); v != "" {
		cfg.DocStore.Path = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.API.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MIN_SIMILARITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.VectorIndex.MinSimilarity = f
		}
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.ChunkSize = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.ChunkOverlap = n
		}
	}
	if v := os.Getenv("T_COOLDOWN_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.CooldownSeconds = n
		}
	}
	if v := os.Getenv("T_REQUEST_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ModelGateway.RequestTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RATE_LIMIT_WHITELIST"); v != "" {
		cfg.API.RateLimiting.Whitelist = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Ingestion.ChunkOverlap >= cfg.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap must be smaller than chunk_size")
	}
	if cfg.VectorIndex.MinSimilarity < 0 || cfg.VectorIndex.MinSimilarity > 1 {
		return fmt.Errorf("vector_index.min_similarity must be in [0,1]")
	}
	if cfg.ModelGateway.MaxRetries < 1 {
		return fmt.Errorf("model_gateway.max_retries must be >= 1")
	}
	if cfg.Redis.URL == "" {
		return fmt.Errorf("redis URL must not be empty")
	}
	return nil
}
