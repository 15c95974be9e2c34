package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppInfo corresponds to the 'app' section with basic application information.
type AppInfo struct {
	Name        string `yaml:"name"`        // Application name
	Version     string `yaml:"version"`     // Application version
	Environment string `yaml:"environment"` // Runtime environment (e.g. "development", "production")
}

// LoggerConfig defines the logger configuration.
type LoggerConfig struct {
	Level string `yaml:"level"` // Log level (e.g. "info", "debug", "warn", "error")
}

// ServerConfig defines the HTTP server configuration.
type ServerConfig struct {
	Address   string `yaml:"address"`   // Listen address (e.g. ":8080")
	UploadDir string `yaml:"uploadDir"` // Directory for uploaded PDF files
}

// OpenAIConfig holds credentials and model selection for an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey string `yaml:"apiKey"` // API key; supports ${ENV} expansion
	Model  string `yaml:"model"`  // Model name
}

// LLMConfig holds the generation model configuration.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // LLM provider (only "openai" is supported)
	OpenAI   OpenAIConfig `yaml:"openai"`
}

// EmbeddingConfig holds the embedding model configuration.
type EmbeddingConfig struct {
	Provider  string       `yaml:"provider"` // Embedding provider (only "openai" is supported)
	OpenAI    OpenAIConfig `yaml:"openai"`
	Dimension int          `yaml:"dimension"` // Vector dimensionality of the deployment
	BatchSize int          `yaml:"batchSize"` // Texts per embedding request
}

// RAGConfig tunes the chunking and retrieval behavior.
type RAGConfig struct {
	ChunkSize       int `yaml:"chunkSize"`       // Target chunk size in tokens
	ChunkOverlap    int `yaml:"chunkOverlap"`    // Overlap between consecutive chunks in tokens
	TopK            int `yaml:"topK"`            // Number of chunks retrieved per query
	CacheTTLSeconds int `yaml:"cacheTTLSeconds"` // Answer cache TTL
}

// MilvusConfig defines the Milvus connection and collection configuration.
type MilvusConfig struct {
	Address        string `yaml:"address"`        // Milvus service address; empty disables the backend
	CollectionName string `yaml:"collectionName"` // Collection holding budget chunks
}

// RedisConfig defines the Redis connection configuration.
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis server address (e.g. "localhost:6379"); empty disables caching
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number
}

// KafkaConfig defines the Kafka connection configuration for async ingestion.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Broker address list; empty disables async ingestion
	Topic   string   `yaml:"topic"`   // Ingest task topic
	GroupID string   `yaml:"groupID"` // Consumer group id
}

// DatabaseConfigs groups all backing-service configurations.
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// TokenBucketConfig defines the token bucket algorithm configuration.
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // Tokens per second
	Capacity int     `yaml:"capacity"`
}

// FixedWindowConfig defines the fixed window counter algorithm configuration.
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // e.g. "1m", "30s"
}

// RateLimiterConfig defines the rate limiter configuration.
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // Supported: "fixedWindow", "tokenBucket"
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// CircuitBreakerConfig defines the circuit breaker configuration.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// MiddlewareConfig groups the HTTP middleware configuration.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig is the root structure of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	RAG        RAGConfig        `yaml:"rag"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at path.
// Environment variable references like ${OPENAI_API_KEY} are expanded
// before parsing so secrets stay out of the file.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	expanded := os.ExpandEnv(string(yamlFile))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills unset tunables with the documented defaults.
func (c *AppConfig) applyDefaults() {
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.CacheTTLSeconds == 0 {
		c.RAG.CacheTTLSeconds = 3600
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = "data/pdfs"
	}
	if c.Databases.Milvus.CollectionName == "" {
		c.Databases.Milvus.CollectionName = "city_budgets"
	}
}
