package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for medmap-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL reference store)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory with golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Vector index configuration (Qdrant)
	Vector VectorConfig `yaml:"vector"`

	// AI model endpoints for arbitration and embeddings
	AI AIConfig `yaml:"ai"`

	// Mapping pipeline defaults
	Mapping MappingConfig `yaml:"mapping"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"medmap"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"medmap_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// VectorConfig holds Qdrant connection and collection settings.
type VectorConfig struct {
	// URL is the Qdrant REST endpoint, e.g. "http://qdrant:6333".
	URL string `yaml:"url" env:"QDRANT_URL" env-default:"http://localhost:6333"`

	// CollectionPrefix is the base collection name; the full name is
	// derived from the embedding model and dimensions.
	CollectionPrefix string `yaml:"collection_prefix" env:"QDRANT_COLLECTION_PREFIX" env-default:"medmap_vocab"`
}

// AIConfig holds model endpoints for arbitration and embeddings.
// The arbitration provider is either "openai" (any OpenAI-compatible
// endpoint) or "anthropic". Embeddings always come from the
// OpenAI-compatible endpoint.
type AIConfig struct {
	Provider        string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	LLMBaseURL      string `yaml:"llm_base_url" env:"AI_LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	LLMModel        string `yaml:"llm_model" env:"AI_LLM_MODEL" env-default:"gpt-4.1"`
	EmbeddingModel  string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-large"`
	EmbeddingDims   int    `yaml:"embedding_dims" env:"AI_EMBEDDING_DIMS" env-default:"1024"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`     // Secret - not in YAML
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`  // Secret - not in YAML
}

// MappingConfig holds default knobs for the auto-mapping pipeline.
type MappingConfig struct {
	// ConfidenceThreshold gates automatic acceptance (inclusive, 1-10).
	ConfidenceThreshold int `yaml:"confidence_threshold" env:"MAPPING_CONFIDENCE_THRESHOLD" env-default:"8"`

	// DrugCandidates is the candidate pool size for ATC-filtered searches.
	DrugCandidates int `yaml:"drug_candidates" env:"MAPPING_DRUG_CANDIDATES" env-default:"30"`

	// StandardCandidates is the pool size for unfiltered searches. Smaller
	// because candidate quality from an unfiltered search is lower-signal.
	StandardCandidates int `yaml:"standard_candidates" env:"MAPPING_STANDARD_CANDIDATES" env-default:"15"`

	// BatchSize is used by bulk embedding runs.
	BatchSize int `yaml:"batch_size" env:"MAPPING_BATCH_SIZE" env-default:"100"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mapping.ConfidenceThreshold < 1 || c.Mapping.ConfidenceThreshold > 10 {
		return fmt.Errorf("mapping.confidence_threshold must be in [1,10], got %d", c.Mapping.ConfidenceThreshold)
	}
	if c.AI.EmbeddingDims <= 0 {
		return fmt.Errorf("ai.embedding_dims must be positive, got %d", c.AI.EmbeddingDims)
	}
	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("ai.provider must be openai or anthropic, got %q", c.AI.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns a postgres:// URL for tooling that requires one.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// CollectionName derives the vector collection name from the configured
// embedding model and dimensions. Dimension changes therefore land in a
// fresh collection instead of colliding with an existing one.
func (c *Config) CollectionName() string {
	model := strings.ReplaceAll(strings.TrimPrefix(c.AI.EmbeddingModel, "text-embedding-"), "-", "")
	return fmt.Sprintf("%s_%s_%d", c.Vector.CollectionPrefix, model, c.AI.EmbeddingDims)
}
