package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Speaker selection strategies for the group chat manager.
const (
	SpeakerAuto       = "auto"
	SpeakerRoundRobin = "round_robin"
)

// Archive backends for closed session transcripts.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// Config is the complete process configuration.
// Precedence: defaults, then the YAML file, then environment variables.
type Config struct {
	Model            ModelConfig      `yaml:"model"`
	AllowedModels    []string         `yaml:"allowed_models"`
	RoundBudget      int              `yaml:"round_budget"`
	SpeakerSelection string           `yaml:"speaker_selection"`
	MaxContextTokens int              `yaml:"max_context_tokens"`
	Execution        ExecutionConfig  `yaml:"execution"`
	HumanInput       HumanInputConfig `yaml:"human_input"`
	DataSource       DataSourceConfig `yaml:"data_source"`
	Server           ServerConfig     `yaml:"server"`
	Store            StoreConfig      `yaml:"store"`
	Telemetry        TelemetryConfig  `yaml:"telemetry"`
}

// ModelConfig is the model-access configuration shared by every agent of a session.
type ModelConfig struct {
	Model       string        `yaml:"model" json:"model"`
	APIKey      string        `yaml:"api_key" json:"api_key"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"-"`
	RetryWait   time.Duration `yaml:"retry_wait" json:"-"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries,omitempty"`
	CacheSeed   int64         `yaml:"cache_seed" json:"cache_seed,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens,omitempty"`
}

// ExecutionConfig controls how the runner agent executes code blocks.
type ExecutionConfig struct {
	LastNMessages int           `yaml:"last_n_messages"`
	WorkDir       string        `yaml:"work_dir"`
	UseDocker     bool          `yaml:"use_docker"`
	Image         string        `yaml:"image"`
	Timeout       time.Duration `yaml:"timeout"`
}

// HumanInputConfig bounds how long the bridge waits on the UI.
type HumanInputConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// DataSourceConfig is the document the planner is told to work against.
type DataSourceConfig struct {
	URL     string `yaml:"url"`
	Preview bool   `yaml:"preview"`
}

// ServerConfig configures the UI layer.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MCPPath           string        `yaml:"mcp_path"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
	MessagesPerSecond float64       `yaml:"messages_per_second"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the transcript archive backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
	Table    string `yaml:"table"`
}

// DSN renders a lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type TelemetryConfig struct {
	Disable     bool   `yaml:"disable"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// DefaultAllowedModels lists the models the provider router serves.
var DefaultAllowedModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
	"claude-sonnet-4-5-20250929",
	"claude-3-5-haiku-latest",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		AllowedModels: slices.Clone(DefaultAllowedModels),
		Model: ModelConfig{
			Model:       "gpt-4o-mini",
			Timeout:     120 * time.Second,
			RetryWait:   10 * time.Second,
			MaxRetries:  3,
			CacheSeed:   42,
			Temperature: 0,
			MaxTokens:   1024,
		},
		RoundBudget:      50,
		SpeakerSelection: SpeakerAuto,
		MaxContextTokens: 8000,
		Execution: ExecutionConfig{
			LastNMessages: 3,
			WorkDir:       "workspace",
			UseDocker:     true,
			Image:         "python:3-slim",
			Timeout:       60 * time.Second,
		},
		HumanInput: HumanInputConfig{
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		DataSource: DataSourceConfig{
			URL: "https://www.w3schools.com/xml/simple.xml",
		},
		Server: ServerConfig{
			Addr:              ":8080",
			MCPPath:           "/mcp",
			MaxConcurrentRuns: 16,
			MessagesPerSecond: 5,
			ShutdownTimeout:   10 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "ai-groupchat:session:",
				TTL:    24 * time.Hour,
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "ai_groupchat",
				Collection: "sessions",
			},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "ai_groupchat",
				SSLMode: "disable",
				Table:   "session_transcripts",
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "ai-groupchat",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file at path,
// and environment overrides, then validates everything except model access.
// Model access is resolved per session by ResolveModel.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Model.Model = getEnv("GROUPCHAT_MODEL", c.Model.Model)
	c.Model.APIKey = getEnv("GROUPCHAT_API_KEY", getEnv("OPENAI_API_KEY", c.Model.APIKey))
	c.Model.BaseURL = getEnv("GROUPCHAT_BASE_URL", c.Model.BaseURL)
	c.Model.Timeout = getEnvDuration("GROUPCHAT_MODEL_TIMEOUT", c.Model.Timeout)
	c.Model.RetryWait = getEnvDuration("GROUPCHAT_RETRY_WAIT", c.Model.RetryWait)
	c.Model.MaxRetries = getEnvInt("GROUPCHAT_MAX_RETRIES", c.Model.MaxRetries)
	c.Model.CacheSeed = int64(getEnvInt("GROUPCHAT_CACHE_SEED", int(c.Model.CacheSeed)))
	if allowed := getEnv("GROUPCHAT_ALLOWED_MODELS", ""); allowed != "" {
		c.AllowedModels = splitList(allowed)
	}

	c.RoundBudget = getEnvInt("GROUPCHAT_ROUND_BUDGET", c.RoundBudget)
	c.SpeakerSelection = getEnv("GROUPCHAT_SPEAKER_SELECTION", c.SpeakerSelection)

	c.Execution.WorkDir = getEnv("GROUPCHAT_WORK_DIR", c.Execution.WorkDir)
	c.Execution.UseDocker = getEnvBool("GROUPCHAT_USE_DOCKER", c.Execution.UseDocker)
	c.Execution.Image = getEnv("GROUPCHAT_DOCKER_IMAGE", c.Execution.Image)

	c.DataSource.URL = getEnv("GROUPCHAT_DATA_URL", c.DataSource.URL)

	c.Server.Addr = getEnv("GROUPCHAT_ADDR", c.Server.Addr)

	c.Store.Backend = getEnv("GROUPCHAT_STORE", c.Store.Backend)
	c.Store.Redis.Addr = getEnv("REDIS_SESSION_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnv("REDIS_SESSION_PASSWORD", c.Store.Redis.Password)
	c.Store.Redis.DB = getEnvInt("REDIS_SESSION_DB", c.Store.Redis.DB)
	c.Store.Mongo.URI = getEnv("MONGODB_URI", c.Store.Mongo.URI)
	c.Store.Postgres.Host = getEnv("POSTGRES_HOST", c.Store.Postgres.Host)
	c.Store.Postgres.Port = getEnvInt("POSTGRES_PORT", c.Store.Postgres.Port)
	c.Store.Postgres.User = getEnv("POSTGRES_USER", c.Store.Postgres.User)
	c.Store.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Store.Postgres.Password)
	c.Store.Postgres.DBName = getEnv("POSTGRES_DB", c.Store.Postgres.DBName)

	c.Telemetry.Disable = getEnvBool("GROUPCHAT_TELEMETRY_DISABLE", c.Telemetry.Disable)
	c.Telemetry.Environment = getEnv("GROUPCHAT_ENV", c.Telemetry.Environment)
}

// Validate checks every section that does not depend on model credentials.
func (c *Config) Validate() error {
	v := NewValidator()
	v.RequireNonEmptyList("allowed_models", c.AllowedModels)
	v.RequirePositive("round_budget", c.RoundBudget)
	v.ValidateOneOf("speaker_selection", c.SpeakerSelection, SpeakerAuto, SpeakerRoundRobin)
	v.RequirePositive("human_input.max_attempts", c.HumanInput.MaxAttempts)
	v.RequirePositiveDuration("human_input.timeout", c.HumanInput.Timeout)
	v.RequireNonEmpty("data_source.url", c.DataSource.URL)
	v.ValidateOneOf("store.backend", c.Store.Backend, StoreMemory, StoreRedis, StoreMongo, StorePostgres)
	if err := v.Error(); err != nil {
		return err
	}

	if err := ValidateExecutionConfig(c.Execution); err != nil {
		return err
	}
	if err := ValidateServerConfig(c.Server); err != nil {
		return err
	}
	switch c.Store.Backend {
	case StoreRedis:
		return ValidateRedisConfig(c.Store.Redis)
	case StoreMongo:
		return ValidateMongoDBConfig(c.Store.Mongo)
	case StorePostgres:
		return ValidatePostgresConfig(c.Store.Postgres)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
