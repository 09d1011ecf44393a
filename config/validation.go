package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	errorskg "github.com/sweetpotato0/ai-groupchat/errors"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator accumulates configuration validation failures
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, format string, args ...any) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	return v
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.add(field, "value must be positive, got %d", value)
	}
	return v
}

// RequirePositiveDuration validates that a duration is greater than 0
func (v *Validator) RequirePositiveDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		v.add(field, "duration must be positive, got %s", value)
	}
	return v
}

// ValidateRange validates that an integer field is within [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.add(field, "value must be between %d and %d, got %d", min, max, value)
	}
	return v
}

// ValidateFloatRange validates that a float field is within [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.add(field, "value must be between %.2f and %.2f, got %.2f", min, max, value)
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber validates that a database number is valid (0-15 for Redis)
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, "value must be one of %v, got %q", allowed, value)
}

// RequireNonEmptyList validates that a list has at least one non-blank item
func (v *Validator) RequireNonEmptyList(field string, values []string) *Validator {
	for _, s := range values {
		if strings.TrimSpace(s) != "" {
			return v
		}
	}
	return v.add(field, "must list at least one value")
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error wrapping ErrInvalidConfig, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var b strings.Builder
	for _, e := range v.errors {
		fmt.Fprintf(&b, "\n  - %s: %s", e.Field, e.Message)
	}
	return fmt.Errorf("%w:%s", errorskg.ErrInvalidConfig, b.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ValidateModelConfig validates model-access configuration. The model must be
// in allowed; an empty allow-list admits no model.
func ValidateModelConfig(cfg ModelConfig, allowed []string) error {
	v := NewValidator()
	v.RequireNonEmpty("model.model", cfg.Model)
	v.RequireNonEmpty("model.api_key", cfg.APIKey)
	v.ValidateFloatRange("model.temperature", cfg.Temperature, 0.0, 2.0)
	v.RequirePositive("model.max_tokens", cfg.MaxTokens)
	v.RequirePositiveDuration("model.timeout", cfg.Timeout)
	v.ValidateRange("model.max_retries", cfg.MaxRetries, 0, 20)
	if err := v.Error(); err != nil {
		return err
	}
	return CheckAllowed(cfg.Model, allowed)
}

// CheckAllowed returns ErrModelNotAllowed unless model is in allowed.
func CheckAllowed(model string, allowed []string) error {
	if len(allowed) == 0 {
		return fmt.Errorf("%w: %q: allow-list is empty", errorskg.ErrModelNotAllowed, model)
	}
	if !slices.Contains(allowed, model) {
		return fmt.Errorf("%w: %q not in %v", errorskg.ErrModelNotAllowed, model, allowed)
	}
	return nil
}

// ValidateExecutionConfig validates code execution configuration
func ValidateExecutionConfig(cfg ExecutionConfig) error {
	v := NewValidator()
	v.RequirePositive("execution.last_n_messages", cfg.LastNMessages)
	v.RequireNonEmpty("execution.work_dir", cfg.WorkDir)
	v.RequirePositiveDuration("execution.timeout", cfg.Timeout)
	if cfg.UseDocker {
		v.RequireNonEmpty("execution.image", cfg.Image)
	}
	return v.Error()
}

// ValidatePostgresConfig validates PostgreSQL configuration
func ValidatePostgresConfig(cfg PostgresConfig) error {
	v := NewValidator()

	v.RequireNonEmpty("store.postgres.host", cfg.Host)
	v.ValidatePort("store.postgres.port", cfg.Port)
	v.RequireNonEmpty("store.postgres.user", cfg.User)
	v.RequireNonEmpty("store.postgres.db_name", cfg.DBName)
	v.RequireNonEmpty("store.postgres.table", cfg.Table)
	v.ValidateOneOf("store.postgres.ssl_mode", cfg.SSLMode, "disable", "require", "verify-ca", "verify-full")

	return v.Error()
}

// ValidateRedisConfig validates Redis configuration
func ValidateRedisConfig(cfg RedisConfig) error {
	v := NewValidator()

	v.RequireNonEmpty("store.redis.addr", cfg.Addr)
	v.ValidateDBNumber("store.redis.db", cfg.DB)
	v.RequireNonEmpty("store.redis.prefix", cfg.Prefix)

	return v.Error()
}

// ValidateMongoDBConfig validates MongoDB configuration
func ValidateMongoDBConfig(cfg MongoConfig) error {
	v := NewValidator()

	v.RequireNonEmpty("store.mongo.uri", cfg.URI)
	v.RequireNonEmpty("store.mongo.database", cfg.Database)
	v.RequireNonEmpty("store.mongo.collection", cfg.Collection)

	return v.Error()
}

// ValidateServerConfig validates the UI server configuration
func ValidateServerConfig(cfg ServerConfig) error {
	v := NewValidator()
	v.RequireNonEmpty("server.addr", cfg.Addr)
	v.RequirePositive("server.max_concurrent_runs", cfg.MaxConcurrentRuns)
	v.ValidateFloatRange("server.messages_per_second", cfg.MessagesPerSecond, 0.1, 1000)
	if cfg.MCPPath != "" && !strings.HasPrefix(cfg.MCPPath, "/") {
		v.add("server.mcp_path", "path must start with /, got %q", cfg.MCPPath)
	}
	return v.Error()
}
