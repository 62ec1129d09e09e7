// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Role selects which settings Load insists on
type Role int

const (
	// RoleServer is the webhook and API server
	RoleServer Role = iota
	// RoleWorker consumes queued capture jobs
	RoleWorker
	// RoleCLI is the operator tool, which only touches the store
	RoleCLI
)

// Config holds application configuration
type Config struct {
	SlackSigningSecret string
	SlackBotToken      string
	SlackAPIURL        string
	AllowedUserID      string
	TriggerEmoji       string
	KVAPIToken         string

	StoreBackend     string
	RedisURL         string
	DatabaseURL      string
	RabbitMQURL      string
	RabbitMQPrefetch int

	OpenAIKey string
	AIBaseURL string
	AIModels  []string

	ServerPort        string
	EnableHSTS        bool
	APIRateLimit      string
	BackgroundCeiling time.Duration
	PurgeInterval     time.Duration
	ServerDebugMode   bool
	WorkerDebugMode   bool
	OTELEnabled       bool
	OTELEndpoint      string
}

// Load loads configuration from environment variables
func Load(role Role) (*Config, error) {
	return load(role, os.Getenv)
}

func load(role Role, getenv func(string) string) (*Config, error) {
	env := environment(getenv)
	cfg := &Config{
		SlackSigningSecret: env.get("SLACK_SIGNING_SECRET", ""),
		SlackBotToken:      env.get("SLACK_BOT_TOKEN", ""),
		SlackAPIURL:        env.get("SLACK_API_URL", "https://slack.com/api"),
		AllowedUserID:      env.get("ALLOWED_USER_ID", ""),
		TriggerEmoji:       strings.Trim(env.get("TRIGGER_EMOJI", "memo"), ":"),
		KVAPIToken:         env.get("KV_API_TOKEN", ""),
		StoreBackend:       strings.ToLower(env.get("STORE_BACKEND", StoreRedis)),
		RedisURL:           env.get("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:        env.get("DATABASE_URL", ""),
		RabbitMQURL:        env.get("RABBITMQ_URL", ""),
		RabbitMQPrefetch:   env.getInt("RABBITMQ_PREFETCH", 1),
		OpenAIKey:          env.get("OPENAI_API_KEY", ""),
		AIBaseURL:          env.get("AI_BASE_URL", ""),
		AIModels:           splitList(env.get("AI_MODELS", "")),
		ServerPort:         env.get("SERVER_PORT", "8080"),
		EnableHSTS:         env.getBool("ENABLE_HSTS", false),
		APIRateLimit:       env.get("API_RATE_LIMIT", "30-M"),
		BackgroundCeiling:  env.getDuration("BACKGROUND_CEILING", 30*time.Second),
		PurgeInterval:      env.getDuration("PURGE_INTERVAL", time.Hour),
		ServerDebugMode:    env.getBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode:    env.getBool("WORKER_DEBUG_MODE", false),
		OTELEnabled:        env.getBool("OTEL_ENABLED", false),
		OTELEndpoint:       env.get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.validate(role); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(role Role) error {
	switch c.StoreBackend {
	case StoreRedis, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be redis, postgres or memory, got %q", c.StoreBackend)
	}
	if c.StoreBackend == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
	}

	switch role {
	case RoleServer:
		if err := require(
			"SLACK_SIGNING_SECRET", c.SlackSigningSecret,
			"SLACK_BOT_TOKEN", c.SlackBotToken,
			"ALLOWED_USER_ID", c.AllowedUserID,
			"KV_API_TOKEN", c.KVAPIToken,
		); err != nil {
			return err
		}
		if c.RabbitMQURL != "" && c.StoreBackend == StoreMemory {
			return fmt.Errorf("STORE_BACKEND=memory cannot be shared with a queue worker; unset RABBITMQ_URL")
		}
	case RoleWorker:
		if err := require(
			"SLACK_BOT_TOKEN", c.SlackBotToken,
			"ALLOWED_USER_ID", c.AllowedUserID,
			"RABBITMQ_URL", c.RabbitMQURL,
		); err != nil {
			return err
		}
		if c.StoreBackend == StoreMemory {
			return fmt.Errorf("the worker needs a shared store, STORE_BACKEND=memory is not supported")
		}
	case RoleCLI:
	}

	if c.BackgroundCeiling <= 0 {
		return fmt.Errorf("BACKGROUND_CEILING must be positive")
	}
	if c.RabbitMQPrefetch < 1 {
		return fmt.Errorf("RABBITMQ_PREFETCH must be at least 1")
	}
	return nil
}

// require takes name, value pairs and fails on the first empty value
func require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}

// QueueEnabled reports whether captures go through RabbitMQ
func (c *Config) QueueEnabled() bool {
	return c.RabbitMQURL != ""
}

type environment func(string) string

func (e environment) get(key, defaultValue string) string {
	if value := strings.TrimSpace(e(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e environment) getBool(key string, defaultValue bool) bool {
	if value := e.get(key, ""); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e environment) getInt(key string, defaultValue int) int {
	if value := e.get(key, ""); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e environment) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := e.get(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
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
