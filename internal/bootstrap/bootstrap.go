// Package bootstrap wires configuration into the store, queue and capture
// collaborators shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/capture"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/config"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/database"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/queue"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/services/ai"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/workers"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is an opened todo store together with what the backend offers
// beyond the KV contract.
type Store struct {
	Todos *store.TodoStore
	// Redis is set for the redis backend, so the rate limiter can share it
	Redis *redis.Client
	// Purger is set for backends that need expired rows collected
	Purger workers.Purger

	closers []func() error
}

// Close releases the backend connections
func (s *Store) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore connects the configured KV backend
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		kv, err := store.NewRedisKV(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("connected_to_redis")
		return &Store{
			Todos:   store.NewTodoStore(kv),
			Redis:   kv.Client(),
			closers: []func() error{kv.Close},
		}, nil

	case config.StorePostgres:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		kv := database.NewPostgresKV(db)
		if err := kv.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("connected_to_database")
		return &Store{
			Todos:   store.NewTodoStore(kv),
			Purger:  kv,
			closers: []func() error{db.Close},
		}, nil

	case config.StoreMemory:
		logger.Warn("using_memory_store", zap.String("note", "records are lost on restart"))
		return &Store{Todos: store.NewTodoStore(store.NewMemoryKV())}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Queue connection retry, for brokers that start after the app
const (
	queueConnectAttempts = 10
	queueInitialDelay    = 2 * time.Second
	queueMaxDelay        = 30 * time.Second
)

// ConnectQueue dials RabbitMQ, retrying with exponential backoff
func ConnectQueue(ctx context.Context, amqpURL string, logger *zap.Logger) (*queue.RabbitMQQueue, error) {
	var q *queue.RabbitMQQueue
	err := retry(ctx, queueConnectAttempts, queueInitialDelay, logger, func() error {
		var err error
		q, err = queue.NewRabbitMQQueue(amqpURL, logger)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected_to_rabbitmq")
	return q, nil
}

func retry(ctx context.Context, attempts int, delay time.Duration, logger *zap.Logger, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up connecting: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, queueMaxDelay)
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// NewSummarizer returns the LLM summarizer, or the truncating fallback when
// no API key is configured.
func NewSummarizer(cfg *config.Config, logger *zap.Logger, debugMode bool) ai.Summarizer {
	if cfg.OpenAIKey == "" {
		logger.Warn("summarizer_disabled", zap.String("reason", "OPENAI_API_KEY not set"))
		return ai.FallbackSummarizer{}
	}
	s := ai.NewOpenAISummarizer(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModels, logger, debugMode)
	logger.Info("summarizer_initialized", zap.Strings("models", s.Models()))
	return s
}

// NewOrchestrator builds the capture orchestrator over todos
func NewOrchestrator(cfg *config.Config, todos capture.TodoRepository, logger *zap.Logger, debugMode bool) *capture.Orchestrator {
	chat := slack.NewClient(cfg.SlackBotToken,
		slack.WithBaseURL(cfg.SlackAPIURL),
		slack.WithLogger(logger),
	)
	return capture.New(
		capture.Config{AllowedUserID: cfg.AllowedUserID, TriggerEmoji: cfg.TriggerEmoji},
		todos,
		chat,
		NewSummarizer(cfg, logger, debugMode),
		logger,
	)
}
