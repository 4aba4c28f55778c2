// Package bootstrap assembles the grading core from configuration. Both the
// HTTP server and the CLI build their services through it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/database"
	"github.com/noah-isme/gema-autograder/internal/docx"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/internal/repository"
	"github.com/noah-isme/gema-autograder/internal/service"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

// Core holds the wired grading services and the connections they own.
type Core struct {
	Grader    ai.Grader
	Extractor service.ContentExtractor
	History   service.HistoryService
	Events    service.QueueEventService
	Queue     service.GradingQueueService

	redis   *redis.Client
	nats    *nats.Conn
	closers []func() error
}

// Options adjusts how the core is assembled.
type Options struct {
	// WithBroker enables Redis and NATS fan-out of queue snapshots when configured.
	WithBroker bool
	// Grader overrides the configured provider.
	Grader ai.Grader
}

// NewCore connects the configured backends, loads history and builds the queue engine.
func NewCore(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Core, error) {
	core := &Core{}

	grader := opts.Grader
	if grader == nil {
		var err error
		grader, err = ai.NewGrader(ai.ProviderConfig{
			Provider:       cfg.AIProvider,
			APIKey:         cfg.AIAPIKey,
			BaseURL:        cfg.AIBaseURL,
			Model:          cfg.AIModel,
			MaxTokens:      cfg.AIMaxTokens,
			Temperature:    cfg.AITemperature,
			RecomputeScore: cfg.GradingRecomputeScore,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("configure grader: %w", err)
		}
	}
	core.Grader = grader

	repo, err := core.historyRepository(ctx, cfg)
	if err != nil {
		_ = core.Close()
		return nil, err
	}

	if opts.WithBroker {
		if err := core.connectBroker(ctx, cfg, logger); err != nil {
			_ = core.Close()
			return nil, err
		}
	}

	core.Extractor = service.NewContentExtractor(docx.NewConverter(), logger)
	core.History = service.NewHistoryService(repo, logger)
	core.History.Load(ctx)
	core.Events = service.NewQueueEventService(core.redis, core.nats, cfg.EventsChannel, logger)
	if opts.WithBroker {
		eventsCtx, stopEvents := context.WithCancel(ctx)
		core.closers = append(core.closers, func() error {
			stopEvents()
			return nil
		})
		core.Events.Start(eventsCtx)
	}
	core.Queue = service.NewGradingQueueService(core.Extractor, core.Grader, core.History, core.Events, logger, service.GradingQueueConfig{
		ItemDelay:   cfg.GradingItemDelay,
		ItemTimeout: cfg.GradingTimeout,
	})

	return core, nil
}

func (c *Core) historyRepository(ctx context.Context, cfg config.Config) (repository.HistoryRepository, error) {
	switch cfg.HistoryDriver {
	case config.HistoryDriverRedis:
		client, err := c.redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisHistoryRepository(client, cfg.HistoryRedisKey), nil
	case config.HistoryDriverSQLite:
		return c.sqlHistoryRepository(database.DriverSQLite, cfg.HistorySQLite)
	case config.HistoryDriverPostgres:
		return c.sqlHistoryRepository(database.DriverPostgres, cfg.DatabaseURL)
	default:
		return repository.NewFileHistoryRepository(cfg.HistoryPath), nil
	}
}

func (c *Core) sqlHistoryRepository(driver, dsn string) (repository.HistoryRepository, error) {
	db, err := database.OpenSQL(driver, dsn)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		c.closers = append(c.closers, sqlDB.Close)
	}
	if err := db.AutoMigrate(&models.HistoryItem{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history table: %w", err)
	}
	return repository.NewHistoryRepository(db), nil
}

func (c *Core) redisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if c.redis != nil {
		return c.redis, nil
	}
	client, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	c.redis = client
	c.closers = append(c.closers, client.Close)
	return client, nil
}

func (c *Core) connectBroker(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.RedisURL != "" {
		if _, err := c.redisClient(ctx, cfg); err != nil {
			return err
		}
	}
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return err
		}
		c.nats = conn
		c.closers = append(c.closers, func() error {
			return conn.Drain()
		})
		logger.Info().Str("url", cfg.NATSURL).Msg("nats connected for queue events")
	}
	return nil
}

// Close releases every connection opened by NewCore.
func (c *Core) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
