package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/bootstrap"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/handler"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.NewCore(rootCtx, cfg, logger, bootstrap.Options{WithBroker: true})
	if err != nil {
		log.Fatalf("failed to initialise grading core: %v", err)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close connections")
		}
	}()

	validate := validator.New(validator.WithRequiredStructEnabled())

	queueHandler := handler.NewGradingQueueHandler(core.Queue, core.Events, validate, logger, handler.GradingQueueHandlerOptions{
		DrainContext: rootCtx,
		StartLimiter: middleware.RateLimit("grading_start", cfg.StartRateLimit, cfg.StartRateWindow),
	})
	historyHandler := handler.NewGradingHistoryHandler(core.History, core.Queue, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.UploadLimitBytes(),
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		GradingQueueHandler:   queueHandler,
		GradingHistoryHandler: historyHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Str("history_driver", cfg.HistoryDriver).Msg("grading api listening")
	waitForShutdown(rootCtx, app)
}

func waitForShutdown(rootCtx context.Context, app *fiber.App) {
	<-rootCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
