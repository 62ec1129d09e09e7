package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/bootstrap"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/config"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/handlers"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/logger"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/telemetry"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/workers"
	"go.uber.org/zap"
)

const serviceName = "slack-to-obsidian-server"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load(config.RoleServer)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("queue_enabled", cfg.QueueEnabled()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	st, err := bootstrap.OpenStore(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_open_store", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zapLogger.Warn("failed_to_close_store", zap.Error(err))
		}
	}()

	orchestrator := bootstrap.NewOrchestrator(cfg, st.Todos, zapLogger, debugMode)

	checks := map[string]handlers.Pinger{"store": st.Todos}

	// captures run on the queue when one is configured, in process otherwise
	var scheduler workers.Scheduler
	var inline *workers.InlineScheduler
	if cfg.QueueEnabled() {
		jobQueue, err := bootstrap.ConnectQueue(ctx, cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		scheduler = workers.NewQueueScheduler(jobQueue)
		checks["queue"] = handlers.PingFunc(jobQueue.HealthCheck)
	} else {
		inline = workers.NewInlineScheduler(workers.NewProcessor(orchestrator, zapLogger), zapLogger)
		scheduler = inline
	}

	if st.Purger != nil {
		janitor := workers.NewJanitor(st.Purger, cfg.PurgeInterval, zapLogger)
		go func() {
			if err := janitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("janitor_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_janitor", zap.Duration("interval", cfg.PurgeInterval))
	}

	router, err := newRouter(cfg, routerDeps{
		slack:  handlers.NewSlackHandler(cfg.SlackSigningSecret, orchestrator, orchestrator, scheduler, zapLogger),
		todos:  handlers.NewTodoHandler(st.Todos, zapLogger),
		health: handlers.NewHealthChecker(checks, zapLogger),
		redis:  st.Redis,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("server_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.BackgroundCeiling)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	if inline != nil {
		// whatever is still running at the ceiling is dropped
		if err := inline.Shutdown(shutdownCtx); err != nil {
			zapLogger.Warn("background_jobs_abandoned", zap.Error(err))
		}
	}

	zapLogger.Info("server_exited")
}
