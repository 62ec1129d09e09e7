package main

import (
	"fmt"
	"net/http"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/config"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/handlers"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

type routerDeps struct {
	slack  *handlers.SlackHandler
	todos  *handlers.TodoHandler
	health *handlers.HealthChecker
	// redis backs the rate limiter when set
	redis *redis.Client
}

// newRouter assembles the middleware chain and routes. Router middleware
// runs in registration order, outermost first.
func newRouter(cfg *config.Config, deps routerDeps, logger *zap.Logger) (http.Handler, error) {
	r := mux.NewRouter()

	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorHandler(logger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, logger))

	deps.health.RegisterRoutes(r)
	deps.slack.RegisterRoutes(r)

	openAPI, err := handlers.NewOpenAPIHandler()
	if err != nil {
		return nil, err
	}
	openAPI.RegisterRoutes(r)

	rateLimit, err := middleware.RateLimit(deps.redis, cfg.APIRateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	todosRouter := r.PathPrefix("/api/todos").Subrouter()
	todosRouter.Use(rateLimit)
	todosRouter.Use(middleware.BearerAuth(cfg.KVAPIToken, logger))
	todosRouter.Use(middleware.RequireJSON(logger))
	deps.todos.RegisterRoutes(todosRouter)

	// preflights never match a route, so CORS wraps the router itself
	return middleware.CORS()(r), nil
}
