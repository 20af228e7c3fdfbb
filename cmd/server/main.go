package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/RoiLaboratories/Tower-Exchange/internal/activity"
	"github.com/RoiLaboratories/Tower-Exchange/internal/auth"
	"github.com/RoiLaboratories/Tower-Exchange/internal/chain"
	"github.com/RoiLaboratories/Tower-Exchange/internal/config"
	"github.com/RoiLaboratories/Tower-Exchange/internal/database"
	"github.com/RoiLaboratories/Tower-Exchange/internal/engine"
	"github.com/RoiLaboratories/Tower-Exchange/internal/orders"
	"github.com/RoiLaboratories/Tower-Exchange/internal/quotes"
	"github.com/RoiLaboratories/Tower-Exchange/internal/tokens"
	"github.com/RoiLaboratories/Tower-Exchange/pkg/middleware"
)

// init configures application logging. Development gets pretty
// printing; DEBUG=true enables debug level.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the recurring-swap service: database, order management
// API, execution engine, and the engine clock, with graceful shutdown.
func main() {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	registry := tokens.NewRegistry(cfg.SupportedTokens)
	orders.RegisterValidators(registry)

	router := gin.Default()

	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	activityService := activity.NewService(db)
	activityHandlers := activity.NewGinHandlers(activityService)

	orderService := orders.NewService(db, activityService, registry)
	orderHandlers := orders.NewGinHandlers(orderService)

	quoteClient := quotes.NewClient(cfg.QuoteAPIURL, os.Getenv("QUOTE_API_KEY"), cfg.APICallTimeout)
	submitter := chain.NewClient(cfg.SwapAPIURL, cfg.OrderExecutionTimeout)

	executionEngine := engine.New(
		orderService.Database(),
		quoteClient,
		submitter,
		activityService,
		registry,
		engine.Config{
			MaxOrdersPerRun:       cfg.MaxOrdersPerRun,
			APICallTimeout:        cfg.APICallTimeout,
			OrderExecutionTimeout: cfg.OrderExecutionTimeout,
			MaxRetryAttempts:      cfg.MaxRetryAttempts,
			RetryBaseDelay:        cfg.RetryBaseDelay,
			Concurrency:           cfg.Concurrency,
			RunLeaseTTL:           cfg.RunLeaseTTL,
		},
	)
	engineHandlers := engine.NewGinHandlers(executionEngine)

	clock, err := engine.NewClock(executionEngine, cfg.RunSchedule)
	if err != nil {
		zlog.Fatal().Err(err).Str("schedule", cfg.RunSchedule).Msg("Invalid run schedule")
	}
	clock.Start()
	defer clock.Stop()

	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg.JWTSecret, authHandlers, orderHandlers, activityHandlers, engineHandlers)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes groups endpoints by audience: public auth, wallet-scoped
// order management, and internal operator routes.
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	activityHandlers *activity.GinHandlers,
	engineHandlers *engine.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("", orderHandlers.ListOrdersHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
			orderGroup.GET("/:order_id/executions", orderHandlers.ListExecutionsHandler())
		}

		activityGroup := v1.Group("/activity")
		activityGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			activityGroup.GET("", activityHandlers.ListActivityHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/run", engineHandlers.TriggerRunHandler())
		}
	}
}
