package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/api"
	"github.com/gary-ai/backend/internal/api/middleware"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
	"github.com/gary-ai/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Setup logging
	log := logger.InitLogger("", cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize services
	cacheService := services.NewCacheService(redisClient)

	oddsClient := providers.NewOddsClient(cfg.OddsAPIKey, cfg.ExternalAPITimeout, cfg.CircuitBreakerThreshold, log)
	sportsDBClient := providers.NewSportsDBClient(cfg.TheSportsDBAPIKey, cfg.ExternalAPITimeout, cfg.SportsDBCacheTTL, cacheService, log)

	openaiClient := services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.AIRateLimit, cfg.CircuitBreakerThreshold, log)
	perplexityClient := services.NewPerplexityClient(cfg.PerplexityAPIKey, cfg.PerplexityModel, cfg.PerplexityModels, cfg.AIRateLimit, cfg.CircuitBreakerThreshold, log)

	analysisService := services.NewAnalysisService(openaiClient, perplexityClient, cacheService, log)
	picksService := services.NewPicksService(db, cacheService, oddsClient, analysisService, cfg, log)
	resultsService := services.NewResultsService(db, sportsDBClient, log)
	stripeService := services.NewStripeService(db, cfg, log)

	// Start the daily generation/grading scheduler
	scheduler := services.NewSchedulerService(db, picksService, resultsService, cfg, log)
	if cfg.EnableScheduler {
		if err := scheduler.Start(); err != nil {
			log.Errorf("Failed to start scheduler: %v", err)
		}
		defer scheduler.Stop()
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.CorsOrigins))

	api.SetupRoutes(router, &api.Dependencies{
		DB:         db,
		Cache:      cacheService,
		Picks:      picksService,
		Results:    resultsService,
		Stripe:     stripeService,
		Scheduler:  scheduler,
		OpenAI:     openaiClient,
		Perplexity: perplexityClient,
		Odds:       oddsClient,
		SportsDB:   sportsDBClient,
		Config:     cfg,
		Logger:     log,
	})

	// Setup server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
