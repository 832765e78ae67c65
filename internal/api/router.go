package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gary-ai/backend/internal/api/handlers"
	"github.com/gary-ai/backend/internal/api/middleware"
	"github.com/gary-ai/backend/internal/providers"
	"github.com/gary-ai/backend/internal/services"
	"github.com/gary-ai/backend/pkg/config"
	"github.com/gary-ai/backend/pkg/database"
	"github.com/gary-ai/backend/pkg/metrics"
)

// Dependencies carries the wired services the routes dispatch to.
type Dependencies struct {
	DB         *database.DB
	Cache      *services.CacheService
	Picks      *services.PicksService
	Results    *services.ResultsService
	Stripe     *services.StripeService
	Scheduler  *services.SchedulerService
	OpenAI     *services.OpenAIClient
	Perplexity *services.PerplexityClient
	Odds       *providers.OddsClient
	SportsDB   *providers.SportsDBClient
	Config     *config.Config
	Logger     *logrus.Logger
}

// SetupRoutes configures all routes on the given engine. The HTTP surface
// mirrors the serverless endpoints the front end already calls, so paths
// live under /api without a version segment.
func SetupRoutes(router *gin.Engine, deps *Dependencies) {
	picksHandler := handlers.NewPicksHandler(deps.Picks, deps.Logger)
	resultsHandler := handlers.NewResultsHandler(deps.Results, deps.Logger)
	billingHandler := handlers.NewBillingHandler(deps.Stripe, deps.Logger)
	proxyHandler := handlers.NewProxyHandler(deps.OpenAI, deps.Perplexity, deps.Odds, deps.SportsDB, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Cache, deps.Scheduler)

	authMiddleware := middleware.NewAuthMiddleware(deps.Config.SupabaseJWTSecret)
	proxyLimiter := middleware.NewClientRateLimiter(deps.Config.ProxyRateLimit, time.Minute)

	// Probes and metrics at root level.
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		// Picks
		api.GET("/picks", picksHandler.GetPicks)

		// Results ledger
		api.GET("/results", resultsHandler.GetResults)

		// Billing
		api.POST("/create-checkout-session", billingHandler.CreateCheckoutSession)
		api.POST("/webhook", billingHandler.HandleWebhook)
		api.GET("/subscription/:userId", billingHandler.GetSubscription)

		// Third-party proxies, rate limited per client.
		proxies := api.Group("")
		proxies.Use(middleware.RateLimit(proxyLimiter))
		{
			proxies.POST("/openai-proxy", proxyHandler.OpenAIProxy)
			proxies.POST("/perplexity-proxy", proxyHandler.PerplexityProxy)
			proxies.GET("/odds-proxy", proxyHandler.OddsProxy)
			proxies.GET("/sportsdb-proxy", proxyHandler.SportsDBProxy)
		}

		// Authenticated routes
		auth := api.Group("")
		auth.Use(authMiddleware.AuthRequired())
		{
			auth.POST("/picks/generate", picksHandler.GeneratePicks)
			auth.POST("/results/grade", resultsHandler.GradeResults)
			auth.POST("/subscription/:userId/cancel", billingHandler.CancelSubscription)
		}
	}
}
