// CraftLink core server: reputation scoring, portfolio progression,
// verification cascades and payment reconciliation.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kwalimwa/craftlink/internal/api/learners"
	"github.com/kwalimwa/craftlink/internal/api/orders"
	"github.com/kwalimwa/craftlink/internal/api/payments"
	"github.com/kwalimwa/craftlink/internal/api/reviews"
	"github.com/kwalimwa/craftlink/internal/config"
	"github.com/kwalimwa/craftlink/internal/langdetect"
	"github.com/kwalimwa/craftlink/internal/lock"
	"github.com/kwalimwa/craftlink/internal/notify"
	"github.com/kwalimwa/craftlink/internal/ratelimit"
	"github.com/kwalimwa/craftlink/internal/repository"
	"github.com/kwalimwa/craftlink/internal/service/progression"
	"github.com/kwalimwa/craftlink/internal/service/trustscore"
	"github.com/kwalimwa/craftlink/internal/service/verification"
	"github.com/kwalimwa/craftlink/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Database.Redis.Host, cfg.Database.Redis.Port),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
		PoolSize: cfg.Database.Redis.PoolSize,
	})
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	reputationRepo := repository.NewReputationRepository(db)
	portfolioRepo := repository.NewPortfolioRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)

	// External collaborators
	notifier := notify.NewClient(&cfg.Notifications, log)
	detector := langdetect.NewClient(&cfg.Detector, log)
	learnerLock := lock.NewLearnerLock(redisClient, 30*time.Second)

	// Services
	trustEngine := trustscore.NewEngine(reputationRepo, log)
	progressionEngine := progression.NewEngine(portfolioRepo, log)
	orchestrator := verification.NewOrchestrator(
		engagementRepo, progressionEngine, portfolioRepo, detector, notifier, learnerLock, log)

	// Handlers
	reviewHandler := reviews.NewHandler(orchestrator, log)
	orderHandler := orders.NewHandler(orderRepo, trustEngine, log)
	learnerHandler := learners.NewHandler(portfolioRepo, progressionEngine, log)
	paymentHandler := payments.NewHandler(orderRepo, notifier, cfg.Payments.CallbackSecret, log)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerMin, time.Minute, log)
		limiter.Start(ctx, time.Duration(cfg.RateLimit.SweepInterval)*time.Second)
		api.Use(func(c *gin.Context) {
			if !limiter.Allow(c.ClientIP()) {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
				return
			}
			c.Next()
		})
	}

	api.POST("/engagements/:id/review", reviewHandler.SubmitDecision)
	api.POST("/orders/:id/deliver", orderHandler.MarkDelivered)
	api.POST("/orders/:id/confirm-delivery", orderHandler.ConfirmDelivery)
	api.POST("/orders/:id/rating", orderHandler.SubmitRating)
	api.GET("/learners/:id/progression", learnerHandler.GetProgression)
	api.POST("/learners/:id/reconcile-tier", learnerHandler.ReconcileTier)
	api.POST("/payments/callback", paymentHandler.HandleCallback)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			path := cfg.Metrics.Path
			if path == "" {
				path = "/metrics"
			}
			mux.Handle(path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Info().Str("addr", addr).Msg("Starting metrics server")
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
}
