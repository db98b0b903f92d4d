package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tullo/guardian/config"
	"github.com/tullo/guardian/internal/auth"
	"github.com/tullo/guardian/internal/cache"
	"github.com/tullo/guardian/internal/classifier"
	"github.com/tullo/guardian/internal/database"
	"github.com/tullo/guardian/internal/handlers"
	"github.com/tullo/guardian/internal/logger"
	"github.com/tullo/guardian/internal/metrics"
	"github.com/tullo/guardian/internal/middleware"
	"github.com/tullo/guardian/internal/moderation"
	"github.com/tullo/guardian/internal/repository"
	"github.com/tullo/guardian/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(logger.Config{
		Environment: cfg.Server.Env,
		LogLevel:    cfg.Log.Level,
		ServiceName: "guardian",
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		logg.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(db.DB, logg); err != nil {
		logg.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logg.Warn("Running without Redis: shared cache, review fan-out and global rate limits are disabled", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Result cache: in-process first, Redis second
	resultCache := &cache.Tiered{Local: cache.NewResultCache(cfg.Moderation.CacheTTL, nil)}
	resultCache.Local.StartJanitor(ctx, 5*time.Minute)
	if redis != nil {
		resultCache.Shared = cache.NewRedisResultCache(redis, cfg.Moderation.CacheTTL, logg)
	}

	hub := websocket.NewHub(redis, logg)
	go hub.Run(ctx)

	modRepo := repository.NewModerationRepository(db)
	sink := moderation.NewEscalationSink(modRepo, hub, logg, m)

	engine := moderation.NewEngine(moderation.Deps{
		Classifiers:     textClassifiers(cfg, logg),
		ImageClassifier: imageClassifier(cfg, logg),
		Cache:           resultCache,
		Recorder:        sink,
		Logger:          logg,
		Metrics:         m,
	}, cfg.ModerationOptions())

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	var global middleware.GlobalLimiter
	if redis != nil {
		global = redis
	}
	rateLimiter := middleware.NewRateLimiter(cfg.API.RateLimitPerSec, cfg.API.RateLimitBurst, global, logg)
	rateLimiter.Cleanup(ctx)

	modHandler := handlers.NewModerationHandler(engine, modRepo, logg)
	wsHandler := websocket.NewHandler(hub, jwtService, engine, cfg.CORS.AllowedOrigins)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logg), middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if err := db.Health(c.Request.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "reviewers_online": hub.OnlineReviewers()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/ws/reviews", wsHandler.HandleWebSocket)

	// Protected routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		api.POST("/moderate", middleware.RateLimitMiddleware(rateLimiter, "moderate"), modHandler.Moderate)
		api.GET("/moderation/vocabulary", modHandler.Vocabulary)

		reviewers := api.Group("/moderation/queue", middleware.RequireRole(auth.RoleModerator, auth.RoleAdmin))
		reviewers.GET("", modHandler.ReviewQueue)
		reviewers.POST("/:id/resolve", modHandler.ResolveReview)
	}

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info("Starting guardian server", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("Server shutdown failed", zap.Error(err))
	}
	// Let queued audit and review writes land before the pool closes
	sink.Wait()
}

func textClassifiers(cfg *config.Config, logg *zap.Logger) []moderation.WeightedClassifier {
	var out []moderation.WeightedClassifier
	p := cfg.Providers
	if p.OpenAIKey != "" {
		out = append(out, moderation.WeightedClassifier{
			Classifier: classifier.NewOpenAI(p.OpenAIURL, p.OpenAIKey, p.OpenAIModel, nil, logg),
			Weight:     p.OpenAIWeight,
		})
	}
	if p.PerspectiveKey != "" {
		out = append(out, moderation.WeightedClassifier{
			Classifier: classifier.NewPerspective(p.PerspectiveURL, p.PerspectiveKey, nil, logg),
			Weight:     p.PerspectiveWeight,
		})
	}
	if len(out) == 0 {
		logg.Warn("No external text classifiers configured; using pattern scoring only")
	}
	return out
}

func imageClassifier(cfg *config.Config, logg *zap.Logger) moderation.ImageClassifier {
	if cfg.Providers.VisionKey == "" {
		logg.Warn("No image classifier configured; every image goes to human review")
		return nil
	}
	return classifier.NewVision(cfg.Providers.VisionURL, cfg.Providers.VisionKey, nil, logg)
}
