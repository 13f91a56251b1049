package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/driveline/lessons-api/api/swagger"
	"github.com/driveline/lessons-api/internal/handler"
	"github.com/driveline/lessons-api/internal/middleware"
	"github.com/driveline/lessons-api/internal/models"
	"github.com/driveline/lessons-api/internal/repository"
	"github.com/driveline/lessons-api/internal/service"
	"github.com/driveline/lessons-api/pkg/cache"
	"github.com/driveline/lessons-api/pkg/config"
	"github.com/driveline/lessons-api/pkg/database"
	"github.com/driveline/lessons-api/pkg/logger"
	corsmiddleware "github.com/driveline/lessons-api/pkg/middleware/cors"
	reqidmiddleware "github.com/driveline/lessons-api/pkg/middleware/requestid"
)

// @title Driveline Lessons API
// @version 1.0.0
// @description Lesson negotiation and wallet settlement backend
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	lessonRepo := repository.NewLessonRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	notifier := service.NewNotifierService(redisClient, cfg.Notifications, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	walletOpts := []service.WalletServiceOption{}
	lessonOpts := []service.LessonServiceOption{}
	if metricsSvc != nil {
		walletOpts = append(walletOpts, service.WithWalletMetrics(metricsSvc))
		lessonOpts = append(lessonOpts, service.WithLessonMetrics(metricsSvc))
	}

	walletSvc := service.NewWalletService(walletRepo, service.NoopGateway{}, auditRepo, cfg.Lessons.InstructorSharePct, logr, walletOpts...)
	lessonSvc := service.NewLessonService(lessonRepo, walletSvc, notifier, auditRepo, cfg.Lessons, logr, lessonOpts...)
	statementSvc := service.NewStatementService(lessonSvc, walletSvc)
	authSvc := service.NewAuthService(cfg.JWT.Secret)

	lessonHandler := handler.NewLessonHandler(lessonSvc, statementSvc)
	walletHandler := handler.NewWalletHandler(walletSvc, statementSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	lessons := api.Group("/lessons")
	{
		lessons.POST("", middleware.RBAC(models.RoleStudent), lessonHandler.Create)
		lessons.GET("", lessonHandler.List)
		lessons.GET("/:id", lessonHandler.Get)
		lessons.POST("/:id/accept", middleware.RBAC(models.RoleInstructor), lessonHandler.Accept)
		lessons.POST("/:id/reject", middleware.RBAC(models.RoleInstructor), lessonHandler.Reject)
		lessons.POST("/:id/reschedule", middleware.RBAC(models.RoleInstructor), lessonHandler.Reschedule)
		lessons.POST("/:id/start", middleware.RBAC(models.RoleInstructor), lessonHandler.Start)
		lessons.POST("/:id/complete", middleware.RBAC(models.RoleInstructor), lessonHandler.Complete)
		lessons.POST("/:id/cancel", middleware.RBAC(models.RoleStudent, models.RoleInstructor), lessonHandler.Cancel)
		lessons.GET("/:id/receipt.pdf", lessonHandler.Receipt)
	}

	wallet := api.Group("/wallet")
	{
		wallet.GET("/balance", walletHandler.Balance)
		wallet.GET("/transactions", walletHandler.Transactions)
		wallet.POST("/transactions", middleware.RBAC(models.RoleAdmin), walletHandler.Apply)
		wallet.GET("/statement.csv", walletHandler.Statement)
	}

	if cfg.Lessons.SweepInterval > 0 {
		go runSweeper(ctx, lessonSvc, cfg.Lessons.SweepInterval, logr)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// runSweeper periodically expires overdue lesson requests. The lifecycle
// stays correct without it; sweeping only keeps listings fresh.
func runSweeper(ctx context.Context, lessons *service.LessonService, interval time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := lessons.SweepOverdue(ctx); err != nil {
				logr.Sugar().Warnw("overdue sweep failed", "error", err)
			}
		}
	}
}
