package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/reviewloop/reviewloop-api/api/swagger"
	"github.com/reviewloop/reviewloop-api/internal/handler"
	"github.com/reviewloop/reviewloop-api/internal/middleware"
	"github.com/reviewloop/reviewloop-api/internal/models"
	"github.com/reviewloop/reviewloop-api/internal/repository"
	"github.com/reviewloop/reviewloop-api/internal/service"
	"github.com/reviewloop/reviewloop-api/pkg/cache"
	"github.com/reviewloop/reviewloop-api/pkg/config"
	"github.com/reviewloop/reviewloop-api/pkg/database"
	"github.com/reviewloop/reviewloop-api/pkg/logger"
	"github.com/reviewloop/reviewloop-api/pkg/mailer"
	corsmiddleware "github.com/reviewloop/reviewloop-api/pkg/middleware/cors"
	reqidmiddleware "github.com/reviewloop/reviewloop-api/pkg/middleware/requestid"
	"github.com/reviewloop/reviewloop-api/pkg/scheduler"
)

// @title ReviewLoop API
// @version 1.0.0
// @description Course feedback collection and invitation dispatch
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, public form caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	sender, err := buildSender(cfg, logr)
	if err != nil {
		logr.Fatal("failed to init mail sender", zap.Error(err))
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	formRepo := repository.NewFormRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	formSvc := service.NewFormService(formRepo, cacheRepo, cfg.Forms.CacheTTL, validate, logr)
	reviewSvc := service.NewReviewService(reviewRepo, formSvc, metricsSvc, logr)
	dispatchSvc := service.NewDispatchService(subjectRepo, formRepo, sender, metricsSvc, cfg.Mail.FrontendBaseURL, logr)
	exportSvc := service.NewExportService(reviewRepo, formRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	formHandler := handler.NewFormHandler(formSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)
	dispatchHandler := handler.NewDispatchHandler(dispatchSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)

		public := api.Group("/public")
		{
			public.GET("/forms/:id", formHandler.GetPublic)
			public.POST("/forms/:id/reviews", reviewHandler.Submit)
			public.GET("/reviews/:token", reviewHandler.GetByToken)
		}

		authed := api.Group("")
		authed.Use(middleware.JWT(authSvc))
		{
			authed.GET("/auth/me", authHandler.Me)

			staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
			adminOnly := middleware.RequireRoles(models.RoleAdmin)

			authed.GET("/subjects", staff, subjectHandler.List)
			authed.GET("/subjects/:id", staff, subjectHandler.Get)
			authed.POST("/subjects", adminOnly, subjectHandler.Create)
			authed.PUT("/subjects/:id", adminOnly, subjectHandler.Update)
			authed.POST("/subjects/:id/dispatch/:moment", adminOnly, dispatchHandler.DispatchNow)

			authed.GET("/forms", staff, formHandler.List)
			authed.GET("/forms/:id", staff, formHandler.Get)
			authed.POST("/forms", adminOnly, formHandler.Create)
			authed.PUT("/forms/:id", adminOnly, formHandler.Update)
			authed.DELETE("/forms/:id", adminOnly, formHandler.Deactivate)

			authed.GET("/forms/:id/reviews", staff, reviewHandler.ListByForm)
			if cfg.Exports.Enabled {
				authed.GET("/forms/:id/reviews/export", staff, exportHandler.ExportReviews)
			}

			authed.POST("/dispatch/sweep", adminOnly, dispatchHandler.RunSweep)
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweep *scheduler.Daily
	if cfg.Dispatch.Enabled {
		sweep = scheduler.NewDaily("invitation-sweep", cfg.Dispatch.SweepHourUTC, func(ctx context.Context) error {
			_, err := dispatchSvc.RunDailySweep(ctx)
			return err
		}, logr)
		sweep.Start(rootCtx)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutdown signal received")

	if sweep != nil {
		sweep.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func buildSender(cfg *config.Config, logr *zap.Logger) (mailer.BulkSender, error) {
	switch cfg.Mail.Provider {
	case "sendgrid":
		return mailer.NewSendgridSender(cfg.Mail.SendgridKey, cfg.Mail.FromName, cfg.Mail.FromEmail, logr)
	default:
		return mailer.NewConsoleSender(logr), nil
	}
}
