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

	_ "github.com/dugsihub/dugsi-api/api/swagger"
	"github.com/dugsihub/dugsi-api/internal/handler"
	"github.com/dugsihub/dugsi-api/internal/middleware"
	"github.com/dugsihub/dugsi-api/internal/repository"
	"github.com/dugsihub/dugsi-api/internal/scheduler"
	"github.com/dugsihub/dugsi-api/internal/service"
	"github.com/dugsihub/dugsi-api/pkg/cache"
	"github.com/dugsihub/dugsi-api/pkg/config"
	"github.com/dugsihub/dugsi-api/pkg/database"
	"github.com/dugsihub/dugsi-api/pkg/logger"
	corsmiddleware "github.com/dugsihub/dugsi-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dugsihub/dugsi-api/pkg/middleware/requestid"
)

// @title Dugsi API
// @version 1.0.0
// @description School administration API: students, attendance, monthly billing
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The dashboard cache degrades to direct reads without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	studentRepo := repository.NewStudentRepository(db)
	billRepo := repository.NewBillRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	metricsSvc := service.NewMetricsService()
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	billingSvc := service.NewBillingService(billRepo, studentRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, billRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(billRepo, attendanceRepo, nil, nil, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	billingScheduler := scheduler.NewBillingScheduler(billingSvc, metricsSvc, cfg.Billing, logr)
	if err := billingScheduler.Start(); err != nil {
		logr.Sugar().Fatalw("failed to start billing scheduler", "error", err)
	}
	defer billingScheduler.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	billingHandler := handler.NewBillingHandler(billingSvc, exportSvc, metricsSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, exportSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	invalidate := middleware.InvalidateDashboard(dashboardSvc)

	secured.GET("/students", studentHandler.List)
	secured.POST("/students", invalidate, studentHandler.Create)
	secured.GET("/students/classes", studentHandler.Classes)
	secured.GET("/students/class/:class", studentHandler.ByClass)
	secured.GET("/students/:id", studentHandler.Get)
	secured.PUT("/students/:id", invalidate, studentHandler.Update)
	secured.DELETE("/students/:id", invalidate, studentHandler.Delete)
	secured.GET("/students/:id/bills", billingHandler.ForStudent)

	secured.GET("/bills", billingHandler.StatusView)
	secured.POST("/bills", invalidate, billingHandler.Create)
	secured.GET("/bills/export", billingHandler.Export)
	secured.PATCH("/bills/:id/pay", invalidate, billingHandler.Pay)
	secured.POST("/billing/generate", invalidate, billingHandler.Generate)

	secured.POST("/attendance", attendanceHandler.Mark)
	secured.POST("/attendance/bulk", attendanceHandler.MarkBulk)
	secured.GET("/attendance/student/:id", attendanceHandler.History)
	secured.GET("/attendance/student/:id/summary", attendanceHandler.Summary)
	secured.GET("/attendance/class/:class", attendanceHandler.Class)
	secured.GET("/attendance/class/:class/export", attendanceHandler.ExportClass)
	secured.GET("/attendance/absent/:class/:date", attendanceHandler.Absent)

	secured.GET("/dashboard", dashboardHandler.Snapshot)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
