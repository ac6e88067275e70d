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
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/acadplan/timetable-api/api/swagger"
	"github.com/acadplan/timetable-api/internal/handler"
	"github.com/acadplan/timetable-api/internal/middleware"
	"github.com/acadplan/timetable-api/internal/models"
	"github.com/acadplan/timetable-api/internal/repository"
	"github.com/acadplan/timetable-api/internal/service"
	"github.com/acadplan/timetable-api/pkg/cache"
	"github.com/acadplan/timetable-api/pkg/config"
	"github.com/acadplan/timetable-api/pkg/database"
	"github.com/acadplan/timetable-api/pkg/export"
	"github.com/acadplan/timetable-api/pkg/logger"
	corsmiddleware "github.com/acadplan/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acadplan/timetable-api/pkg/middleware/requestid"
)

// @title AcadPlan Timetable API
// @version 1.0.0
// @description University timetable generation, validation and room reservation engine
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsSvc := service.NewMetricsService(registry)

	userRepo := repository.NewUserRepository(db)
	formationRepo := repository.NewFormationRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	infraRepo := repository.NewInfrastructureRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	validationRepo := repository.NewValidationRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "acadplan-timetable-api",
	})

	formationSvc := service.NewFormationService(formationRepo, subjectRepo, timetableRepo, validate, logr)
	infraSvc := service.NewInfrastructureService(infraRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	semesterSvc := service.NewSemesterService(semesterRepo, timetableRepo, validate, logr)

	evaluator := service.NewConstraintEvaluator()
	builderSvc := service.NewTimetableBuilderService(
		formationRepo, subjectRepo, infraRepo, teacherRepo, semesterRepo,
		timetableRepo, evaluator, validate, logr, cfg.Engine)
	optimizerSvc := service.NewTimetableOptimizerService(
		formationRepo, subjectRepo, infraRepo, teacherRepo, semesterRepo,
		timetableRepo, validationRepo, evaluator, validate, logr, cfg.Engine)
	validatorSvc := service.NewTimetableValidatorService(
		formationRepo, subjectRepo, infraRepo, teacherRepo, semesterRepo,
		timetableRepo, validationRepo, evaluator, validate, logr)
	timetableSvc := service.NewTimetableService(timetableRepo, validationRepo, cacheRepo, logr, cfg.Engine.StatisticsCacheTTL)
	reservationSvc := service.NewReservationService(
		reservationRepo, timetableRepo, validationRepo, semesterRepo,
		subjectRepo, infraRepo, metricsSvc, validate, logr, cfg.Reservations)
	exportSvc := service.NewExportService(
		timetableSvc, export.NewCSVExporter(), export.NewPDFExporter(cfg.Exports.PDFPageSize),
		cfg.Exports.Institution, cfg.Exports.Enabled, logr)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	reservationSvc.Start(workerCtx)

	authHandler := handler.NewAuthHandler(authSvc)
	timetableHandler := handler.NewTimetableHandler(builderSvc, optimizerSvc, validatorSvc, timetableSvc, metricsSvc)
	reservationHandler := handler.NewReservationHandler(reservationSvc)
	formationHandler := handler.NewFormationHandler(formationSvc)
	infraHandler := handler.NewInfrastructureHandler(infraSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	semesterHandler := handler.NewSemesterHandler(semesterSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	planners := middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty, models.RoleDepartment, models.RolePlanner)
	managers := middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty, models.RoleDepartment)
	admins := middleware.RequireRoles(models.RoleAdmin)

	timetables := protected.Group("/timetables")
	{
		timetables.POST("/build", planners, timetableHandler.Build)
		timetables.GET("", timetableHandler.List)
		timetables.GET("/:id", timetableHandler.Get)
		timetables.GET("/:id/statistics", timetableHandler.Statistics)
		timetables.POST("/:id/optimize", planners, timetableHandler.Optimize)
		timetables.POST("/:id/validate", planners, timetableHandler.Validate)
		timetables.POST("/:id/recheck", planners, timetableHandler.Recheck)
		timetables.POST("/:id/issues/:issueID/resolve", planners, timetableHandler.ResolveIssue)
		timetables.POST("/:id/approve", managers, timetableHandler.Approve)
		timetables.DELETE("/:id", admins, timetableHandler.Archive)
		timetables.POST("/:id/reservations", planners, reservationHandler.CreateBatch)
		timetables.GET("/:id/export/csv", exportHandler.CSV)
		timetables.GET("/:id/export/pdf", exportHandler.PDF)
	}

	batches := protected.Group("/reservation-batches")
	{
		batches.POST("/:id/process", planners, reservationHandler.Process)
		batches.POST("/:id/cancel", planners, reservationHandler.Cancel)
		batches.GET("/:id", reservationHandler.Get)
		batches.GET("/:id/progress", reservationHandler.Progress)
	}

	formations := protected.Group("/formations")
	{
		formations.POST("", managers, formationHandler.Create)
		formations.GET("", formationHandler.List)
		formations.GET("/:id", formationHandler.Get)
		formations.DELETE("/:id", admins, formationHandler.Delete)
		formations.POST("/:id/subjects", managers, formationHandler.CreateSubject)
		formations.DELETE("/:id/subjects/:subjectID", admins, formationHandler.DeleteSubject)
	}

	infrastructure := protected.Group("/infrastructure")
	{
		infrastructure.POST("", managers, infraHandler.Create)
		infrastructure.GET("", infraHandler.List)
		infrastructure.GET("/:id", infraHandler.Get)
		infrastructure.POST("/:id/maintenance", managers, infraHandler.AddMaintenance)
		infrastructure.PUT("/:id/active", admins, infraHandler.SetActive)
	}

	teachers := protected.Group("/teachers")
	{
		teachers.POST("", managers, teacherHandler.Create)
		teachers.GET("", teacherHandler.List)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.PUT("/:id/time-windows", managers, teacherHandler.UpdateTimeWindows)
	}

	semesters := protected.Group("/semesters")
	{
		semesters.POST("", managers, semesterHandler.Create)
		semesters.GET("", semesterHandler.List)
		semesters.GET("/:id", semesterHandler.Get)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}

	stopWorkers()
	reservationSvc.Stop()
	logr.Sugar().Infow("server stopped")
}
