package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"

	"github.com/estatedesk/ledger-api/internal/config"
	"github.com/estatedesk/ledger-api/internal/database"
	"github.com/estatedesk/ledger-api/internal/handlers"
	"github.com/estatedesk/ledger-api/internal/jobs"
	"github.com/estatedesk/ledger-api/internal/middleware"
	"github.com/estatedesk/ledger-api/internal/repository"
	"github.com/estatedesk/ledger-api/internal/services"
	"github.com/estatedesk/ledger-api/internal/storage"
	"github.com/estatedesk/ledger-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage")

	// Initialize repositories
	repos := repository.NewRepositories(db)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, cfg, db)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs, cfg)

	// Initialize handlers
	h := handlers.NewHandlers(svcs, store)

	// Setup router
	router := setupRouter(h, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown background worker
	worker.Shutdown()
	logger.Info("Background worker stopped")

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Demand note register (reads)
		v1.GET("/demand_notes", h.DemandNote.Index)
		v1.GET("/demand_notes/export", h.DemandNote.Export)
		v1.GET("/demand_notes/:demand_note_id", h.DemandNote.Show)
		v1.GET("/demand_notes/:demand_note_id/installments", h.Installment.Index)
		v1.GET("/demand_notes/:demand_note_id/installments/:installment_id/receipt", h.Installment.Receipt)
		v1.GET("/demand_notes/:demand_note_id/installments/:installment_id/attachments/:attachment_id", h.Installment.Attachment)

		// Mutations require an actor identity from the gateway
		actor := v1.Group("")
		actor.Use(middleware.RequireActor())
		{
			actor.POST("/demand_notes", h.DemandNote.Create)
			actor.PUT("/demand_notes/:demand_note_id", h.DemandNote.Update)
			actor.POST("/demand_notes/:demand_note_id/issue", h.DemandNote.Issue)
			actor.PUT("/demand_notes/:demand_note_id/status", h.DemandNote.SetStatus)
			actor.POST("/demand_notes/:demand_note_id/installments", h.Installment.Create)
			actor.POST("/demand_notes/sweep_overdue", h.DemandNote.SweepOverdue)

			actor.GET("/audits", h.Audit.Index)
			actor.GET("/jobs/stats", h.Job.Stats)
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute

	// Lapse past-due demand notes on startup, then on the configured interval
	worker.ScheduleEveryImmediate(interval, func(ctx context.Context) error {
		logger.Info("[Job] Sweeping overdue demand notes...")
		count, err := svcs.Ledger.SweepOverdue(ctx, nil)
		if err != nil {
			return err
		}
		if count > 0 {
			logger.Info("[Job] Overdue sweep finished", "updated_count", count)
		}
		return nil
	})

	logger.Info("Scheduled recurring jobs")
}
