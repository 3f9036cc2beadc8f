package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"go_pipeline_project/config"
	"go_pipeline_project/models"
	"go_pipeline_project/routes"
	"go_pipeline_project/scheduler"
	"go_pipeline_project/services"
	"go_pipeline_project/services/datafetcher"
	"go_pipeline_project/services/screening"
	"go_pipeline_project/services/selection"
	"go_pipeline_project/services/trading"
)

func main() {
	log.Println("==============================================")
	log.Println("  Daily Pipeline Scheduler - Starting...")
	log.Println("==============================================")

	// An invalid schedule is the only thing allowed to abort startup.
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Probes go up before anything else so orchestrators see the process.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	db, err := config.InitDB(cfg)
	if err != nil {
		// Without the database the pipeline cannot screen or trade, but the
		// probe endpoint stays up so the failure is visible.
		log.Printf("ERROR: Database connection failed: %v", err)
		log.Println("Service will continue in limited mode (health check only)")
		waitForSignal()
		shutdownServer(server)
		return
	}

	log.Println("Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Printf("ERROR: Migration failed: %v", err)
	} else {
		log.Println("Database migrations completed successfully")
	}
	if err := models.SeedDefaultOperator(db); err != nil {
		log.Printf("Warning: Could not seed operator account: %v", err)
	}

	journal, err := services.NewJournalService(cfg.JournalDBPath)
	if err != nil {
		log.Fatalf("FATAL: journal unavailable: %v", err)
	}

	events := services.NewEventHub()
	notifier := services.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyEnabled)
	tracker := services.NewBatchStateTracker(cfg.BatchCount, cfg.BatchDir)
	fetcher := datafetcher.NewDataFetcher(db, os.Getenv("MARKET_API_BASE"))
	screener := screening.NewScreener(db, fetcher, cfg.ScreeningFile)
	selector := selection.NewSelector(screener, tracker, fetcher)
	engine := trading.NewEngine(db, tracker)
	maintenance := services.NewMaintenanceService(db, journal, cfg.BatchDir, cfg.ScreeningFile)
	monitor := services.NewMonitoringService(db, cfg.DataDir)
	aiSync := services.NewAISyncService(db, tracker, cfg.MongoURI)

	if err := fetcher.SeedStockList(); err != nil {
		log.Printf("Warning: Could not seed stock list: %v", err)
	}

	core := scheduler.NewSchedulerCore(cfg, scheduler.Collaborators{
		Screening:    screener,
		Selection:    selector,
		Trading:      engine,
		Maintenance:  maintenance,
		Monitoring:   monitor,
		AISync:       aiSync,
		Fundamentals: fetcher,
		Batches:      tracker,
	}, notifier, journal, events)

	routes.SetupRoutes(router, cfg, db, core, tracker, journal, events, monitor)

	// Blocks until SIGINT/SIGTERM; runs the recovery pass, then dispatches.
	if err := core.Run(); err != nil {
		log.Printf("ERROR: Scheduler failed to start: %v", err)
	}

	// Scheduler is down; stop the trading engine and release everything else.
	engine.Stop(context.Background())
	shutdownServer(server)
	events.Shutdown()
	aiSync.Close()
	if err := journal.Close(); err != nil {
		log.Printf("Error closing journal: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("Shutdown complete")
}

// runMigrations migrates every model group.
func runMigrations(db *gorm.DB) error {
	if err := models.MigratePipelineModels(db); err != nil {
		return err
	}
	return models.MigrateOperatorModels(db)
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// shutdownServer drains the HTTP server with a bounded grace period.
func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
}

// corsMiddleware allows the operator dashboard origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := os.Getenv("ALLOWED_ORIGIN")
		if origin == "" {
			origin = "*"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs each request with latency and status.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		log.Printf("%s %s %d %s",
			c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
