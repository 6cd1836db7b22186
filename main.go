package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"polygon_data_monitor/config"
	"polygon_data_monitor/models"
	"polygon_data_monitor/pkg/ratelimit"
	"polygon_data_monitor/routes"
	"polygon_data_monitor/scheduler"
	"polygon_data_monitor/services/fetcher"
	"polygon_data_monitor/services/polygon"
)

func main() {
	setupOnly := flag.Bool("setup", false, "run the one-shot initial setup and exit")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	log.Info("Running database migrations")
	if err := models.MigrateMarketModels(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// One shared limiter keeps the requests-per-minute budget a true
	// process-wide ceiling across every upstream call-site.
	limiter := ratelimit.PerMinute(cfg.RequestsPerMinute)
	client := polygon.NewRESTClient(cfg.PolygonBaseURL, cfg.PolygonAPIKey, limiter, log)
	pipeline := fetcher.New(db, client, cfg, log)

	if *setupOnly {
		if err := pipeline.RunInitialSetup(context.Background()); err != nil {
			log.Fatalf("Initial setup failed: %v", err)
		}
		return
	}

	monitor := scheduler.NewMonitor(cfg, pipeline, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, db, pipeline.AuditLog(), monitor)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Operational API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		log.Infof("Received signal %s, shutting down gracefully", sig)
		monitor.Shutdown()
	}()

	// Blocks until the shutdown signal is observed at a tick boundary.
	if err := monitor.Run(context.Background()); err != nil {
		log.Errorf("Monitor loop error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}
}
