package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/socialpulse/followwatch/internal/app"
	"github.com/socialpulse/followwatch/internal/config"
	"github.com/socialpulse/followwatch/internal/logging"
	"github.com/socialpulse/followwatch/internal/scheduler"
	"github.com/socialpulse/followwatch/internal/server"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logFile := logging.Setup(cfg)
	defer logFile.Close()

	logrus.Info("Starting followwatch")

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	schedulerService := scheduler.NewService(cfg, application.Monitor)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	api := server.New(application.Monitor, application.Analytics, application.Metrics.Handler())
	for name, check := range application.HealthChecks {
		api.AddHealthCheck(name, check)
	}
	srv := api.HTTPServer(cfg.Port)

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	// Cancels the running cycle; deferred Close then drains notifications
	schedulerService.Stop()

	logrus.Info("Server exited")
}
