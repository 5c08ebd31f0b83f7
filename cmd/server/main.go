package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-publish/pkg/simplepublish/api"
	"github.com/tendant/simple-publish/pkg/simplepublish/config"
)

// HTTPConfig holds the server knobs that sit outside the service config.
type HTTPConfig struct {
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func main() {
	var httpCfg HTTPConfig
	if err := cleanenv.ReadEnv(&httpCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Environment)

	svc, err := cfg.BuildService(context.Background())
	if err != nil {
		slog.Error("Failed to create service", "err", err)
		os.Exit(1)
	}

	handler := api.NewHandler(svc, api.WithJWTSecret([]byte(cfg.JWTSecret)))

	// Set up router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(httpCfg.RequestTimeout))

	// Mount routes
	r.Mount("/api/v1", handler.Routes())

	if cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Add a simple health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Create server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

func setupLogger(environment string) {
	if environment == "production" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}
}
