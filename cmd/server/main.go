package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ytgrab/ytgrab/internal/cleanup"
	"github.com/ytgrab/ytgrab/internal/config"
	"github.com/ytgrab/ytgrab/internal/constants"
	"github.com/ytgrab/ytgrab/internal/engine"
	"github.com/ytgrab/ytgrab/internal/httpapp"
	"github.com/ytgrab/ytgrab/internal/logger"
	"github.com/ytgrab/ytgrab/internal/pool"
	"github.com/ytgrab/ytgrab/internal/ratelimit"
	"github.com/ytgrab/ytgrab/internal/registry"
	"github.com/ytgrab/ytgrab/internal/storage"
	"github.com/ytgrab/ytgrab/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("Configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if err := storage.EnsureDir(cfg.DownloadsDir); err != nil {
		appLogger.Error("Failed to create downloads directory", "dir", cfg.DownloadsDir, "error", err)
		os.Exit(1)
	}

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	deps := engine.DependencyStatus()
	if !deps.YTDLPFound {
		appLogger.Warn("yt-dlp not found on PATH, downloads will fail until it is installed")
	}
	if !deps.FFmpegFound {
		appLogger.Warn("ffmpeg not found on PATH, format conversion will fail")
	}

	reg := registry.New()
	eng := engine.NewYTDLP()
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)

	p := pool.New(reg, eng, db, cfg, appLogger)
	p.Start()
	defer p.Stop()

	cleaner := cleanup.New(reg, db, limiter, cfg, appLogger)
	cleaner.Start()
	defer cleaner.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := httpapp.NewHandler(reg, p, eng, limiter, db, cleaner, cfg, appLogger)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", "error", err)
	}
}
