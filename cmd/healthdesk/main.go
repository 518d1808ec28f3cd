package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/analytics"
	"github.com/openclinic/healthdesk/internal/exchange"
	"github.com/openclinic/healthdesk/internal/notification"
	"github.com/openclinic/healthdesk/internal/pattern"
	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/scheduler"
	"github.com/openclinic/healthdesk/internal/shared/config"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/logging"
	"github.com/openclinic/healthdesk/internal/shared/metrics"
	secmiddleware "github.com/openclinic/healthdesk/internal/shared/middleware"
	"github.com/openclinic/healthdesk/internal/storage"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	Log    *zap.Logger
	KV     *storage.Store
	Store  *record.Store
	Bus    *events.Bus
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	kv, err := storage.Open(cfg.Storage)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer kv.Close()

	store := record.New(kv, log)
	if err := store.Initialize(); err != nil {
		log.Fatal("failed to initialize collections", zap.Error(err))
	}

	bus := events.NewBus()
	bus.Subscribe("*", func(ctx context.Context, e events.Event) {
		log.Debug("event published",
			zap.String("type", e.Type),
			zap.String("source", e.Source))
	})

	app := &App{Config: cfg, Log: log, KV: kv, Store: store, Bus: bus}

	// Raised alerts surface on the console in development, in the
	// structured log everywhere.
	channels := []notification.Channel{notification.NewLogChannel(log)}
	if cfg.Server.Env == "development" {
		channels = append(channels, notification.NewConsoleChannel())
	}
	notifier := notification.New(record.AlertSeverityLow, log, channels...)
	notifier.Subscribe(bus)

	detector := pattern.NewDetector(store, bus, log)
	aggregator := analytics.New(log)
	exchangeSvc := exchange.NewService(store, kv, bus, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS)
	r.Use(secmiddleware.RateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	r.Use(secmiddleware.InputSanitizer)

	// Health checks
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		recordHandler := record.NewHandler(store, bus)
		r.Mount("/", recordHandler.Routes())

		analyticsHandler := analytics.NewHandler(store, aggregator)
		r.Mount("/analytics", analyticsHandler.Routes())

		patternHandler := pattern.NewHandler(store, detector)
		r.Mount("/patterns", patternHandler.Routes())

		exchangeHandler := exchange.NewHandler(exchangeSvc)
		r.Mount("/exchange", exchangeHandler.Routes())
	})

	// Background jobs
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(detector, exchangeSvc, store, log)
		if err := sched.Start(cfg.Scheduler); err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")

		if sched != nil {
			sched.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	log.Info("healthdesk started",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_dir", cfg.Storage.Dir),
		zap.Bool("scheduler", cfg.Scheduler.Enabled))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}

	<-done
	log.Info("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "HealthDesk Patient Record Service",
		"version": "1.0.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// A round-trip through the store proves the backing db is usable
		if _, err := app.KV.Get(storage.KeySettings); err != nil {
			checks["storage"] = "not ready: " + err.Error()
		} else {
			checks["storage"] = "ready"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
