package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/sakatoku/sakarctic/app/db"
	appLogger "github.com/sakatoku/sakarctic/app/logger"
	"github.com/sakatoku/sakarctic/app/observability/metrics"
	"github.com/sakatoku/sakarctic/app/tracer"
	"github.com/sakatoku/sakarctic/config"
	"github.com/sakatoku/sakarctic/internal/api/catalog"
	"github.com/sakatoku/sakarctic/internal/api/dialogue"
	generativeAI "github.com/sakatoku/sakarctic/internal/api/generative_ai"
	"github.com/sakatoku/sakarctic/internal/api/itinerary"
	"github.com/sakatoku/sakarctic/internal/api/planner"
	"github.com/sakatoku/sakarctic/internal/api/scoring"
	"github.com/sakatoku/sakarctic/internal/api/trip"
	api "github.com/sakatoku/sakarctic/internal/router"
)

const metricsPort = "9090"

func main() {
	// Use standard log until slog is configured, in case godotenv fails
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Observability ---
	tracer.InitTracingAndMetrics(metricsPort)
	metrics.InitAppMetrics()

	// --- Database Setup ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	err = database.RunMigrations(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Dependency Injection ---
	aiClient, err := generativeAI.NewAIClient(ctx, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.CallTimeout)
	if err != nil {
		logger.Error("Failed to create AI client", slog.Any("error", err))
		os.Exit(1)
	}
	embeddingService, err := generativeAI.NewEmbeddingService(ctx, cfg.LLM.EmbeddingModel, cfg.LLM.CallTimeout, logger)
	if err != nil {
		logger.Error("Failed to create embedding service", slog.Any("error", err))
		os.Exit(1)
	}

	catalogRepo := catalog.NewCatalogRepository(pool, logger)
	dialogueService := dialogue.NewDialogueService(aiClient, cfg.Dialogue.MaxTurns, cfg.Dialogue.ExtractionRetries, logger)
	plannerService := planner.NewPlannerService(aiClient, cfg.Planner.MaxAttempts, cfg.Planner.MealHours, logger)
	scoringService := scoring.NewScoringService(aiClient, scoring.SafetyBlend{
		Weight: cfg.Scoring.SafetyWeight,
		Min:    cfg.Scoring.SafetyMin,
		Max:    cfg.Scoring.SafetyMax,
	}, logger)
	itineraryService := itinerary.NewItineraryService(catalogRepo, scoringService, logger)
	tripService := trip.NewTripService(
		dialogueService,
		plannerService,
		scoringService,
		itineraryService,
		embeddingService,
		catalogRepo,
		cfg.Session.TTL,
		cfg.Export.Dir,
		logger,
	)
	tripHandler := trip.NewTripHandler(tripService, logger)

	// --- Router Setup ---
	routerConfig := &api.Config{
		TripHandler: tripHandler,
	}
	mainRouter := api.SetupRouter(routerConfig)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(appLogger.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middleware.Compress(5, "application/json"))
	router.Mount("/", mainRouter)

	// --- HTTP Server Setup ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second, // planning runs several model calls
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
