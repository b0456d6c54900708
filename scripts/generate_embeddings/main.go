// Backfills embedded_web_summary for catalog rows loaded without vectors.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	database "github.com/sakatoku/sakarctic/app/db"
	"github.com/sakatoku/sakarctic/app/observability/metrics"
	"github.com/sakatoku/sakarctic/config"
	"github.com/sakatoku/sakarctic/internal/api/catalog"
	generativeAI "github.com/sakatoku/sakarctic/internal/api/generative_ai"
	"github.com/sakatoku/sakarctic/internal/types"
)

const batchSize = 20

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	metrics.InitAppMetrics()

	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := pgxpool.New(ctx, dbConfig.ConnectionURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Connected to database successfully")

	embeddingService, err := generativeAI.NewEmbeddingService(ctx, cfg.LLM.EmbeddingModel, cfg.LLM.CallTimeout, logger)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	repo := catalog.NewCatalogRepository(dbpool, logger)

	logger.Info("Starting embedding generation for catalog data...")
	for _, kind := range []types.CatalogKind{types.CatalogRestaurants, types.CatalogTourSpots} {
		if err := backfillCatalog(ctx, repo, embeddingService, kind, logger); err != nil {
			logger.Error("Embedding backfill failed",
				slog.String("catalog", string(kind)),
				slog.Any("error", err))
		} else {
			logger.Info("Embedding backfill completed", slog.String("catalog", string(kind)))
		}
	}
	logger.Info("Embedding generation completed!")
}

func backfillCatalog(ctx context.Context, repo *catalog.CatalogRepositoryImpl, embeddingService *generativeAI.EmbeddingService, kind types.CatalogKind, logger *slog.Logger) error {
	totalProcessed := 0
	totalErrors := 0

	for {
		items, err := repo.ItemsWithoutEmbeddings(ctx, kind, batchSize)
		if err != nil {
			return fmt.Errorf("failed to get rows without embeddings: %w", err)
		}
		if len(items) == 0 {
			break
		}

		logger.Info("Processing batch", slog.String("catalog", string(kind)), slog.Int("batch_size", len(items)))

		for _, item := range items {
			text := fmt.Sprintf("Name: %s\nCategory: %s\nSummary: %s", item.Name, item.Category, item.WebSummary)
			embedding, err := embeddingService.GenerateEmbedding(ctx, text)
			if err != nil {
				logger.Error("Failed to generate embedding",
					slog.Any("error", err),
					slog.String("name", item.Name))
				totalErrors++
				continue
			}

			if err := repo.UpdateEmbedding(ctx, kind, item.Name, embedding); err != nil {
				logger.Error("Failed to store embedding",
					slog.Any("error", err),
					slog.String("name", item.Name))
				totalErrors++
				continue
			}

			totalProcessed++
			logger.Debug("Embedding stored", slog.String("name", item.Name))
		}

		if len(items) < batchSize {
			break
		}
	}

	logger.Info("Batch embedding generation completed",
		slog.String("catalog", string(kind)),
		slog.Int("total_processed", totalProcessed),
		slog.Int("total_errors", totalErrors))

	if totalErrors > 0 {
		return fmt.Errorf("embedding backfill completed with %d errors out of %d rows", totalErrors, totalProcessed+totalErrors)
	}
	return nil
}
