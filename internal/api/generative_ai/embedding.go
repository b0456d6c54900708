package generativeAI

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/sakatoku/sakarctic/app/observability/metrics"
)

// EmbeddingDimension matches the vector columns in the catalog tables.
const EmbeddingDimension = 768

type EmbeddingService struct {
	client      *genai.Client
	model       string
	callTimeout time.Duration
	cache       *cache.Cache
	logger      *slog.Logger
}

func NewEmbeddingService(ctx context.Context, model string, callTimeout time.Duration, logger *slog.Logger) (*EmbeddingService, error) {
	ctx, span := otel.Tracer("EmbeddingService").Start(ctx, "NewEmbeddingService")
	defer span.End()

	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		err := fmt.Errorf("GOOGLE_GEMINI_API_KEY environment variable is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	span.SetStatus(codes.Ok, "Embedding service created successfully")
	return &EmbeddingService{
		client:      client,
		model:       model,
		callTimeout: callTimeout,
		cache:       cache.New(1*time.Hour, 10*time.Minute),
		logger:      logger,
	}, nil
}

// GenerateEmbedding returns the embedding vector for the given text.
// Results are memoized so repeated planning runs over the same preference
// description do not hit the API twice.
func (es *EmbeddingService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("EmbeddingService").Start(ctx, "GenerateEmbedding", trace.WithAttributes(
		attribute.Int("text.length", len(text)),
		attribute.String("model", es.model),
	))
	defer span.End()

	if text == "" {
		err := fmt.Errorf("text cannot be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty text provided")
		return nil, err
	}

	if cached, found := es.cache.Get(text); found {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		span.SetStatus(codes.Ok, "Embedding served from cache")
		return cached.([]float32), nil
	}

	ctx, cancel := context.WithTimeout(ctx, es.callTimeout)
	defer cancel()

	start := time.Now()
	embedding, err := es.client.Models.EmbedContent(ctx, es.model, genai.Text(text), nil)
	metrics.Get().LlmCallDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metricAttrs("embed"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate embedding")
		es.logger.ErrorContext(ctx, "Failed to generate embedding",
			slog.Any("error", err),
			slog.String("text_preview", text[:min(100, len(text))]))
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if embedding == nil || len(embedding.Embeddings) == 0 {
		err := fmt.Errorf("received empty embedding from API")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty embedding received")
		return nil, err
	}

	contentEmbedding := embedding.Embeddings[0]
	if contentEmbedding == nil || len(contentEmbedding.Values) == 0 {
		err := fmt.Errorf("received empty embedding values from API")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty embedding values received")
		return nil, err
	}

	es.cache.SetDefault(text, contentEmbedding.Values)

	span.SetAttributes(attribute.Int("embedding.dimension", len(contentEmbedding.Values)))
	span.SetStatus(codes.Ok, "Embedding generated successfully")

	es.logger.DebugContext(ctx, "Embedding generated",
		slog.Int("dimension", len(contentEmbedding.Values)),
		slog.String("model", es.model))

	return contentEmbedding.Values, nil
}

func metricAttrs(operation string) metric.RecordOption {
	return metric.WithAttributes(attribute.String("operation", operation))
}
