package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakatoku/sakarctic/internal/types"
)

// CompletionClient is the single-prompt completion dependency.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SafetyBlend holds the calibration for folding area crime totals into the
// preference score. Items without a safety figure score on similarity alone.
type SafetyBlend struct {
	Weight float64
	Min    float64
	Max    float64
}

// ScoredCandidate pairs a catalog item with its preference score.
type ScoredCandidate struct {
	Item  *types.CatalogItem
	Score float64
}

// Ensure implementation satisfies the interface
var _ ScoringService = (*ScoringServiceImpl)(nil)

// ScoringService turns the collected trip request into a preference
// description and ranks catalog items against its embedding.
type ScoringService interface {
	DescribePreferences(ctx context.Context, request string) (string, error)
	ScoreItems(ctx context.Context, prefVector []float32, items []*types.CatalogItem) []ScoredCandidate
}

// ScoringServiceImpl provides the implementation for ScoringService.
type ScoringServiceImpl struct {
	logger *slog.Logger
	client CompletionClient
	blend  SafetyBlend
}

// NewScoringService creates a new scoring service instance.
func NewScoringService(client CompletionClient, blend SafetyBlend, logger *slog.Logger) *ScoringServiceImpl {
	return &ScoringServiceImpl{
		logger: logger,
		client: client,
		blend:  blend,
	}
}

// DescribePreferences produces a short prose description of the customer's
// tastes from the request JSON. The description is what gets embedded and
// compared against the catalog summaries.
func (s *ScoringServiceImpl) DescribePreferences(ctx context.Context, request string) (string, error) {
	ctx, span := otel.Tracer("ScoringService").Start(ctx, "DescribePreferences")
	defer span.End()

	response, err := s.client.Complete(ctx, generatePreferenceDescriptionPrompt(request))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to describe preferences")
		return "", fmt.Errorf("failed to describe preferences: %w", err)
	}

	description := strings.TrimSpace(response)
	if description == "" {
		err := fmt.Errorf("empty preference description")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty preference description")
		return "", err
	}

	span.SetAttributes(attribute.Int("description.length", len(description)))
	span.SetStatus(codes.Ok, "Preferences described")
	return description, nil
}

// ScoreItems ranks items by cosine similarity to the preference vector. When
// an item carries a safety figure, safer areas get a small bonus on top of the
// similarity. The output preserves the input order, the score is pure data.
func (s *ScoringServiceImpl) ScoreItems(ctx context.Context, prefVector []float32, items []*types.CatalogItem) []ScoredCandidate {
	_, span := otel.Tracer("ScoringService").Start(ctx, "ScoreItems", trace.WithAttributes(
		attribute.Int("items.count", len(items)),
	))
	defer span.End()

	candidates := make([]ScoredCandidate, 0, len(items))
	for _, item := range items {
		score := cosineSimilarity(prefVector, item.Embedding)
		if item.SafetyScore != nil {
			normalized := (*item.SafetyScore - s.blend.Min) / (s.blend.Max - s.blend.Min)
			score += (1 - normalized) * s.blend.Weight
		}
		candidates = append(candidates, ScoredCandidate{Item: item, Score: score})
	}

	span.SetStatus(codes.Ok, "Items scored")
	return candidates
}

// cosineSimilarity of two vectors. Mismatched or zero-magnitude vectors
// score zero rather than erroring, the caller treats them as unrankable.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
