package generativeAI

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/sakatoku/sakarctic/app/observability/metrics"
)

// ErrGeneration is returned when the model call itself fails, as opposed to
// the model returning content the caller cannot use.
var ErrGeneration = errors.New("content generation failed")

// ErrEmptyResponse is returned when the model call succeeds but yields no text.
var ErrEmptyResponse = errors.New("model returned empty response")

type AIClient struct {
	client      *genai.Client
	model       string
	temperature float32
	callTimeout time.Duration
}

// NewAIClient creates a Gemini-backed completion client. The API key is read
// from GOOGLE_GEMINI_API_KEY.
func NewAIClient(ctx context.Context, model string, temperature float32, callTimeout time.Duration) (*AIClient, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "NewAIClient")
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
		return nil, err
	}

	span.SetStatus(codes.Ok, "AI client created successfully")
	return &AIClient{
		client:      client,
		model:       model,
		temperature: temperature,
		callTimeout: callTimeout,
	}, nil
}

// Complete sends a single standalone prompt and returns the model's text.
// Every call is independent, the model sees no history beyond the prompt.
func (ai *AIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("GenerativeAI").Start(ctx, "Complete", trace.WithAttributes(
		attribute.Int("prompt.length", len(prompt)),
		attribute.String("model", ai.model),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, ai.callTimeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(ai.temperature),
	}

	start := time.Now()
	result, err := ai.client.Models.GenerateContent(ctx, ai.model, genai.Text(prompt), config)
	metrics.Get().LlmCallDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metricAttrs("complete"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate content")
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	responseText := result.Text()
	if responseText == "" {
		span.SetStatus(codes.Error, "Empty response from model")
		return "", ErrEmptyResponse
	}

	span.SetAttributes(attribute.Int("response.length", len(responseText)))
	span.SetStatus(codes.Ok, "Content generated successfully")
	return responseText, nil
}
