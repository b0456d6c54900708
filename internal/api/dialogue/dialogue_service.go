package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakatoku/sakarctic/app/observability/metrics"
	"github.com/sakatoku/sakarctic/internal/types"
)

const (
	// NotUnderstoodMessage is sent back whenever a reply cannot be validated
	// or its value cannot be extracted. The question is then asked again.
	NotUnderstoodMessage = "I did not understand it well. Could you please answer again?"

	// CompletedMessage closes the dialogue, either because every attribute is
	// filled or because the turn cap forced a stop.
	CompletedMessage = "Thank you! I have everything I need, let me put your trip plan together."
)

var (
	// ErrNotUnderstood marks a reply the model judged as not answering the
	// pending question.
	ErrNotUnderstood = errors.New("reply did not answer the question")

	// ErrExtractionFailed marks a validated reply whose value could not be
	// extracted within the retry budget.
	ErrExtractionFailed = errors.New("could not extract attribute value")
)

// CompletionClient is the single-prompt completion dependency. Satisfied by
// generativeAI.AIClient.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Ensure implementation satisfies the interface
var _ DialogueService = (*DialogueServiceImpl)(nil)

// DialogueService runs the slot-filling conversation that collects the trip
// schema one attribute at a time.
type DialogueService interface {
	Start(ctx context.Context, sessionID uuid.UUID) (types.DialogueState, types.StepResponse, error)
	Step(ctx context.Context, state types.DialogueState, reply string) (types.DialogueState, types.StepResponse, error)
}

// DialogueServiceImpl provides the implementation for DialogueService.
type DialogueServiceImpl struct {
	logger            *slog.Logger
	client            CompletionClient
	maxTurns          int
	extractionRetries int
}

// NewDialogueService creates a new dialogue service instance.
func NewDialogueService(client CompletionClient, maxTurns, extractionRetries int, logger *slog.Logger) *DialogueServiceImpl {
	return &DialogueServiceImpl{
		logger:            logger,
		client:            client,
		maxTurns:          maxTurns,
		extractionRetries: extractionRetries,
	}
}

// Start opens a fresh dialogue and asks the first question.
func (d *DialogueServiceImpl) Start(ctx context.Context, sessionID uuid.UUID) (types.DialogueState, types.StepResponse, error) {
	ctx, span := otel.Tracer("DialogueService").Start(ctx, "Start", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	state := types.DialogueState{
		SessionID: sessionID,
		Schema:    types.NewTripSchema(),
	}

	pending, _ := state.Schema.FirstUnset()
	question, err := d.askQuestion(ctx, pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate opening question")
		return state, types.StepResponse{}, err
	}

	state.Pending = pending
	state.LastQuestion = question
	state.History = appendTurn(state.History, types.RoleAssistant, question)

	span.SetStatus(codes.Ok, "Dialogue started")
	return state, types.StepResponse{SessionID: sessionID, Message: question}, nil
}

// Step processes one customer reply: validate it against the pending question,
// extract the attribute value, then move on to the next question. Replies that
// cannot be used trigger a re-ask of the same question rather than an error.
// Exceeding the turn cap closes the dialogue with whatever attributes were
// collected so far.
func (d *DialogueServiceImpl) Step(ctx context.Context, state types.DialogueState, reply string) (types.DialogueState, types.StepResponse, error) {
	ctx, span := otel.Tracer("DialogueService").Start(ctx, "Step", trace.WithAttributes(
		attribute.String("session.id", state.SessionID.String()),
		attribute.String("pending.attribute", string(state.Pending)),
		attribute.Int("turn", state.Turns+1),
	))
	defer span.End()

	state = state.Clone()

	if state.Finished {
		span.SetStatus(codes.Ok, "Dialogue already finished")
		return state, d.finishedResponse(state), nil
	}

	state.History = appendTurn(state.History, types.RoleUser, reply)
	state.Turns++
	metrics.Get().DialogueTurnsTotal.Add(ctx, 1)

	if state.Turns > d.maxTurns {
		d.logger.WarnContext(ctx, "Turn limit reached, closing dialogue with a partial schema",
			slog.String("session_id", state.SessionID.String()),
			slog.Int("turns", state.Turns))
		state.Finished = true
		state.Pending = ""
		state.LastQuestion = ""
		state.History = appendTurn(state.History, types.RoleAssistant, CompletedMessage)
		span.SetStatus(codes.Ok, "Turn limit reached, dialogue closed")
		return state, d.finishedResponse(state), nil
	}

	value, err := d.validateAndExtract(ctx, state, reply)
	if err != nil {
		if errors.Is(err, ErrNotUnderstood) || errors.Is(err, ErrExtractionFailed) {
			d.logger.InfoContext(ctx, "Re-asking question",
				slog.String("session_id", state.SessionID.String()),
				slog.String("attribute", string(state.Pending)),
				slog.Any("reason", err))
			state.History = appendTurn(state.History, types.RoleAssistant, NotUnderstoodMessage)
			span.SetStatus(codes.Ok, "Reply not usable, re-asking")
			return state, types.StepResponse{SessionID: state.SessionID, Message: NotUnderstoodMessage}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Dialogue step failed")
		return state, types.StepResponse{}, err
	}

	if err := state.Schema.Set(state.Pending, value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to record attribute")
		return state, types.StepResponse{}, fmt.Errorf("failed to record attribute %q: %w", state.Pending, err)
	}

	next, ok := state.Schema.FirstUnset()
	if !ok {
		state.Finished = true
		state.Pending = ""
		state.LastQuestion = ""
		state.History = appendTurn(state.History, types.RoleAssistant, CompletedMessage)
		span.SetStatus(codes.Ok, "Dialogue completed")
		return state, d.finishedResponse(state), nil
	}

	question, err := d.askQuestion(ctx, next)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate next question")
		return state, types.StepResponse{}, err
	}

	state.Pending = next
	state.LastQuestion = question
	state.History = appendTurn(state.History, types.RoleAssistant, question)

	span.SetStatus(codes.Ok, "Attribute recorded, next question asked")
	return state, types.StepResponse{SessionID: state.SessionID, Message: question}, nil
}

func (d *DialogueServiceImpl) finishedResponse(state types.DialogueState) types.StepResponse {
	return types.StepResponse{
		SessionID: state.SessionID,
		Message:   CompletedMessage,
		Finished:  true,
		Request:   state.Schema.RequestJSON(),
	}
}

func (d *DialogueServiceImpl) askQuestion(ctx context.Context, attribute types.TripAttribute) (string, error) {
	response, err := d.client.Complete(ctx, generateQuestionPrompt(attribute))
	if err != nil {
		return "", fmt.Errorf("failed to generate question for %q: %w", attribute, err)
	}
	return stripCodeFences(response), nil
}

func (d *DialogueServiceImpl) validateAndExtract(ctx context.Context, state types.DialogueState, reply string) (string, error) {
	verdictResponse, err := d.client.Complete(ctx, generateValidationPrompt(state.Pending, state.LastQuestion, reply))
	if err != nil {
		return "", fmt.Errorf("failed to validate reply: %w", err)
	}
	verdict, err := parseVerdict(verdictResponse)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotUnderstood, err)
	}
	if !verdict {
		return "", ErrNotUnderstood
	}

	var lastErr error
	for attempt := 1; attempt <= d.extractionRetries; attempt++ {
		extractionResponse, err := d.client.Complete(ctx, generateExtractionPrompt(state.Pending, state.LastQuestion, reply))
		if err != nil {
			return "", fmt.Errorf("failed to extract attribute value: %w", err)
		}
		value, err := parseExtractedValue(extractionResponse, state.Pending)
		if err == nil {
			return value, nil
		}
		lastErr = err
		metrics.Get().ExtractionRetriesTotal.Add(ctx, 1)
		d.logger.WarnContext(ctx, "Extraction attempt failed",
			slog.String("attribute", string(state.Pending)),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
	return "", fmt.Errorf("%w: %v", ErrExtractionFailed, lastErr)
}

func appendTurn(history []types.ConversationTurn, role types.MessageRole, content string) []types.ConversationTurn {
	return append(history, types.ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}
