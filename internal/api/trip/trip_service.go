package trip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sakatoku/sakarctic/internal/api/catalog"
	"github.com/sakatoku/sakarctic/internal/api/dialogue"
	"github.com/sakatoku/sakarctic/internal/api/itinerary"
	"github.com/sakatoku/sakarctic/internal/api/planner"
	"github.com/sakatoku/sakarctic/internal/api/scoring"
	"github.com/sakatoku/sakarctic/internal/types"
)

var (
	// ErrSessionNotFound marks an unknown or expired session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDialogueActive is returned when a plan is requested before the
	// dialogue collected the dates needed to build one.
	ErrDialogueActive = errors.New("dialogue has not collected enough details yet")
)

// EmbeddingClient turns text into a preference vector. Satisfied by
// generativeAI.EmbeddingService.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Ensure implementation satisfies the interface
var _ TripService = (*TripServiceImpl)(nil)

// TripService owns the per-session dialogue state and runs the planning
// pipeline once the dialogue is done.
type TripService interface {
	StartSession(ctx context.Context) (types.StepResponse, error)
	HandleMessage(ctx context.Context, sessionID uuid.UUID, message string) (types.StepResponse, error)
	BuildPlan(ctx context.Context, sessionID uuid.UUID) (*types.TripPlan, error)
}

// TripServiceImpl provides the implementation for TripService.
type TripServiceImpl struct {
	logger           *slog.Logger
	dialogueService  dialogue.DialogueService
	plannerService   planner.PlannerService
	scoringService   scoring.ScoringService
	itineraryService itinerary.ItineraryService
	embeddingClient  EmbeddingClient
	catalogRepo      catalog.CatalogRepository
	sessions         *cache.Cache
	exportDir        string
}

// NewTripService creates a new trip service instance. Sessions idle longer
// than sessionTTL are evicted.
func NewTripService(
	dialogueService dialogue.DialogueService,
	plannerService planner.PlannerService,
	scoringService scoring.ScoringService,
	itineraryService itinerary.ItineraryService,
	embeddingClient EmbeddingClient,
	catalogRepo catalog.CatalogRepository,
	sessionTTL time.Duration,
	exportDir string,
	logger *slog.Logger,
) *TripServiceImpl {
	return &TripServiceImpl{
		logger:           logger,
		dialogueService:  dialogueService,
		plannerService:   plannerService,
		scoringService:   scoringService,
		itineraryService: itineraryService,
		embeddingClient:  embeddingClient,
		catalogRepo:      catalogRepo,
		sessions:         cache.New(sessionTTL, 10*time.Minute),
		exportDir:        exportDir,
	}
}

// StartSession opens a new dialogue and returns its first question.
func (t *TripServiceImpl) StartSession(ctx context.Context) (types.StepResponse, error) {
	ctx, span := otel.Tracer("TripService").Start(ctx, "StartSession")
	defer span.End()

	sessionID := uuid.New()
	state, resp, err := t.dialogueService.Start(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start dialogue")
		return types.StepResponse{}, err
	}

	// The service owns session IDs; the response must address the stored key.
	resp.SessionID = sessionID
	t.sessions.SetDefault(sessionID.String(), state)
	t.logger.InfoContext(ctx, "Session started", slog.String("session_id", sessionID.String()))

	span.SetAttributes(attribute.String("session.id", sessionID.String()))
	span.SetStatus(codes.Ok, "Session started")
	return resp, nil
}

// HandleMessage advances the session's dialogue by one customer reply.
func (t *TripServiceImpl) HandleMessage(ctx context.Context, sessionID uuid.UUID, message string) (types.StepResponse, error) {
	ctx, span := otel.Tracer("TripService").Start(ctx, "HandleMessage", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	state, err := t.loadState(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return types.StepResponse{}, err
	}

	state, resp, err := t.dialogueService.Step(ctx, state, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Dialogue step failed")
		return types.StepResponse{}, err
	}

	t.sessions.SetDefault(sessionID.String(), state)
	span.SetStatus(codes.Ok, "Message handled")
	return resp, nil
}

// BuildPlan runs the full pipeline for a session: preference description,
// one embedding, then the two catalog legs in parallel sharing a name
// registry, and finally persistence.
func (t *TripServiceImpl) BuildPlan(ctx context.Context, sessionID uuid.UUID) (*types.TripPlan, error) {
	ctx, span := otel.Tracer("TripService").Start(ctx, "BuildPlan", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	state, err := t.loadState(sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Session not found")
		return nil, err
	}

	// A dialogue closed by the turn cap may still lack travel dates, and the
	// planner cannot lay out slots without them.
	startDate := state.Schema.Get(types.AttrStartDate)
	endDate := state.Schema.Get(types.AttrEndDate)
	if startDate == "" || endDate == "" {
		span.SetStatus(codes.Error, "Travel dates missing")
		return nil, ErrDialogueActive
	}

	request := state.Schema.RequestJSON()
	description, err := t.scoringService.DescribePreferences(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to describe preferences")
		return nil, err
	}

	prefVector, err := t.embeddingClient.GenerateEmbedding(ctx, description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to embed preferences")
		return nil, fmt.Errorf("failed to embed preference description: %w", err)
	}

	registry := itinerary.NewNameRegistry()
	var restaurants, tourSpots types.Itinerary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		restaurants, err = t.planCatalog(gctx, types.CatalogRestaurants, request, startDate, endDate, prefVector, registry)
		return err
	})
	g.Go(func() error {
		var err error
		tourSpots, err = t.planCatalog(gctx, types.CatalogTourSpots, request, startDate, endDate, prefVector, registry)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Planning pipeline failed")
		return nil, err
	}

	for _, result := range []types.Itinerary{restaurants, tourSpots} {
		if err := t.catalogRepo.SaveItinerary(ctx, sessionID, result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to persist itinerary")
			return nil, err
		}
		path, err := itinerary.ExportCSV(t.exportDir, sessionID, result)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to export itinerary")
			return nil, err
		}
		t.logger.InfoContext(ctx, "Itinerary exported",
			slog.String("session_id", sessionID.String()),
			slog.String("path", path))
	}

	span.SetStatus(codes.Ok, "Trip plan built")
	return &types.TripPlan{
		Preferences: description,
		Restaurants: restaurants,
		TourSpots:   tourSpots,
	}, nil
}

func (t *TripServiceImpl) planCatalog(ctx context.Context, kind types.CatalogKind, request, startDate, endDate string, prefVector []float32, registry *itinerary.NameRegistry) (types.Itinerary, error) {
	categories, err := t.catalogRepo.DistinctCategories(ctx, kind)
	if err != nil {
		return types.Itinerary{}, err
	}
	if len(categories) == 0 {
		return types.Itinerary{}, fmt.Errorf("catalog %q has no categories", kind)
	}

	var slots []types.PlannedSlot
	switch kind {
	case types.CatalogRestaurants:
		slots, err = t.plannerService.PlanRestaurants(ctx, request, categories, startDate, endDate)
	case types.CatalogTourSpots:
		slots, err = t.plannerService.PlanTourSpots(ctx, request, categories, startDate, endDate)
	default:
		err = fmt.Errorf("unknown catalog kind %q", kind)
	}
	if err != nil {
		return types.Itinerary{}, err
	}

	return t.itineraryService.Assemble(ctx, kind, slots, prefVector, registry)
}

func (t *TripServiceImpl) loadState(sessionID uuid.UUID) (types.DialogueState, error) {
	stored, found := t.sessions.Get(sessionID.String())
	if !found {
		return types.DialogueState{}, ErrSessionNotFound
	}
	state, ok := stored.(types.DialogueState)
	if !ok {
		return types.DialogueState{}, fmt.Errorf("corrupt session state for %s", sessionID)
	}
	return state, nil
}
