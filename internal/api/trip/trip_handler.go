package trip

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakatoku/sakarctic/internal/api"
	"github.com/sakatoku/sakarctic/internal/api/planner"
)

type TripHandler struct {
	tripService TripService
	logger      *slog.Logger
}

func NewTripHandler(tripService TripService, logger *slog.Logger) *TripHandler {
	return &TripHandler{
		tripService: tripService,
		logger:      logger,
	}
}

// CreateSession opens a new planning session and returns the first question.
func (h *TripHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TripHandler").Start(r.Context(), "CreateSession", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/trip/sessions"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "CreateSession"))

	resp, err := h.tripService.StartSession(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to start session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start session")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to start session")
		return
	}

	span.SetStatus(codes.Ok, "Session created")
	api.WriteJSONResponse(w, r, http.StatusCreated, resp)
}

// PostMessage advances the dialogue with one customer reply.
func (h *TripHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TripHandler").Start(r.Context(), "PostMessage", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/trip/sessions/{sessionID}/messages"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "PostMessage"))

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if body.Message == "" {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Message must not be empty")
		return
	}

	resp, err := h.tripService.HandleMessage(ctx, sessionID, body.Message)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, "Session not found")
		default:
			l.ErrorContext(ctx, "Failed to handle message", slog.Any("error", err))
			span.SetStatus(codes.Error, "Failed to handle message")
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to handle message")
		}
		return
	}

	span.SetStatus(codes.Ok, "Message handled")
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

// BuildPlan runs the planning pipeline for a finished dialogue.
func (h *TripHandler) BuildPlan(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TripHandler").Start(r.Context(), "BuildPlan", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/trip/sessions/{sessionID}/plan"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "BuildPlan"))

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID")
		return
	}

	plan, err := h.tripService.BuildPlan(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			api.ErrorResponse(w, r, http.StatusNotFound, "Session not found")
		case errors.Is(err, ErrDialogueActive):
			api.ErrorResponse(w, r, http.StatusConflict, "Dialogue has not collected enough details yet")
		case errors.Is(err, planner.ErrPlanInvalid):
			api.ErrorResponse(w, r, http.StatusUnprocessableEntity, "Could not produce a valid plan")
		default:
			l.ErrorContext(ctx, "Failed to build plan", slog.Any("error", err))
			span.SetStatus(codes.Error, "Failed to build plan")
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to build plan")
		}
		return
	}

	span.SetStatus(codes.Ok, "Plan built")
	api.WriteJSONResponse(w, r, http.StatusOK, plan)
}
