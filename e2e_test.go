package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/sakatoku/sakarctic/internal/api/dialogue"
	"github.com/sakatoku/sakarctic/internal/api/planner"
	"github.com/sakatoku/sakarctic/internal/api/trip"
	"github.com/sakatoku/sakarctic/internal/router"
	"github.com/sakatoku/sakarctic/internal/types"
)

// E2ETestSuite drives the HTTP surface end to end: real router, real
// handlers, and a scripted trip service standing in for the model-backed
// pipeline.
type E2ETestSuite struct {
	suite.Suite
	server  *httptest.Server
	client  *http.Client
	baseURL string
	service *scriptedTripService
}

func (suite *E2ETestSuite) SetupSuite() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	suite.service = newScriptedTripService()
	handler := trip.NewTripHandler(suite.service, logger)
	suite.server = httptest.NewServer(router.SetupRouter(&router.Config{TripHandler: handler}))
	suite.baseURL = suite.server.URL
	suite.client = &http.Client{Timeout: 10 * time.Second}
}

func (suite *E2ETestSuite) TearDownSuite() {
	if suite.server != nil {
		suite.server.Close()
	}
}

// scriptedTripService walks a fixed three-question dialogue and returns a
// canned plan once the dialogue finishes. It keeps the handler and router
// behavior under test without any model or database.
type scriptedTripService struct {
	mu        sync.Mutex
	turns     map[uuid.UUID]int
	questions []string
	planErr   error
}

func newScriptedTripService() *scriptedTripService {
	return &scriptedTripService{
		turns: make(map[uuid.UUID]int),
		questions: []string{
			"Where would you like to go?",
			"When does your trip start?",
			"When does your trip end?",
		},
	}
}

func (s *scriptedTripService) StartSession(_ context.Context) (types.StepResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := uuid.New()
	s.turns[sessionID] = 0
	return types.StepResponse{SessionID: sessionID, Message: s.questions[0]}, nil
}

func (s *scriptedTripService) HandleMessage(_ context.Context, sessionID uuid.UUID, message string) (types.StepResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, ok := s.turns[sessionID]
	if !ok {
		return types.StepResponse{}, trip.ErrSessionNotFound
	}

	turn++
	s.turns[sessionID] = turn
	if turn >= len(s.questions) {
		return types.StepResponse{
			SessionID: sessionID,
			Message:   dialogue.CompletedMessage,
			Finished:  true,
			Request:   `{"destination":"Sapporo"}`,
		}, nil
	}
	return types.StepResponse{SessionID: sessionID, Message: s.questions[turn]}, nil
}

func (s *scriptedTripService) BuildPlan(_ context.Context, sessionID uuid.UUID) (*types.TripPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn, ok := s.turns[sessionID]
	if !ok {
		return nil, trip.ErrSessionNotFound
	}
	if s.planErr != nil {
		return nil, s.planErr
	}
	if turn < len(s.questions) {
		return nil, trip.ErrDialogueActive
	}

	return &types.TripPlan{
		Preferences: "A relaxed food-focused stay in Sapporo.",
		Restaurants: types.Itinerary{
			Kind: types.CatalogRestaurants,
			Slots: []types.ScoredSlot{
				{
					VisitTime: "07/15 12:00",
					Category:  "ramen",
					Item:      &types.CatalogItem{Name: "Menya Saimi", Category: "ramen"},
					Score:     0.93,
				},
			},
		},
		TourSpots: types.Itinerary{Kind: types.CatalogTourSpots},
	}, nil
}

func (suite *E2ETestSuite) postJSON(path string, payload any) *http.Response {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(suite.T(), err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(http.MethodPost, suite.baseURL+path, body)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	return resp
}

func decodeStep(t *testing.T, resp *http.Response) types.StepResponse {
	t.Helper()
	defer resp.Body.Close()
	var step types.StepResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&step))
	return step
}

func (suite *E2ETestSuite) TestCompleteTripWorkflow() {
	t := suite.T()

	resp := suite.postJSON("/api/v1/trip/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	step := decodeStep(t, resp)
	require.NotEqual(t, uuid.Nil, step.SessionID)
	require.Equal(t, "Where would you like to go?", step.Message)
	sessionID := step.SessionID

	// A plan request before the dialogue is done must be rejected.
	resp = suite.postJSON(fmt.Sprintf("/api/v1/trip/sessions/%s/plan", sessionID), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	for _, answer := range []string{"Sapporo", "07/15", "07/16"} {
		resp = suite.postJSON(
			fmt.Sprintf("/api/v1/trip/sessions/%s/messages", sessionID),
			map[string]string{"message": answer},
		)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		step = decodeStep(t, resp)
	}
	require.True(t, step.Finished)
	require.Contains(t, step.Request, "Sapporo")

	resp = suite.postJSON(fmt.Sprintf("/api/v1/trip/sessions/%s/plan", sessionID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var plan types.TripPlan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	require.Equal(t, types.CatalogRestaurants, plan.Restaurants.Kind)
	require.Len(t, plan.Restaurants.Slots, 1)
	require.Equal(t, "Menya Saimi", plan.Restaurants.Slots[0].Item.Name)
}

func (suite *E2ETestSuite) TestUnknownSessionReturnsNotFound() {
	t := suite.T()
	missing := uuid.New()

	resp := suite.postJSON(
		fmt.Sprintf("/api/v1/trip/sessions/%s/messages", missing),
		map[string]string{"message": "hello"},
	)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = suite.postJSON(fmt.Sprintf("/api/v1/trip/sessions/%s/plan", missing), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func (suite *E2ETestSuite) TestMalformedRequestsReturnBadRequest() {
	t := suite.T()

	resp := suite.postJSON("/api/v1/trip/sessions/not-a-uuid/messages", map[string]string{"message": "hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	start := suite.postJSON("/api/v1/trip/sessions", nil)
	step := decodeStep(t, start)

	resp = suite.postJSON(
		fmt.Sprintf("/api/v1/trip/sessions/%s/messages", step.SessionID),
		map[string]string{"message": ""},
	)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func (suite *E2ETestSuite) TestInvalidPlanReturnsUnprocessable() {
	t := suite.T()

	start := suite.postJSON("/api/v1/trip/sessions", nil)
	step := decodeStep(t, start)
	for _, answer := range []string{"Sapporo", "07/15", "07/16"} {
		resp := suite.postJSON(
			fmt.Sprintf("/api/v1/trip/sessions/%s/messages", step.SessionID),
			map[string]string{"message": answer},
		)
		resp.Body.Close()
	}

	suite.service.mu.Lock()
	suite.service.planErr = fmt.Errorf("restaurants: %w", planner.ErrPlanInvalid)
	suite.service.mu.Unlock()
	defer func() {
		suite.service.mu.Lock()
		suite.service.planErr = nil
		suite.service.mu.Unlock()
	}()

	resp := suite.postJSON(fmt.Sprintf("/api/v1/trip/sessions/%s/plan", step.SessionID), nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func (suite *E2ETestSuite) TestPingEndpoint() {
	resp, err := suite.client.Get(suite.baseURL + "/ping")
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
}

func TestE2ETestSuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
