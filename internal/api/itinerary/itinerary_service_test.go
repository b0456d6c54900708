package itinerary

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sakatoku/sakarctic/app/observability/metrics"
	"github.com/sakatoku/sakarctic/internal/api/scoring"
	"github.com/sakatoku/sakarctic/internal/types"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	m.Run()
}

// MockCatalogRepository is a mock implementation of catalog.CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) DistinctCategories(ctx context.Context, kind types.CatalogKind) ([]string, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockCatalogRepository) ItemsByCategory(ctx context.Context, kind types.CatalogKind, filter types.CatalogFilter) ([]*types.CatalogItem, error) {
	args := m.Called(ctx, kind, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.CatalogItem), args.Error(1)
}

func (m *MockCatalogRepository) SaveItinerary(ctx context.Context, sessionID uuid.UUID, itinerary types.Itinerary) error {
	args := m.Called(ctx, sessionID, itinerary)
	return args.Error(0)
}

// stubScorer assigns fixed scores by item name.
type stubScorer struct {
	scores map[string]float64
}

func (s stubScorer) ScoreItems(ctx context.Context, prefVector []float32, items []*types.CatalogItem) []scoring.ScoredCandidate {
	candidates := make([]scoring.ScoredCandidate, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, scoring.ScoredCandidate{Item: item, Score: s.scores[item.Name]})
	}
	return candidates
}

func newTestService(repo *MockCatalogRepository, scores map[string]float64) *ItineraryServiceImpl {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return NewItineraryService(repo, stubScorer{scores: scores}, logger)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fakeCatalogSet serves candidates from an in-memory catalog and honors the
// exclusion list, mirroring the name <> ALL filter the SQL repository applies.
type fakeCatalogSet struct {
	itemsByKind map[types.CatalogKind]map[string][]*types.CatalogItem
}

func (f fakeCatalogSet) DistinctCategories(ctx context.Context, kind types.CatalogKind) ([]string, error) {
	var categories []string
	for category := range f.itemsByKind[kind] {
		categories = append(categories, category)
	}
	return categories, nil
}

func (f fakeCatalogSet) ItemsByCategory(ctx context.Context, kind types.CatalogKind, filter types.CatalogFilter) ([]*types.CatalogItem, error) {
	excluded := make(map[string]bool, len(filter.ExcludeNames))
	for _, name := range filter.ExcludeNames {
		excluded[name] = true
	}
	var items []*types.CatalogItem
	for _, item := range f.itemsByKind[kind][filter.Category] {
		if !excluded[item.Name] {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f fakeCatalogSet) SaveItinerary(ctx context.Context, sessionID uuid.UUID, itinerary types.Itinerary) error {
	return nil
}

func namedItems(names ...string) []*types.CatalogItem {
	items := make([]*types.CatalogItem, 0, len(names))
	for _, name := range names {
		items = append(items, &types.CatalogItem{Name: name, Category: "ramen"})
	}
	return items
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()

	t.Run("picks the highest scoring candidate per slot", func(t *testing.T) {
		repo := new(MockCatalogRepository)
		repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(namedItems("Okay", "Great", "Fine"), nil).Once()
		service := newTestService(repo, map[string]float64{"Okay": 0.5, "Great": 0.9, "Fine": 0.6})

		itinerary, err := service.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{{VisitTime: "07/15 08:00", Category: "ramen"}},
			[]float32{1}, NewNameRegistry())

		require.NoError(t, err)
		require.Len(t, itinerary.Slots, 1)
		assert.Equal(t, "Great", itinerary.Slots[0].Item.Name)
		assert.InDelta(t, 0.9, itinerary.Slots[0].Score, 1e-9)
		repo.AssertExpectations(t)
	})

	t.Run("processes slots chronologically regardless of input order", func(t *testing.T) {
		repo := new(MockCatalogRepository)
		repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(namedItems("A", "B", "C"), nil).Times(3)
		service := newTestService(repo, map[string]float64{"A": 0.9, "B": 0.8, "C": 0.7})

		itinerary, err := service.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{
				{VisitTime: "07/15 18:00", Category: "ramen"},
				{VisitTime: "07/15 08:00", Category: "ramen"},
				{VisitTime: "07/15 12:00", Category: "ramen"},
			},
			[]float32{1}, NewNameRegistry())

		require.NoError(t, err)
		require.Len(t, itinerary.Slots, 3)
		assert.Equal(t, "07/15 08:00", itinerary.Slots[0].VisitTime)
		assert.Equal(t, "07/15 12:00", itinerary.Slots[1].VisitTime)
		assert.Equal(t, "07/15 18:00", itinerary.Slots[2].VisitTime)
		// earliest slot gets the best item
		assert.Equal(t, "A", itinerary.Slots[0].Item.Name)
	})

	t.Run("never places the same name twice", func(t *testing.T) {
		repo := new(MockCatalogRepository)
		repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(namedItems("Best", "Second"), nil).Times(2)
		service := newTestService(repo, map[string]float64{"Best": 0.9, "Second": 0.5})

		itinerary, err := service.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{
				{VisitTime: "07/15 08:00", Category: "ramen"},
				{VisitTime: "07/15 12:00", Category: "ramen"},
			},
			[]float32{1}, NewNameRegistry())

		require.NoError(t, err)
		require.Len(t, itinerary.Slots, 2)
		assert.Equal(t, "Best", itinerary.Slots[0].Item.Name)
		assert.Equal(t, "Second", itinerary.Slots[1].Item.Name)
	})

	t.Run("dedup spans catalogs through a shared registry", func(t *testing.T) {
		registry := NewNameRegistry()
		scores := map[string]float64{"Grand Tower": 0.9, "Side Cafe": 0.4}

		restaurantRepo := new(MockCatalogRepository)
		restaurantRepo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(namedItems("Grand Tower", "Side Cafe"), nil).Once()
		restaurantService := newTestService(restaurantRepo, scores)

		first, err := restaurantService.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{{VisitTime: "07/15 08:00", Category: "ramen"}},
			[]float32{1}, registry)
		require.NoError(t, err)
		require.Len(t, first.Slots, 1)
		assert.Equal(t, "Grand Tower", first.Slots[0].Item.Name)

		// the same name exists in the other catalog too
		tourRepo := new(MockCatalogRepository)
		tourRepo.On("ItemsByCategory", mock.Anything, types.CatalogTourSpots,
			mock.MatchedBy(func(f types.CatalogFilter) bool {
				return len(f.ExcludeNames) == 1 && f.ExcludeNames[0] == "Grand Tower"
			})).
			Return(namedItems("Side Cafe"), nil).Once()
		tourService := newTestService(tourRepo, scores)

		second, err := tourService.Assemble(ctx, types.CatalogTourSpots,
			[]types.PlannedSlot{{VisitTime: "07/15 10:00", Category: "ramen"}},
			[]float32{1}, registry)
		require.NoError(t, err)
		require.Len(t, second.Slots, 1)
		assert.Equal(t, "Side Cafe", second.Slots[0].Item.Name)
		tourRepo.AssertExpectations(t)
	})

	t.Run("breaks score ties on the smallest name", func(t *testing.T) {
		repo := new(MockCatalogRepository)
		repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(namedItems("Zeta", "Alpha", "Mid"), nil).Once()
		service := newTestService(repo, map[string]float64{"Zeta": 0.7, "Alpha": 0.7, "Mid": 0.7})

		itinerary, err := service.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{{VisitTime: "07/15 08:00", Category: "ramen"}},
			[]float32{1}, NewNameRegistry())

		require.NoError(t, err)
		require.Len(t, itinerary.Slots, 1)
		assert.Equal(t, "Alpha", itinerary.Slots[0].Item.Name)
	})

	t.Run("drops slots with no candidates left", func(t *testing.T) {
		repo := new(MockCatalogRepository)
		repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(namedItems("Only"), nil).Times(2)
		service := newTestService(repo, map[string]float64{"Only": 0.9})

		itinerary, err := service.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{
				{VisitTime: "07/15 08:00", Category: "ramen"},
				{VisitTime: "07/15 12:00", Category: "ramen"},
			},
			[]float32{1}, NewNameRegistry())

		require.NoError(t, err)
		require.Len(t, itinerary.Slots, 1)
		assert.Equal(t, "07/15 08:00", itinerary.Slots[0].VisitTime)
	})

	t.Run("propagates repository failures", func(t *testing.T) {
		repo := new(MockCatalogRepository)
		repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
			Return(nil, assert.AnError).Once()
		service := newTestService(repo, nil)

		_, err := service.Assemble(ctx, types.CatalogRestaurants,
			[]types.PlannedSlot{{VisitTime: "07/15 08:00", Category: "ramen"}},
			[]float32{1}, NewNameRegistry())

		require.Error(t, err)
	})
}

func TestAssemble_RandomizedGlobalDedup(t *testing.T) {
	// Random slot sequences over catalogs that reuse the same small name pool,
	// so the same venue keeps showing up across categories and both catalogs.
	// Whatever the draw, no name may be placed twice in one trip.
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	rng := rand.New(rand.NewSource(7))

	categories := []string{"ramen", "sushi", "museum", "park"}
	names := []string{"Aurora", "Beacon", "Cedar", "Dune", "Ember", "Flint"}

	for round := 0; round < 30; round++ {
		catalogs := map[types.CatalogKind]map[string][]*types.CatalogItem{
			types.CatalogRestaurants: {},
			types.CatalogTourSpots:   {},
		}
		for _, byCategory := range catalogs {
			for _, category := range categories {
				count := 1 + rng.Intn(len(names))
				for _, idx := range rng.Perm(len(names))[:count] {
					byCategory[category] = append(byCategory[category],
						&types.CatalogItem{Name: names[idx], Category: category})
				}
			}
		}

		scores := make(map[string]float64, len(names))
		for _, name := range names {
			scores[name] = rng.Float64()
		}
		service := NewItineraryService(fakeCatalogSet{itemsByKind: catalogs},
			stubScorer{scores: scores}, logger)

		registry := NewNameRegistry()
		placed := make(map[string]int)
		for _, kind := range []types.CatalogKind{types.CatalogRestaurants, types.CatalogTourSpots} {
			var slots []types.PlannedSlot
			for i := 0; i < 1+rng.Intn(6); i++ {
				slots = append(slots, types.PlannedSlot{
					VisitTime: fmt.Sprintf("07/%02d %02d:00", 15+rng.Intn(3), 8+rng.Intn(12)),
					Category:  categories[rng.Intn(len(categories))],
				})
			}

			result, err := service.Assemble(ctx, kind, slots, []float32{1}, registry)
			require.NoError(t, err)
			for _, slot := range result.Slots {
				placed[slot.Item.Name]++
			}
		}

		for name, count := range placed {
			assert.Equal(t, 1, count, "round %d placed %q %d times", round, name, count)
		}
	}
}

func TestAssemble_PicksCosineClosestWithRealScorer(t *testing.T) {
	// Wires the real scoring service into the assembler: of three seafood
	// candidates, the one whose embedding is closest to the preference vector
	// must win the slot.
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))

	items := []*types.CatalogItem{
		{Name: "Harbor Grill", Category: "seafood", Embedding: []float32{1, 0, 0}},
		{Name: "Pier Kitchen", Category: "seafood", Embedding: []float32{0.6, 0.8, 0}},
		{Name: "Reef House", Category: "seafood", Embedding: []float32{0, 0, 1}},
	}
	prefVector := []float32{0.55, 0.82, 0.1}

	repo := new(MockCatalogRepository)
	repo.On("ItemsByCategory", mock.Anything, types.CatalogRestaurants, mock.Anything).
		Return(items, nil).Once()

	scorer := scoring.NewScoringService(nil,
		scoring.SafetyBlend{Weight: 0.05, Min: 1291, Max: 68930}, logger)
	service := NewItineraryService(repo, scorer, logger)

	itinerary, err := service.Assemble(ctx, types.CatalogRestaurants,
		[]types.PlannedSlot{{VisitTime: "07/15 18:00", Category: "seafood"}},
		prefVector, NewNameRegistry())

	require.NoError(t, err)
	require.Len(t, itinerary.Slots, 1)
	assert.Equal(t, "Pier Kitchen", itinerary.Slots[0].Item.Name)
	assert.Greater(t, itinerary.Slots[0].Score, 0.9)
	repo.AssertExpectations(t)
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	sessionID := uuid.New()
	itinerary := types.Itinerary{
		Kind: types.CatalogRestaurants,
		Slots: []types.ScoredSlot{
			{
				VisitTime: "07/15 08:00",
				Category:  "ramen",
				Item: &types.CatalogItem{
					Name: "Menya Saimi", Category: "ramen",
					Website: "https://example.jp", Latitude: 43.03, Longitude: 141.34,
				},
				Score: 0.91,
			},
		},
	}

	path, err := ExportCSV(dir, sessionID, itinerary)
	require.NoError(t, err)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "07/15 08:00", records[1][0])
	assert.Equal(t, "Menya Saimi", records[1][1])
	assert.Equal(t, "0.91", records[1][6])
}
