package itinerary

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakatoku/sakarctic/app/observability/metrics"
	"github.com/sakatoku/sakarctic/internal/api/catalog"
	"github.com/sakatoku/sakarctic/internal/api/scoring"
	"github.com/sakatoku/sakarctic/internal/types"
)

// NameRegistry tracks catalog item names already placed anywhere in the trip.
// It is shared between the restaurant and tour spot legs, which may run
// concurrently, so the same venue never appears twice in one trip.
type NameRegistry struct {
	mu    sync.Mutex
	names map[string]bool
}

func NewNameRegistry() *NameRegistry {
	return &NameRegistry{names: make(map[string]bool)}
}

// Claim reserves a name. It returns false when the name was already taken.
func (r *NameRegistry) Claim(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[name] {
		return false
	}
	r.names[name] = true
	return true
}

// Names returns a snapshot of the claimed names, sorted for determinism.
func (r *NameRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scorer ranks catalog items against the preference vector.
type Scorer interface {
	ScoreItems(ctx context.Context, prefVector []float32, items []*types.CatalogItem) []scoring.ScoredCandidate
}

// Ensure implementation satisfies the interface
var _ ItineraryService = (*ItineraryServiceImpl)(nil)

// ItineraryService fills planned slots with the best-scoring catalog items.
type ItineraryService interface {
	Assemble(ctx context.Context, kind types.CatalogKind, slots []types.PlannedSlot, prefVector []float32, registry *NameRegistry) (types.Itinerary, error)
}

// ItineraryServiceImpl provides the implementation for ItineraryService.
type ItineraryServiceImpl struct {
	logger *slog.Logger
	repo   catalog.CatalogRepository
	scorer Scorer
}

// NewItineraryService creates a new itinerary service instance.
func NewItineraryService(repo catalog.CatalogRepository, scorer Scorer, logger *slog.Logger) *ItineraryServiceImpl {
	return &ItineraryServiceImpl{
		logger: logger,
		repo:   repo,
		scorer: scorer,
	}
}

// Assemble walks the planned slots chronologically and assigns each one the
// highest-scoring catalog item of its category that is not yet used anywhere
// in the trip. Score ties break on the lexicographically smallest name. Slots
// with no remaining candidates are dropped.
func (s *ItineraryServiceImpl) Assemble(ctx context.Context, kind types.CatalogKind, slots []types.PlannedSlot, prefVector []float32, registry *NameRegistry) (types.Itinerary, error) {
	ctx, span := otel.Tracer("ItineraryService").Start(ctx, "Assemble", trace.WithAttributes(
		attribute.String("catalog.kind", string(kind)),
		attribute.Int("slots.count", len(slots)),
	))
	defer span.End()

	ordered := make([]types.PlannedSlot, len(slots))
	copy(ordered, slots)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].VisitTime < ordered[j].VisitTime })

	itinerary := types.Itinerary{Kind: kind}
	for _, slot := range ordered {
		items, err := s.repo.ItemsByCategory(ctx, kind, types.CatalogFilter{
			Category:     slot.Category,
			ExcludeNames: registry.Names(),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to load candidates")
			return types.Itinerary{}, fmt.Errorf("failed to load candidates for slot %q: %w", slot.VisitTime, err)
		}

		candidates := s.scorer.ScoreItems(ctx, prefVector, items)
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Score != candidates[j].Score {
				return candidates[i].Score > candidates[j].Score
			}
			return candidates[i].Item.Name < candidates[j].Item.Name
		})

		chosen := claimBest(candidates, registry)
		if chosen == nil {
			metrics.Get().ItinerarySlotGapsTotal.Add(ctx, 1)
			s.logger.InfoContext(ctx, "No candidate left for slot",
				slog.String("visit_time", slot.VisitTime),
				slog.String("category", slot.Category))
			continue
		}

		metrics.Get().ItinerarySlotsFilledTotal.Add(ctx, 1)
		itinerary.Slots = append(itinerary.Slots, types.ScoredSlot{
			VisitTime: slot.VisitTime,
			Category:  slot.Category,
			Item:      chosen.Item,
			Score:     chosen.Score,
		})
	}

	span.SetAttributes(attribute.Int("slots.filled", len(itinerary.Slots)))
	span.SetStatus(codes.Ok, "Itinerary assembled")
	return itinerary, nil
}

// claimBest takes the first candidate whose name can still be claimed. The
// registry may have grown since the exclusion list was queried, so a claim
// can fail even on freshly fetched candidates.
func claimBest(candidates []scoring.ScoredCandidate, registry *NameRegistry) *scoring.ScoredCandidate {
	for i := range candidates {
		if registry.Claim(candidates[i].Item.Name) {
			return &candidates[i]
		}
	}
	return nil
}
