package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakatoku/sakarctic/app/observability/metrics"
	"github.com/sakatoku/sakarctic/internal/types"
)

// ErrPlanInvalid is returned when the model never produced a plan that passes
// validation within the attempt budget. Slots are never fabricated locally.
var ErrPlanInvalid = errors.New("planner produced no valid plan")

const dayLayout = "01/02"

// CompletionClient is the single-prompt completion dependency.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Ensure implementation satisfies the interface
var _ PlannerService = (*PlannerServiceImpl)(nil)

// PlannerService assigns catalog categories to time slots for the stay.
type PlannerService interface {
	BuildMealSlots(startDate, endDate string) ([]string, error)
	PlanRestaurants(ctx context.Context, request string, categories []string, startDate, endDate string) ([]types.PlannedSlot, error)
	PlanTourSpots(ctx context.Context, request string, categories []string, startDate, endDate string) ([]types.PlannedSlot, error)
}

// PlannerServiceImpl provides the implementation for PlannerService.
type PlannerServiceImpl struct {
	logger      *slog.Logger
	client      CompletionClient
	maxAttempts int
	mealHours   []int
}

// NewPlannerService creates a new planner service instance.
func NewPlannerService(client CompletionClient, maxAttempts int, mealHours []int, logger *slog.Logger) *PlannerServiceImpl {
	return &PlannerServiceImpl{
		logger:      logger,
		client:      client,
		maxAttempts: maxAttempts,
		mealHours:   mealHours,
	}
}

// BuildMealSlots returns one slot per meal hour for every day of the stay,
// labelled "MM/DD HH:00" and already in chronological order.
func (p *PlannerServiceImpl) BuildMealSlots(startDate, endDate string) ([]string, error) {
	days, err := stayDays(startDate, endDate)
	if err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(days)*len(p.mealHours))
	for _, day := range days {
		for _, hour := range p.mealHours {
			slots = append(slots, fmt.Sprintf("%s %02d:00", day.Format(dayLayout), hour))
		}
	}
	return slots, nil
}

// PlanRestaurants asks the model to assign a cuisine category to every meal
// slot of the stay, re-prompting until the assignment validates.
func (p *PlannerServiceImpl) PlanRestaurants(ctx context.Context, request string, categories []string, startDate, endDate string) ([]types.PlannedSlot, error) {
	ctx, span := otel.Tracer("PlannerService").Start(ctx, "PlanRestaurants", trace.WithAttributes(
		attribute.Int("categories.count", len(categories)),
		attribute.String("stay.start", startDate),
		attribute.String("stay.end", endDate),
	))
	defer span.End()

	mealSlots, err := p.BuildMealSlots(startDate, endDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid stay dates")
		return nil, err
	}

	prompt := generateRestaurantPlanPrompt(request, categories, mealSlots)
	slots, err := p.planWithRetry(ctx, prompt, func(plan map[string]string) error {
		return validateRestaurantPlan(plan, mealSlots, categories)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "No valid restaurant plan")
		return nil, err
	}

	span.SetAttributes(attribute.Int("slots.count", len(slots)))
	span.SetStatus(codes.Ok, "Restaurant plan generated")
	return slots, nil
}

// PlanTourSpots asks the model to propose sightseeing slots across the stay,
// re-prompting until every slot avoids the meal hours and uses a known
// category.
func (p *PlannerServiceImpl) PlanTourSpots(ctx context.Context, request string, categories []string, startDate, endDate string) ([]types.PlannedSlot, error) {
	ctx, span := otel.Tracer("PlannerService").Start(ctx, "PlanTourSpots", trace.WithAttributes(
		attribute.Int("categories.count", len(categories)),
		attribute.String("stay.start", startDate),
		attribute.String("stay.end", endDate),
	))
	defer span.End()

	days, err := stayDays(startDate, endDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid stay dates")
		return nil, err
	}

	prompt := generateTourSpotPlanPrompt(request, categories, startDate, endDate, p.mealHours)
	slots, err := p.planWithRetry(ctx, prompt, func(plan map[string]string) error {
		return p.validateTourSpotPlan(plan, days, categories)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "No valid tour spot plan")
		return nil, err
	}

	span.SetAttributes(attribute.Int("slots.count", len(slots)))
	span.SetStatus(codes.Ok, "Tour spot plan generated")
	return slots, nil
}

func (p *PlannerServiceImpl) planWithRetry(ctx context.Context, prompt string, validate func(map[string]string) error) ([]types.PlannedSlot, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		response, err := p.client.Complete(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to generate plan: %w", err)
		}

		plan, err := parseSlotPlan(response)
		if err == nil {
			err = validate(plan)
		}
		if err == nil {
			return sortedSlots(plan), nil
		}

		lastErr = err
		metrics.Get().PlannerRetriesTotal.Add(ctx, 1)
		p.logger.WarnContext(ctx, "Plan attempt rejected",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.maxAttempts),
			slog.Any("error", err))
	}

	metrics.Get().PlannerFailuresTotal.Add(ctx, 1)
	return nil, fmt.Errorf("%w: %v", ErrPlanInvalid, lastErr)
}

func validateRestaurantPlan(plan map[string]string, mealSlots, categories []string) error {
	categorySet := toSet(categories)
	slotSet := toSet(mealSlots)

	for slot, category := range plan {
		if !slotSet[slot] {
			return fmt.Errorf("unexpected meal slot %q", slot)
		}
		if !categorySet[category] {
			return fmt.Errorf("unknown category %q for slot %q", category, slot)
		}
	}
	for _, slot := range mealSlots {
		if _, ok := plan[slot]; !ok {
			return fmt.Errorf("meal slot %q missing from plan", slot)
		}
	}
	return nil
}

func (p *PlannerServiceImpl) validateTourSpotPlan(plan map[string]string, days []time.Time, categories []string) error {
	categorySet := toSet(categories)
	daySet := make(map[string]bool, len(days))
	for _, day := range days {
		daySet[day.Format(dayLayout)] = true
	}
	mealHourSet := make(map[int]bool, len(p.mealHours))
	for _, hour := range p.mealHours {
		mealHourSet[hour] = true
	}

	for slot, category := range plan {
		parsed, err := time.Parse(types.SlotLabelLayout, slot)
		if err != nil {
			return fmt.Errorf("malformed visit time %q", slot)
		}
		if parsed.Minute() != 0 {
			return fmt.Errorf("visit time %q is not on a whole hour", slot)
		}
		if !daySet[parsed.Format(dayLayout)] {
			return fmt.Errorf("visit time %q falls outside the stay", slot)
		}
		if mealHourSet[parsed.Hour()] {
			return fmt.Errorf("visit time %q collides with a meal hour", slot)
		}
		if !categorySet[category] {
			return fmt.Errorf("unknown category %q for slot %q", category, slot)
		}
	}
	return nil
}

// stayDays expands the inclusive MM/DD date range into individual days.
func stayDays(startDate, endDate string) ([]time.Time, error) {
	start, err := time.Parse(dayLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	end, err := time.Parse(dayLayout, endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %q precedes start date %q", endDate, startDate)
	}

	var days []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days, nil
}

func sortedSlots(plan map[string]string) []types.PlannedSlot {
	slots := make([]types.PlannedSlot, 0, len(plan))
	for visitTime, category := range plan {
		slots = append(slots, types.PlannedSlot{VisitTime: visitTime, Category: category})
	}
	// the MM/DD HH:MM label sorts chronologically as a plain string
	sort.Slice(slots, func(i, j int) bool { return slots[i].VisitTime < slots[j].VisitTime })
	return slots
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
