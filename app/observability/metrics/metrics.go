package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	DialogueTurnsTotal        metric.Int64Counter
	ExtractionRetriesTotal    metric.Int64Counter
	PlannerRetriesTotal       metric.Int64Counter
	PlannerFailuresTotal      metric.Int64Counter
	LlmCallDurationSeconds    metric.Float64Histogram
	ItinerarySlotsFilledTotal metric.Int64Counter
	ItinerarySlotGapsTotal    metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metric instruments once, from the
// globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("SakArctic")
		var err error
		m := &AppMetrics{}

		m.DialogueTurnsTotal, err = meter.Int64Counter(
			"dialogue_turns_total",
			metric.WithDescription("Total number of dialogue turns processed"),
			metric.WithUnit("{turn}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create dialogue_turns_total: %v", err)
		}

		m.ExtractionRetriesTotal, err = meter.Int64Counter(
			"extraction_retries_total",
			metric.WithDescription("Total number of slot extraction retries"),
			metric.WithUnit("{retry}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create extraction_retries_total: %v", err)
		}

		m.PlannerRetriesTotal, err = meter.Int64Counter(
			"planner_retries_total",
			metric.WithDescription("Total number of planner output retries"),
			metric.WithUnit("{retry}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create planner_retries_total: %v", err)
		}

		m.PlannerFailuresTotal, err = meter.Int64Counter(
			"planner_failures_total",
			metric.WithDescription("Planner runs that exhausted all retries"),
			metric.WithUnit("{failure}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create planner_failures_total: %v", err)
		}

		m.LlmCallDurationSeconds, err = meter.Float64Histogram(
			"llm_call_duration_seconds",
			metric.WithDescription("Duration of completion and embedding calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create llm_call_duration_seconds: %v", err)
		}

		m.ItinerarySlotsFilledTotal, err = meter.Int64Counter(
			"itinerary_slots_filled_total",
			metric.WithDescription("Itinerary slots assigned a candidate"),
			metric.WithUnit("{slot}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create itinerary_slots_filled_total: %v", err)
		}

		m.ItinerarySlotGapsTotal, err = meter.Int64Counter(
			"itinerary_slot_gaps_total",
			metric.WithDescription("Itinerary slots left unassigned for lack of candidates"),
			metric.WithUnit("{slot}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create itinerary_slot_gaps_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
