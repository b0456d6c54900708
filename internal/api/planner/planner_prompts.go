package planner

import (
	"fmt"
	"strings"
)

func generateRestaurantPlanPrompt(request string, categories, mealSlots []string) string {
	return fmt.Sprintf(`
        You are planning meals for a trip. The customer's request is:
        %s
        The meal slots to fill are: [%s].
        The available cuisine categories are: [%s].
        Assign exactly one cuisine category to every meal slot, matching the
        customer's tastes and varying the cuisine across the trip.
        Return the response STRICTLY as a flat JSON object mapping every meal
        slot to one category from the list, for example:
        {
        "%s": "%s"
        }`,
		request,
		strings.Join(mealSlots, ", "),
		strings.Join(categories, ", "),
		first(mealSlots), first(categories))
}

func generateTourSpotPlanPrompt(request string, categories []string, startDate, endDate string, mealHours []int) string {
	hours := make([]string, len(mealHours))
	for i, h := range mealHours {
		hours[i] = fmt.Sprintf("%02d:00", h)
	}
	return fmt.Sprintf(`
        You are planning sightseeing for a trip from %s to %s (dates are MM/DD).
        The customer's request is:
        %s
        The available tour spot categories are: [%s].
        Propose visit slots on whole hours between 09:00 and 20:00, two or three
        per day, matching the customer's interests. Meals are already planned at
        %s, so never use those times.
        Return the response STRICTLY as a flat JSON object mapping each visit
        time "MM/DD HH:00" to one category from the list, for example:
        {
        "%s 10:00": "%s"
        }`,
		startDate, endDate,
		request,
		strings.Join(categories, ", "),
		strings.Join(hours, ", "),
		startDate, first(categories))
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
