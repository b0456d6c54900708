package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Plans are flat string-to-string objects, so a non-nested match is enough to
// pull the object out of whatever prose the model wrapped around it.
var flatObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

func parseSlotPlan(response string) (map[string]string, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	jsonStr := flatObjectPattern.FindString(cleaned)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in plan response")
	}

	var plan map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("plan JSON is empty")
	}
	return plan, nil
}
