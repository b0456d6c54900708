package dialogue

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sakatoku/sakarctic/internal/types"
)

var dateValuePattern = regexp.MustCompile(`^\d{2}/\d{2}$`)

// stripCodeFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// Models often surround the object with prose despite instructions.
func extractJSONObject(s string) (string, error) {
	s = stripCodeFences(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

func parseVerdict(response string) (bool, error) {
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return false, err
	}
	var verdict struct {
		Answer bool `json:"answer"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		return false, fmt.Errorf("failed to parse verdict JSON: %w", err)
	}
	return verdict.Answer, nil
}

func parseExtractedValue(response string, attribute types.TripAttribute) (string, error) {
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return "", err
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		return "", fmt.Errorf("failed to parse extraction JSON: %w", err)
	}
	value := strings.TrimSpace(fields[string(attribute)])
	if value == "" {
		return "", fmt.Errorf("extraction JSON missing %q", attribute)
	}
	if types.DateAttributes[attribute] && !dateValuePattern.MatchString(value) {
		return "", fmt.Errorf("extracted date %q is not in MM/DD format", value)
	}
	return value, nil
}
