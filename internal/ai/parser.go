package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var thinkTagRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinkTags removes DeepSeek R1 reasoning tags from the response.
func StripThinkTags(text string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(text, ""))
}

// ParseSignals parses a model response into signals.
// Handles: JSON array, single JSON object, markdown code fences, prose around the JSON.
func ParseSignals(text string) ([]Signal, error) {
	cleaned := StripThinkTags(text)

	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" || cleaned == "[]" {
		return nil, nil
	}

	var signals []Signal
	if err := json.Unmarshal([]byte(cleaned), &signals); err == nil {
		return signals, nil
	}

	var single Signal
	if err := json.Unmarshal([]byte(cleaned), &single); err == nil {
		return []Signal{single}, nil
	}

	jsonStart := strings.Index(cleaned, "[")
	jsonEnd := strings.LastIndex(cleaned, "]")
	if jsonStart >= 0 && jsonEnd > jsonStart {
		if err := json.Unmarshal([]byte(cleaned[jsonStart:jsonEnd+1]), &signals); err == nil {
			return signals, nil
		}
	}

	jsonStart = strings.Index(cleaned, "{")
	jsonEnd = strings.LastIndex(cleaned, "}")
	if jsonStart >= 0 && jsonEnd > jsonStart {
		if err := json.Unmarshal([]byte(cleaned[jsonStart:jsonEnd+1]), &single); err == nil {
			return []Signal{single}, nil
		}
	}

	return nil, fmt.Errorf("failed to parse AI response as JSON: %.200s", cleaned)
}
