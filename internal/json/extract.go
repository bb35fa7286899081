// Package json extracts JSON payloads from generation backend output.
//
// Backends frequently wrap the requested JSON in markdown fences or
// surround it with commentary even in JSON mode. This package digs the
// object out of such responses before the validator sees it.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractInto extracts the JSON object from a backend response and
// unmarshals it into T.
func ExtractInto[T any](response string) (T, error) {
	var result T
	jsonStr, err := Extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return result, nil
}

// Extract returns the JSON object portion of a response string.
// It handles the common response shapes:
//  1. Pure JSON - returned as is
//  2. JSON inside markdown code fences (```json ... ```)
//  3. A JSON object embedded in prose - first '{' to last '}'
//
// Brace matching is deliberately simple; a response whose candidate
// slice does not unmarshal is an error, not a partial result.
func Extract(response string) (string, error) {
	response = stripCodeFences(response)

	var probe any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end > start {
			candidate := response[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
				return candidate, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON object in response: %q", preview)
}

func stripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
