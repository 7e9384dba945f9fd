// Package extract recovers a JSON object from free-form model output.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Stage names the strategy that produced an object
type Stage string

const (
	StageNone   Stage = "none"
	StageRaw    Stage = "raw"
	StageFenced Stage = "fenced"
	StageSlice  Stage = "slice"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Object extracts one JSON object from text. It returns an empty, non-nil map
// when nothing can be recovered.
func Object(text string) map[string]any {
	obj, _ := ObjectWithStage(text)
	return obj
}

// ObjectWithStage is Object plus the strategy that succeeded.
// Strategies are tried in order: the whole text, the first ```json fenced
// block, then the slice from the first '{' to the last '}'.
func ObjectWithStage(text string) (map[string]any, Stage) {
	if obj, ok := decodeObject(text); ok {
		return obj, StageRaw
	}

	if match := fencedJSONPattern.FindStringSubmatch(text); match != nil {
		if obj, ok := decodeObject(match[1]); ok {
			return obj, StageFenced
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if obj, ok := decodeObject(text[start : end+1]); ok {
			return obj, StageSlice
		}
	}

	return map[string]any{}, StageNone
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}
