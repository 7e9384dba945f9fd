package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/vesselplan/pkg/extract"
	"github.com/xeipuuv/gojsonschema"
)

const candidateSchemaJSON = `{
  "type": "object",
  "required": ["waypoints"],
  "properties": {
    "waypoints": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["x", "y"],
        "properties": {
          "x": {"type": "number"},
          "y": {"type": "number"}
        }
      }
    },
    "explanation": {"type": "string"}
  }
}`

var candidateSchema = mustCompileSchema(candidateSchemaJSON)

func mustCompileSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid candidate schema: %v", err))
	}
	return schema
}

// OutcomeKind tags the result of reading an oracle response
type OutcomeKind int

const (
	OutcomeParsed OutcomeKind = iota
	OutcomeUnparseable
	OutcomeEmpty
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeParsed:
		return "parsed"
	case OutcomeUnparseable:
		return "unparseable"
	case OutcomeEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Outcome is either a parsed candidate, an unparseable response or an empty one
type Outcome struct {
	Kind      OutcomeKind
	Candidate Candidate
	Reason    string
	Stage     extract.Stage
}

// Err converts a non-parsed outcome into the error recorded for the attempt
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeParsed:
		return nil
	case OutcomeEmpty:
		return ErrEmptyCandidate
	default:
		return fmt.Errorf("%w: %s", ErrUnparseable, o.Reason)
	}
}

// ParseCandidate reads a candidate route out of free-form oracle text
func ParseCandidate(text string) Outcome {
	obj, stage := extract.ObjectWithStage(text)
	if stage == extract.StageNone {
		return Outcome{Kind: OutcomeUnparseable, Reason: "no JSON object found", Stage: stage}
	}

	raw, ok := obj["waypoints"]
	if !ok || raw == nil {
		return Outcome{Kind: OutcomeEmpty, Stage: stage}
	}
	if list, isList := raw.([]any); isList && len(list) == 0 {
		return Outcome{Kind: OutcomeEmpty, Stage: stage}
	}

	res, err := candidateSchema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return Outcome{Kind: OutcomeUnparseable, Reason: err.Error(), Stage: stage}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Outcome{Kind: OutcomeUnparseable, Reason: strings.Join(msgs, "; "), Stage: stage}
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return Outcome{Kind: OutcomeUnparseable, Reason: err.Error(), Stage: stage}
	}
	var c Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return Outcome{Kind: OutcomeUnparseable, Reason: err.Error(), Stage: stage}
	}

	return Outcome{Kind: OutcomeParsed, Candidate: c, Stage: stage}
}
