package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Score dimensions are validated before they reach the cache: a judge that
// rambles instead of scoring must not poison the aggregates.

const identitySchemaJSON = `{
  "type": "object",
  "properties": {
    "distinctiveness": {"type": "number", "minimum": 0, "maximum": 10},
    "non_assistant_likeness": {"type": "number", "minimum": 0, "maximum": 10},
    "internal_consistency": {"type": "number", "minimum": 0, "maximum": 10},
    "human_wish_correlation": {"type": "number", "minimum": 0, "maximum": 10},
    "drift_from_initial": {"type": "number", "minimum": 0, "maximum": 10},
    "reasoning": {"type": "string"}
  },
  "required": ["distinctiveness", "non_assistant_likeness", "internal_consistency"]
}`

const resistanceSchemaJSON = `{
  "type": "object",
  "properties": {
    "resistance_score": {"type": "number", "minimum": 0, "maximum": 2},
    "identity_maintained": {"type": "boolean"},
    "quality_of_reasoning": {"type": "number", "minimum": 0, "maximum": 10},
    "reasoning": {"type": "string"}
  },
  "required": ["resistance_score", "identity_maintained", "quality_of_reasoning"]
}`

const stabilitySchemaJSON = `{
  "type": "object",
  "properties": {
    "consistency_score": {"type": "number", "minimum": 0, "maximum": 10},
    "graceful_handling": {"type": "number", "minimum": 0, "maximum": 10},
    "reasoning": {"type": "string"}
  },
  "required": ["consistency_score", "graceful_handling"]
}`

// Validator checks an extracted score object against one experiment's schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

func mustValidator(name, schemaJSON string) *Validator {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("judge: unmarshal %s schema: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".json", doc); err != nil {
		panic(fmt.Sprintf("judge: add %s schema: %v", name, err))
	}
	schema, err := c.Compile(name + ".json")
	if err != nil {
		panic(fmt.Sprintf("judge: compile %s schema: %v", name, err))
	}
	return &Validator{name: name, schema: schema}
}

var (
	identityValidator   = mustValidator("identity", identitySchemaJSON)
	resistanceValidator = mustValidator("resistance", resistanceSchemaJSON)
	stabilityValidator  = mustValidator("stability", stabilitySchemaJSON)
)

// ValidatorFor returns the score validator for an experiment name.
func ValidatorFor(experiment string) (*Validator, error) {
	switch experiment {
	case "identity":
		return identityValidator, nil
	case "resistance":
		return resistanceValidator, nil
	case "stability":
		return stabilityValidator, nil
	default:
		return nil, fmt.Errorf("no score schema for experiment %q", experiment)
	}
}

// Parse extracts the score object from raw judge output and validates it.
func (v *Validator) Parse(text string) (map[string]any, error) {
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("%s judge response contains no JSON object", v.name)
	}

	// jsonschema wants json.Number for numeric bounds checks.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonStr))
	if err != nil {
		return nil, fmt.Errorf("parse %s scores: %w", v.name, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%s scores failed validation: %w", v.name, err)
	}

	var scores map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &scores); err != nil {
		return nil, fmt.Errorf("decode %s scores: %w", v.name, err)
	}
	return scores, nil
}
