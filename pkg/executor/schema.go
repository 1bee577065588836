package executor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema compiles schema as a JSON-schema validator. Per spec §4.6,
// validation is strict by default: additionalProperties is treated as false
// when the action's schema doesn't set it explicitly, unlike the JSON Schema
// default of true.
func compileSchema(actionID string, schema map[string]any) (*jsonschema.Schema, error) {
	strict := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		strict[k] = v
	}
	if _, ok := strict["additionalProperties"]; !ok {
		strict["additionalProperties"] = false
	}

	raw, err := json.Marshal(strict)
	if err != nil {
		return nil, fmt.Errorf("executor: marshal schema for %s: %w", actionID, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("executor: unmarshal schema for %s: %w", actionID, err)
	}

	url := "mem://schema/" + actionID
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("executor: add schema resource for %s: %w", actionID, err)
	}
	return c.Compile(url)
}

// validateParameters validates parameters against an action's schema,
// returning a flattened, human-readable error when validation fails.
func validateParameters(actionID string, schema map[string]any, parameters map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	sch, err := compileSchema(actionID, schema)
	if err != nil {
		return err
	}
	// jsonschema validates against decoded-JSON shapes (map[string]any,
	// []any, json.Number, ...); round-trip through JSON to get there.
	raw, err := json.Marshal(parameters)
	if err != nil {
		return fmt.Errorf("executor: marshal parameters: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("executor: unmarshal parameters: %w", err)
	}
	return sch.Validate(instance)
}
