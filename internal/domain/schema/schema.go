// Package schema models structured-output response formats and the strict
// JSON-schema rewrite required by the OpenAI-family providers.
package schema

import (
	"encoding/json"
	"fmt"
)

// AgentResponseName is the well-known format name for agent replies.
const AgentResponseName = "agent_response"

// FormatInfo names a structured-output schema the provider must emit
// verbatim JSON for.
type FormatInfo struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"format,omitempty"`
}

// Strictify returns a copy of the schema with additionalProperties:false set
// on every object, including everything under $defs, as required for strict
// response formats. The input is not modified.
func Strictify(raw json.RawMessage) (json.RawMessage, error) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("strictify schema: %w", err)
	}
	strictifyNode(node)
	out, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("strictify schema: %w", err)
	}
	return out, nil
}

func strictifyNode(node any) {
	switch n := node.(type) {
	case map[string]any:
		if t, _ := n["type"].(string); t == "object" {
			n["additionalProperties"] = false
		}
		// Objects described by "properties" without an explicit type also
		// count as objects for strict mode.
		if _, ok := n["properties"]; ok {
			n["additionalProperties"] = false
		}
		for _, v := range n {
			strictifyNode(v)
		}
	case []any:
		for _, v := range n {
			strictifyNode(v)
		}
	}
}

// Validate reports whether data parses as JSON conforming to the schema's
// top-level object shape: all required keys present and no keys outside
// "properties". It is a structural check, not a full JSON-schema validator;
// the strict response format makes the provider do the rest.
func Validate(raw json.RawMessage, data string) error {
	var sch struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(raw, &sch); err != nil {
		return fmt.Errorf("validate schema: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}
	for _, key := range sch.Required {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("response missing required key %q", key)
		}
	}
	if sch.Properties != nil {
		for key := range obj {
			if _, ok := sch.Properties[key]; !ok {
				return fmt.Errorf("response has unexpected key %q", key)
			}
		}
	}
	return nil
}
