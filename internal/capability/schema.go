package capability

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaBaseURL = "https://kratos.giantswarm.io/capabilities/"

// paramSchema validates bound parameters of one capability.
// Uses [github.com/santhosh-tekuri/jsonschema/v6].
type paramSchema struct {
	schema *jsonschema.Schema
}

// JSONSchema renders the parameter list of c as a JSON Schema document.
func JSONSchema(c Capability) map[string]any {
	properties := make(map[string]any, len(c.Params))
	required := []any{}
	for _, p := range c.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func compileParamSchema(c Capability) (*paramSchema, error) {
	doc, err := jsonRoundTrip(JSONSchema(c))
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	url := schemaBaseURL + c.AgentID + "/" + c.Function + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &paramSchema{schema: compiled}, nil
}

func (s *paramSchema) validate(params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	data, err := jsonRoundTrip(params)
	if err != nil {
		return &ParamsError{Detail: err.Error()}
	}

	err = s.schema.Validate(data)
	if err == nil {
		return nil
	}
	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) {
		return &ParamsError{Detail: validationErr.Error()}
	}
	return &ParamsError{Detail: err.Error()}
}

// jsonRoundTrip converts v into the generic form produced by encoding/json.
func jsonRoundTrip(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
