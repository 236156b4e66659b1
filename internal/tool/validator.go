package tool

import (
	"encoding/json"
	"fmt"
)

// ValidateArgs checks args against the subset of JSON schema tools
// advertise: required fields and primitive property types. Unknown fields
// are allowed.
func ValidateArgs(schema map[string]any, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(args, &obj); err != nil {
		return fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return validateObject(schema, obj)
}

func validateObject(schema map[string]any, obj map[string]any) error {
	for _, field := range requiredFields(schema["required"]) {
		if _, ok := obj[field]; !ok {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for key, value := range obj {
		prop, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(key, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, f := range r {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func validateValue(field string, schema map[string]any, value any) error {
	want, _ := schema["type"].(string)
	switch want {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q expected string, got %s", field, jsonType(value))
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("field %q expected number, got %s", field, jsonType(value))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q expected boolean, got %s", field, jsonType(value))
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field %q expected array, got %s", field, jsonType(value))
		}
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range items {
				if err := validateValue(fmt.Sprintf("%s[%d]", field, i), itemSchema, item); err != nil {
					return err
				}
			}
		}
	case "object":
		nested, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q expected object, got %s", field, jsonType(value))
		}
		return validateObject(schema, nested)
	}
	return nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
