package tool

import (
	"encoding/json"
	"testing"
)

func TestValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{"type": "string"},
			"days":  map[string]any{"type": "integer"},
			"units": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"options": map[string]any{
				"type":       "object",
				"properties": map[string]any{"verbose": map[string]any{"type": "boolean"}},
			},
		},
		"required": []any{"input"},
	}

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{name: "valid", args: `{"input":"Paris","days":3,"units":["c"]}`},
		{name: "missing required", args: `{"days":3}`, wantErr: true},
		{name: "wrong primitive", args: `{"input":"Paris","days":"three"}`, wantErr: true},
		{name: "wrong array item", args: `{"input":"Paris","units":[1]}`, wantErr: true},
		{name: "nested object", args: `{"input":"Paris","options":{"verbose":"yes"}}`, wantErr: true},
		{name: "extra fields allowed", args: `{"input":"Paris","extra":true}`},
		{name: "not an object", args: `"Paris"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgs(schema, json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateArgs_EmptySchemaAcceptsAnything(t *testing.T) {
	if err := ValidateArgs(nil, json.RawMessage(`"anything"`)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
