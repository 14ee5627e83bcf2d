package toolcall

import (
	"context"
	"testing"
)

func noopHandler(ctx context.Context, args map[string]any) (string, error) { return "", nil }

func TestExposeValidatesNames(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Expose(ExposedCommand{Name: "bad name!", Handler: noopHandler}); err == nil {
		t.Fatal("expected error for invalid name")
	}
	if err := registry.Expose(ExposedCommand{Name: "no_handler"}); err == nil {
		t.Fatal("expected error for missing handler")
	}
	if err := registry.Expose(ExposedCommand{Name: "ok", Handler: noopHandler}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Expose(ExposedCommand{Name: "ok", Handler: noopHandler}); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestExposeRejectsDuplicateParameters(t *testing.T) {
	registry := NewRegistry()
	err := registry.Expose(ExposedCommand{
		Name:    "dup",
		Handler: noopHandler,
		Parameters: []Param{
			{Name: "x", Type: TypeString},
			{Name: "x", Type: TypeNumber},
		},
	})
	if err == nil {
		t.Fatal("expected error for duplicate parameter")
	}
}

func TestFunctionDefinitionsSchema(t *testing.T) {
	registry := NewRegistry()
	err := registry.Expose(ExposedCommand{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Handler:     noopHandler,
		Parameters: []Param{
			{Name: "city", Type: TypeString, Description: "City name", Required: true},
			{Name: "unit", Type: TypeString, Enum: []string{"celsius", "fahrenheit"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defs := registry.FunctionDefinitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	def := defs[0]
	if def.Name != "get_weather" || def.Description == "" {
		t.Fatalf("unexpected definition: %+v", def)
	}

	properties, ok := def.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("missing properties: %v", def.Parameters)
	}
	city, ok := properties["city"].(map[string]any)
	if !ok || city["type"] != "string" {
		t.Fatalf("unexpected city schema: %v", properties["city"])
	}
	unit := properties["unit"].(map[string]any)
	if enum, ok := unit["enum"].([]string); !ok || len(enum) != 2 {
		t.Fatalf("unexpected enum: %v", unit["enum"])
	}
	required, ok := def.Parameters["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "city" {
		t.Fatalf("unexpected required list: %v", def.Parameters["required"])
	}
}

func TestFunctionDefinitionsSortedByName(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Expose(ExposedCommand{Name: name, Handler: noopHandler}); err != nil {
			t.Fatalf("expose %s: %v", name, err)
		}
	}
	defs := registry.FunctionDefinitions()
	if defs[0].Name != "alpha" || defs[2].Name != "zeta" {
		t.Fatalf("definitions not sorted: %v", defs)
	}
}
