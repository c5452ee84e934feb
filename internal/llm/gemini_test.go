package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.0-flash", "gemini-2.0-flash"}, // Pass-through
	}
	for _, tt := range tests {
		got := resolveModel(tt.input, geminiModels)
		if got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"route":  map[string]any{"type": "string", "enum": []any{"translator", "grammar", "conversational"}},
			"reason": map[string]any{"type": "string"},
			"score":  map[string]any{"type": "integer"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"route", "reason"},
	}

	schema := buildGeminiSchema(def)

	if schema.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", schema.Type)
	}
	if len(schema.Properties) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(schema.Properties))
	}
	if schema.Properties["route"].Type != "STRING" {
		t.Fatalf("expected STRING for route, got %s", schema.Properties["route"].Type)
	}
	if schema.Properties["score"].Type != "INTEGER" {
		t.Fatalf("expected INTEGER for score, got %s", schema.Properties["score"].Type)
	}
	if len(schema.Properties["route"].Enum) != 3 {
		t.Fatalf("expected 3 enum values, got %d", len(schema.Properties["route"].Enum))
	}
	if schema.Properties["tags"].Type != "ARRAY" {
		t.Fatalf("expected ARRAY for tags, got %s", schema.Properties["tags"].Type)
	}
	if schema.Properties["tags"].Items.Type != "STRING" {
		t.Fatalf("expected STRING for tags items, got %s", schema.Properties["tags"].Items.Type)
	}
	if len(schema.Required) != 2 {
		t.Fatalf("expected 2 required fields, got %d", len(schema.Required))
	}
}

func TestMapGeminiStopReason(t *testing.T) {
	tests := []struct {
		reason genai.FinishReason
		want   string
	}{
		{genai.FinishReasonStop, "end"},
		{genai.FinishReasonMaxTokens, "max_tokens"},
		{genai.FinishReasonSafety, "end"},
	}
	for _, tt := range tests {
		result := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: tt.reason}},
		}
		if got := mapGeminiStopReason(result); got != tt.want {
			t.Errorf("mapGeminiStopReason(%s) = %q, want %q", tt.reason, got, tt.want)
		}
	}
	if got := mapGeminiStopReason(&genai.GenerateContentResponse{}); got != "end" {
		t.Errorf("no candidates = %q, want end", got)
	}
}

func TestMapGeminiError(t *testing.T) {
	rl := mapGeminiError(fmt.Errorf("wrapped: %w", &genai.APIError{Code: 429, Message: "quota"}))
	var rateLimit *ErrRateLimit
	if !errors.As(rl, &rateLimit) {
		t.Fatalf("expected ErrRateLimit, got %T", rl)
	}

	down := mapGeminiError(&genai.APIError{Code: 503, Message: "unavailable"})
	var unavail *ErrProviderUnavailable
	if !errors.As(down, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got %T", down)
	}

	if err := mapGeminiError(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("context errors must pass through, got %v", err)
	}
}

func TestBuildGeminiContentsRoles(t *testing.T) {
	contents := buildGeminiContents([]Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("roles = %s, %s", contents[0].Role, contents[1].Role)
	}
}
