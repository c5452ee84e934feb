// Package embedding turns text into vectors for the document index.
// Backends: Google GenAI, OpenAI, and a local hashing engine that needs no
// network access.
package embedding

import (
	"context"
	"fmt"
	"math"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates the embedding for a single query text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for documents, one per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name identifies the backend and model, e.g. "genai:gemini-embedding-001".
	// A persisted index records it so vectors from different models are
	// never mixed.
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "genai", "openai" or "hash".
	Provider string `yaml:"provider"`

	// Model overrides the backend's default model.
	Model string `yaml:"model"`

	// APIKey for the selected backend. Filled from the LLM settings when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL for OpenAI-compatible endpoints.
	BaseURL string `yaml:"base_url"`

	// Dimensions requests a reduced output size where supported; the hash
	// engine uses it directly. Zero means the model default.
	Dimensions int `yaml:"dimensions"`

	// BatchSize caps the texts sent per embedding request.
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:  "genai",
		Model:     defaultGenAIModel,
		BatchSize: 64,
	}
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "genai", "gemini":
		return NewGenAIEngine(ctx, cfg)
	case "openai":
		return NewOpenAIEngine(cfg)
	case "hash":
		return NewHashEngine(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q (use genai, openai or hash)", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Zero-magnitude vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
