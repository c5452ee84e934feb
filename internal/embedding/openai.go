package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultOpenAIDimensions = 1536
)

// OpenAIEngine generates embeddings with the OpenAI embeddings API or any
// compatible endpoint.
type OpenAIEngine struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEngine creates a new OpenAI embedding engine.
func NewOpenAIEngine(cfg Config) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" || model == defaultGenAIModel {
		model = defaultOpenAIModel
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = defaultOpenAIDimensions
	}

	return &OpenAIEngine{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dims,
	}, nil
}

func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions != defaultOpenAIDimensions {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	// The API reports each vector's input position; do not rely on order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("OpenAI embed: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEngine) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEngine) Name() string {
	return "openai:" + e.model
}
