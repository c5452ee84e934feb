package llm

import (
	"context"
	"iter"
)

// Provider is the core abstraction for LLM interaction.
// Responders call Stream for learner-facing text; the router calls
// Generate for its single-shot classification.
type Provider interface {
	// Generate sends a prompt to the LLM and returns the complete reply.
	// When the request's Schema is set the provider uses its native
	// structured output mechanism and Text holds the validated JSON.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Stream sends a prompt and yields text fragments as the model
	// produces them. The sequence is lazy and single-use; it ends when the
	// model signals completion, an error is yielded, or ctx is done.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt. Sets the LLM's role and constraints.
	System string

	// Messages is the conversation history. Tutor prompts are rendered
	// into a single user message.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// Ignored by Stream.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	// Default: 0.0 (deterministic) when not set.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema (used as schema name for OpenAI).
	// Kebab-case, e.g. "route-decision".
	Name string

	// Description is a human-readable description of what this schema
	// represents.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Text is the generated output.
	Text string

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped.
	// Normalized to: "end", "max_tokens", "error"
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserPrompt builds a single-turn request around one rendered prompt.
func UserPrompt(content string, maxTokens int, temperature float64) Request {
	return Request{
		Messages:    []Message{{Role: RoleUser, Content: content}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
