package llm

import (
	"context"
	"fmt"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles, matching the wire values every provider expects.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ToolDefinition describes a function the model must call.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters any
}

// ToolCall is the model's invocation of a tool: the function name and
// the raw JSON arguments, left undecoded for the caller.
type ToolCall struct {
	Name      string
	Arguments string
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate returns a plain text completion for the conversation.
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// GenerateToolCall forces the model to answer by calling the given
	// tool and returns that call.
	GenerateToolCall(ctx context.Context, messages []Message, tool ToolDefinition, params GenerationParams) (*ToolCall, error)

	// GenerateJSON constrains the model to the named JSON schema and
	// unmarshals the response into out.
	GenerateJSON(ctx context.Context, messages []Message, name string, schema any, out any) error
}

// SpeechRequest asks for synthesized audio of a piece of text.
type SpeechRequest struct {
	Text   string
	Voice  string
	Model  string
	Format string
}

// SpeechResult carries the provider's audio bytes untouched.
type SpeechResult struct {
	Audio       []byte
	ContentType string
}

// SpeechClient synthesizes speech through a provider-held credential.
type SpeechClient interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

// ProviderError reports an upstream provider rejection with the status
// code the provider answered with, so callers can relay it.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%d): %s", e.StatusCode, e.Message)
}
