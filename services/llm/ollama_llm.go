package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// ollamaDefaultBaseURL is where a standard local install listens.
const ollamaDefaultBaseURL = "http://localhost:11434"

// Wire types for the Ollama chat API.

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	// Format constrains decoding to a JSON schema when set.
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Parameters is the JSON schema of the tool arguments.
	Parameters any `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaCalledFunction `json:"function"`
}

type ollamaCalledFunction struct {
	Name string `json:"name"`
	// Arguments arrive as an object, not a string.
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// OllamaClient talks to a local Ollama server. Tool calls cannot be
// forced the way hosted providers allow, so GenerateToolCall fails when
// the model declines to call; pick a tool-capable model.
//
// It does not implement SpeechClient; with this backend the TTS
// endpoint reports the missing capability.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewOllamaClient() (*OllamaClient, error) {
	return NewOllamaClientWithModel("")
}

// NewOllamaClientWithModel creates a client pinned to the given model,
// falling back to the OLLAMA_MODEL environment variable and then a
// default when the model is empty. OLLAMA_BASE_URL overrides the
// standard local address.
func NewOllamaClientWithModel(model string) (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = "llama3.1"
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.1")
	}

	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		// Local models can take a while on modest hardware.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Model returns the chat model this client targets.
func (o *OllamaClient) Model() string {
	return o.model
}

func (o *OllamaClient) buildRequest(messages []Message, params GenerationParams) ollamaChatRequest {
	apiMessages := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	options := make(map[string]any)
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	if len(options) == 0 {
		options = nil
	}

	return ollamaChatRequest{
		Model:    o.model,
		Messages: apiMessages,
		Stream:   false,
		Options:  options,
	}
}

// chat sends one non-streaming chat request and decodes the response.
func (o *OllamaClient) chat(ctx context.Context, payload ollamaChatRequest) (*ollamaChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		slog.Error("Ollama API call failed", "error", err)
		return nil, fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				slog.Warn("Ollama model not found", "model", o.model)
				return nil, fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", o.model, o.model)
			}
		}
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("Ollama failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		slog.Error("Failed to parse JSON response from Ollama", "error", err)
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &chatResp, nil
}

// Generate implements the LLMClient interface
func (o *OllamaClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Ollama", "model", o.model)

	resp, err := o.chat(ctx, o.buildRequest(messages, params))
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// GenerateToolCall implements the LLMClient interface
func (o *OllamaClient) GenerateToolCall(ctx context.Context, messages []Message, tool ToolDefinition, params GenerationParams) (*ToolCall, error) {
	slog.Debug("Generating tool call via Ollama", "model", o.model, "tool", tool.Name)

	req := o.buildRequest(messages, params)
	req.Tools = []ollamaTool{{
		Type: "function",
		Function: ollamaToolFunction{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
	}}

	resp, err := o.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, call := range resp.Message.ToolCalls {
		if call.Function.Name == tool.Name {
			return &ToolCall{Name: call.Function.Name, Arguments: string(call.Function.Arguments)}, nil
		}
	}
	return nil, fmt.Errorf("Ollama returned no tool call for %s", tool.Name)
}

// GenerateJSON implements the LLMClient interface.
//
// The schema goes in the request format field, which constrains
// decoding server side, so the content comes back as valid JSON.
func (o *OllamaClient) GenerateJSON(ctx context.Context, messages []Message, name string, schema any, out any) error {
	slog.Debug("Generating structured output via Ollama", "model", o.model, "schema", name)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema %s: %w", name, err)
	}

	req := o.buildRequest(messages, GenerationParams{})
	req.Format = schemaBytes

	resp, err := o.chat(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(resp.Message.Content), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

var _ LLMClient = (*OllamaClient)(nil)
