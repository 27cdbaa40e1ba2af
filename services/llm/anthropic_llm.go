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
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"

	// anthropicMaxTokens caps each completion. Agent turns and rule
	// variations are short, so this leaves generous room.
	anthropicMaxTokens = 4096
)

// Wire types for the Anthropic Messages API. The system prompt travels
// in a top-level field, not in the message list.

type anthropicRequest struct {
	Model      string               `json:"model"`
	Messages   []anthropicMessage   `json:"messages"`
	System     string               `json:"system,omitempty"`
	MaxTokens  int                  `json:"max_tokens"`
	Tools      []anthropicTool      `json:"tools,omitempty"`
	ToolChoice *anthropicToolChoice `json:"tool_choice,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// InputSchema is the JSON schema of the tool arguments.
	InputSchema any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Tool use blocks carry the call name and its arguments object.
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient talks to the Messages API directly over HTTP.
//
// It does not implement SpeechClient; with this backend the TTS
// endpoint reports the missing capability.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	limiter    *rate.Limiter
}

func NewAnthropicClient() (*AnthropicClient, error) {
	return NewAnthropicClientWithModel("")
}

// NewAnthropicClientWithModel creates a client pinned to the given
// model, falling back to the ANTHROPIC_MODEL environment variable and
// then a default when the model is empty.
func NewAnthropicClientWithModel(model string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Anthropic API Key from Podman Secrets")
		} else {
			slog.Error("ANTHROPIC_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
	}
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
		slog.Warn("ANTHROPIC_MODEL not set, defaulting to claude-3-5-sonnet-20240620")
	}

	maxRPS := defaultMaxRPS
	if v := os.Getenv("ANTHROPIC_MAX_RPS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxRPS = parsed
		} else {
			slog.Warn("Invalid ANTHROPIC_MAX_RPS, using default", "value", v, "default", defaultMaxRPS)
		}
	}

	slog.Info("Initializing Anthropic client", "model", model, "max_rps", maxRPS)
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		limiter:    rate.NewLimiter(rate.Limit(maxRPS), maxRPS),
	}, nil
}

// Model returns the chat model this client targets.
func (a *AnthropicClient) Model() string {
	return a.model
}

// buildRequest converts messages to the wire shape, hoisting the system
// prompt into the top-level field.
func (a *AnthropicClient) buildRequest(messages []Message, params GenerationParams) anthropicRequest {
	apiMessages := make([]anthropicMessage, 0, len(messages))
	var system string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		apiMessages = append(apiMessages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	req := anthropicRequest{
		Model:     a.model,
		Messages:  apiMessages,
		System:    system,
		MaxTokens: anthropicMaxTokens,
	}
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if params.TopK != nil {
		req.TopK = params.TopK
	}
	if len(params.Stop) > 0 {
		req.StopSeqs = params.Stop
	}
	return req
}

// call sends one Messages API request and decodes the response.
func (a *AnthropicClient) call(ctx context.Context, payload anthropicRequest) (*anthropicResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(respBody))
		var apiResp anthropicResponse
		if jsonErr := json.Unmarshal(respBody, &apiResp); jsonErr == nil && apiResp.Error != nil {
			message = apiResp.Error.Message
		}
		slog.Error("Anthropic API call failed", "status", resp.StatusCode, "error", message)
		return nil, fmt.Errorf("Anthropic API call failed: %w", &ProviderError{StatusCode: resp.StatusCode, Message: message})
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("Anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	return &apiResp, nil
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Anthropic", "model", a.model)

	resp, err := a.call(ctx, a.buildRequest(messages, params))
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("Anthropic returned no text content")
	}
	return text.String(), nil
}

// GenerateToolCall implements the LLMClient interface
func (a *AnthropicClient) GenerateToolCall(ctx context.Context, messages []Message, tool ToolDefinition, params GenerationParams) (*ToolCall, error) {
	slog.Debug("Generating forced tool call via Anthropic", "model", a.model, "tool", tool.Name)

	req := a.buildRequest(messages, params)
	req.Tools = []anthropicTool{{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.Parameters,
	}}
	req.ToolChoice = &anthropicToolChoice{Type: "tool", Name: tool.Name}

	resp, err := a.call(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == tool.Name {
			return &ToolCall{Name: block.Name, Arguments: string(block.Input)}, nil
		}
	}
	return nil, fmt.Errorf("Anthropic returned no tool call for %s", tool.Name)
}

// GenerateJSON implements the LLMClient interface.
//
// The Messages API has no schema-constrained response mode, so the
// schema rides in as a forced tool call and the tool input is the
// structured answer.
func (a *AnthropicClient) GenerateJSON(ctx context.Context, messages []Message, name string, schema any, out any) error {
	call, err := a.GenerateToolCall(ctx, messages, ToolDefinition{
		Name:        name,
		Description: "Record the answer in the required structure.",
		Parameters:  schema,
	}, GenerationParams{})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(call.Arguments), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

var _ LLMClient = (*AnthropicClient)(nil)
