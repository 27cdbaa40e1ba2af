package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// defaultMaxRPS bounds outbound OpenAI calls. Candidate evaluation fans
// out in parallel, so an unthrottled run can burst well past provider
// limits.
const defaultMaxRPS = 5

type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

func NewOpenAIClient() (*OpenAIClient, error) {
	return NewOpenAIClientWithModel(os.Getenv("OPENAI_MODEL"))
}

// NewOpenAIClientWithModel creates a client pinned to the given model,
// falling back to the OPENAI_MODEL environment variable handling when
// the model is empty.
func NewOpenAIClientWithModel(model string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	maxRPS := defaultMaxRPS
	if v := os.Getenv("OPENAI_MAX_RPS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxRPS = parsed
		} else {
			slog.Warn("Invalid OPENAI_MAX_RPS, using default", "value", v, "default", defaultMaxRPS)
		}
	}

	slog.Info("Initializing OpenAI client", "model", model, "max_rps", maxRPS)
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(maxRPS), maxRPS),
	}, nil
}

// Model returns the chat model this client targets.
func (o *OpenAIClient) Model() string {
	return o.model
}

func (o *OpenAIClient) buildRequest(messages []Message, params GenerationParams) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}
	slog.Debug("Generating text via OpenAI", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(messages, params))
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", wrapProviderError(err))
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices or empty content")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateToolCall implements the LLMClient interface
func (o *OpenAIClient) GenerateToolCall(ctx context.Context, messages []Message, tool ToolDefinition, params GenerationParams) (*ToolCall, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	slog.Debug("Generating forced tool call via OpenAI", "model", o.model, "tool", tool.Name)

	req := o.buildRequest(messages, params)
	req.Tools = []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
	}}
	req.ToolChoice = openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: tool.Name},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", wrapProviderError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, fmt.Errorf("OpenAI returned no tool call for %s", tool.Name)
	}
	return &ToolCall{
		Name:      calls[0].Function.Name,
		Arguments: calls[0].Function.Arguments,
	}, nil
}

// rawSchema passes an already-marshalled schema through to the API.
type rawSchema struct {
	data json.RawMessage
}

func (s rawSchema) MarshalJSON() ([]byte, error) {
	return s.data, nil
}

// GenerateJSON implements the LLMClient interface
func (o *OpenAIClient) GenerateJSON(ctx context.Context, messages []Message, name string, schema any, out any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	slog.Debug("Generating structured output via OpenAI", "model", o.model, "schema", name)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal schema %s: %w", name, err)
	}

	req := o.buildRequest(messages, GenerationParams{})
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   name,
			Schema: rawSchema{data: schemaBytes},
			Strict: true,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return fmt.Errorf("OpenAI API call failed: %w", wrapProviderError(err))
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("OpenAI returned no choices")
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

// Synthesize implements the SpeechClient interface
func (o *OpenAIClient) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	slog.Debug("Synthesizing speech via OpenAI", "model", req.Model, "voice", req.Voice)

	res, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
	})
	if err != nil {
		slog.Error("OpenAI speech call failed", "error", err)
		return nil, fmt.Errorf("OpenAI speech call failed: %w", wrapProviderError(err))
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			slog.Warn("Failed to close speech response", "error", cerr)
		}
	}()

	audio, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	contentType := res.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &SpeechResult{Audio: audio, ContentType: contentType}, nil
}

// wrapProviderError converts go-openai errors into ProviderError so the
// HTTP layer can relay the upstream status code.
func wrapProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}

var _ LLMClient = (*OpenAIClient)(nil)
var _ SpeechClient = (*OpenAIClient)(nil)
