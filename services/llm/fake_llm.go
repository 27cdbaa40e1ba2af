package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FakeClient is an offline LLMClient for tests and credential-free
// demo runs. Every response is a deterministic function of the input,
// so engine runs built on it are reproducible.
//
// It deliberately does not implement SpeechClient: with the fake
// backend the TTS endpoint reports the missing credential instead of
// fabricating audio.
type FakeClient struct{}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// fakeVariations are the protocol rewrites the fake backend proposes.
// Phrased like real optimizer output so demo trees look plausible.
var fakeVariations = []string{
	"Use terse keyword messages, drop articles and pleasantries.",
	"Exchange data as comma-separated key:value pairs only.",
	"Abbreviate every word longer than five letters.",
	"Send a three-word summary first, details only on request.",
	"Number each fact and reply with the numbers you need.",
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// firstWords returns at most n leading words of text.
func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

func (f *FakeClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Fake answer to: %s", firstWords(lastUserContent(messages), 12)), nil
}

func (f *FakeClient) GenerateToolCall(ctx context.Context, messages []Message, tool ToolDefinition, params GenerationParams) (*ToolCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	message := firstWords(lastUserContent(messages), 8)
	if message == "" {
		message = "ack"
	}
	args, err := json.Marshal(map[string]string{
		"target_agent": "counterpart",
		"message":      message,
	})
	if err != nil {
		return nil, err
	}
	return &ToolCall{Name: tool.Name, Arguments: string(args)}, nil
}

func (f *FakeClient) GenerateJSON(ctx context.Context, messages []Message, name string, schema any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Rotate the canned list by an input-derived seed so successive
	// rounds, which ask about different rules, see different proposals.
	seed := 0
	for _, r := range lastUserContent(messages) {
		seed += int(r)
	}
	offset := seed % len(fakeVariations)
	rotated := append(append([]string{}, fakeVariations[offset:]...), fakeVariations[:offset]...)

	data, err := json.Marshal(map[string][]string{"variations": rotated})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

var _ LLMClient = (*FakeClient)(nil)
