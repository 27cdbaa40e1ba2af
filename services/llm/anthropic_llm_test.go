package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicBuildRequest(t *testing.T) {
	client := &AnthropicClient{model: "claude-test"}

	temp := float32(0.7)
	maxTokens := 512
	req := client.buildRequest([]Message{
		{Role: RoleSystem, Content: "You are a terse assistant."},
		{Role: RoleUser, Content: "First question."},
		{Role: RoleAssistant, Content: "First answer."},
		{Role: RoleUser, Content: "Second question."},
	}, GenerationParams{Temperature: &temp, MaxTokens: &maxTokens, Stop: []string{"END"}})

	assert.Equal(t, "claude-test", req.Model)
	assert.Equal(t, "You are a terse assistant.", req.System, "system prompt should move to the top-level field")
	require.Len(t, req.Messages, 3, "system prompt should leave the message list")
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)

	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 0.001)
	assert.Equal(t, 512, req.MaxTokens, "explicit budget should replace the default")
	assert.Equal(t, []string{"END"}, req.StopSeqs)
}

func TestAnthropicBuildRequest_Defaults(t *testing.T) {
	client := &AnthropicClient{model: "claude-test"}

	req := client.buildRequest([]Message{{Role: RoleUser, Content: "hi"}}, GenerationParams{})

	assert.Empty(t, req.System)
	assert.Equal(t, anthropicMaxTokens, req.MaxTokens)
	assert.Nil(t, req.Temperature)
	assert.Nil(t, req.TopP)
	assert.Empty(t, req.StopSeqs)
}
