// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs two-agent protocol exchanges and optimizes the
// protocol rule that governs them.
//
// An exchange is one scripted conversation: the entry agent sends a
// message over the shared channel, the counterpart replies, the entry
// agent answers the original request. Every channel message is token
// counted; the running total is the score the optimizer minimizes.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/services/llm"
)

// Agent is one participant: a name and the role prompt that defines it.
type Agent struct {
	Name         string
	SystemPrompt string
}

// Observer receives exchange and optimization events synchronously, in
// emission order. Returning an error aborts the run.
type Observer func(stream.Event) error

// communicateToolName is the function both agents must call to use the
// channel.
const communicateToolName = "communicate_with_agent"

// communicateArgs is the decoded argument object of a channel call.
type communicateArgs struct {
	TargetAgent string `json:"target_agent"`
	Message     string `json:"message"`
}

func communicateTool(targetName string) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        communicateToolName,
		Description: "Send a message to another agent over the shared communication channel.",
		Parameters: &jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"target_agent": {
					Type:        jsonschema.String,
					Description: fmt.Sprintf("Name of the agent to contact, e.g. %q", targetName),
				},
				"message": {
					Type:        jsonschema.String,
					Description: "The message to send over the channel.",
				},
			},
			Required:             []string{"target_agent", "message"},
			AdditionalProperties: false,
		},
	}
}

// buildSystemPrompt attaches the shared protocol rules to a role prompt.
func buildSystemPrompt(a Agent, rules string) string {
	return a.SystemPrompt + "\n\nHere is your communication channel to other agents:\n" + rules
}

// =============================================================================
// Exchange
// =============================================================================

// ExchangeConfig describes one two-agent conversation setup.
type ExchangeConfig struct {
	AgentOne Agent
	AgentTwo Agent

	// Protocol is the active communication rule both agents follow.
	Protocol string

	// EntryAgent selects which agent receives the user input, by name.
	// Defaults to AgentOne.
	EntryAgent string
}

// Exchange runs a single scripted conversation between two agents.
type Exchange struct {
	client  llm.LLMClient
	counter TokenCounter
	config  ExchangeConfig
}

// NewExchange creates an exchange. The client and counter are shared;
// the exchange itself is cheap and single-use per Run call.
func NewExchange(client llm.LLMClient, counter TokenCounter, config ExchangeConfig) *Exchange {
	return &Exchange{client: client, counter: counter, config: config}
}

// entryPair resolves the entry agent and its counterpart.
func (e *Exchange) entryPair() (Agent, Agent) {
	if e.config.EntryAgent == e.config.AgentTwo.Name && e.config.EntryAgent != "" {
		return e.config.AgentTwo, e.config.AgentOne
	}
	return e.config.AgentOne, e.config.AgentTwo
}

// Run performs the exchange for one user input.
//
// Events are emitted in order: an outbound agent_message, a return
// agent_message, then final. The tokens field on each event is the
// running channel total, and the returned count equals the last one.
// A nil observer skips emission without changing behavior.
func (e *Exchange) Run(ctx context.Context, userInput string, observe Observer) (string, int, error) {
	entry, partner := e.entryPair()
	entrySystem := buildSystemPrompt(entry, e.config.Protocol)
	total := 0

	emit := func(event stream.Event) error {
		if observe == nil {
			return nil
		}
		return observe(event)
	}

	// Entry agent opens the channel.
	outbound, err := e.channelMessage(ctx, partner.Name, []llm.Message{
		{Role: llm.RoleSystem, Content: entrySystem},
		{Role: llm.RoleUser, Content: userInput},
	})
	if err != nil {
		return "", 0, fmt.Errorf("entry agent message: %w", err)
	}
	total += e.counter.Count(outbound)
	if err := emit(stream.Event{
		Type:      stream.EventAgentMessage,
		From:      entry.Name,
		To:        partner.Name,
		Direction: stream.DirectionOutbound,
		Message:   outbound,
		Tokens:    total,
	}); err != nil {
		return "", 0, err
	}

	// Counterpart replies over the same channel.
	reply, err := e.channelMessage(ctx, entry.Name, []llm.Message{
		{Role: llm.RoleSystem, Content: buildSystemPrompt(partner, e.config.Protocol)},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Received a message from %s: %s", entry.Name, outbound)},
	})
	if err != nil {
		return "", 0, fmt.Errorf("counterpart reply: %w", err)
	}
	total += e.counter.Count(reply)
	if err := emit(stream.Event{
		Type:      stream.EventAgentMessage,
		From:      partner.Name,
		To:        entry.Name,
		Direction: stream.DirectionReturn,
		Message:   reply,
		Tokens:    total,
	}); err != nil {
		return "", 0, err
	}

	// Entry agent closes with the answer to the original request. No
	// tools here: the channel is done.
	finalText, err := e.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: entrySystem},
		{Role: llm.RoleUser, Content: userInput},
		{Role: llm.RoleAssistant, Content: fmt.Sprintf("Sent a message to %s: %s", partner.Name, outbound)},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Received a reply from %s: %s\n\nNow answer the original request.", partner.Name, reply)},
	}, llm.GenerationParams{})
	if err != nil {
		return "", 0, fmt.Errorf("final answer: %w", err)
	}
	if err := emit(stream.Event{
		Type:    stream.EventFinal,
		From:    entry.Name,
		Message: finalText,
		Tokens:  total,
	}); err != nil {
		return "", 0, err
	}

	return finalText, total, nil
}

// channelMessage forces one tool call and returns the sent message.
func (e *Exchange) channelMessage(ctx context.Context, targetName string, messages []llm.Message) (string, error) {
	call, err := e.client.GenerateToolCall(ctx, messages, communicateTool(targetName), llm.GenerationParams{})
	if err != nil {
		return "", err
	}
	var args communicateArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return "", fmt.Errorf("decode %s arguments: %w", communicateToolName, err)
	}
	if args.Message == "" {
		return "", fmt.Errorf("%s produced an empty message", communicateToolName)
	}
	return args.Message, nil
}
