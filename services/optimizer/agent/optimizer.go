// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent: the protocol optimization loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/ShinnosukeUesaka/opt-com/pkg/protocol"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/services/llm"
)

const (
	// DefaultRounds is how many refinement rounds run when unset.
	DefaultRounds = 3
	// DefaultVariationCount is how many rule candidates each round tries.
	DefaultVariationCount = 5
)

// OptimizerConfig describes one optimization job.
type OptimizerConfig struct {
	AgentOne Agent
	AgentTwo Agent

	// Protocol is the starting communication rule to refine.
	Protocol string

	// EntryAgent selects the agent that receives each input prompt, by
	// name. Defaults to AgentOne.
	EntryAgent string

	// InputPrompts are the user inputs every candidate rule is scored
	// against. The score of a rule is the mean channel token count over
	// all prompts.
	InputPrompts []string

	Rounds         int
	VariationCount int
}

func applyOptimizerDefaults(config *OptimizerConfig) {
	if config.Rounds == 0 {
		config.Rounds = DefaultRounds
	}
	if config.VariationCount == 0 {
		config.VariationCount = DefaultVariationCount
	}
	if config.EntryAgent == "" {
		config.EntryAgent = config.AgentOne.Name
	}
}

// Optimizer searches for cheaper variants of a communication rule.
//
// Each round it asks the model for rule variations, scores every
// variation by running the full exchange over the input prompts, and
// adopts the round's cheapest candidate as the new base. The search
// history forms a tree rooted at the starting rule; the chain of
// adopted candidates is the best path.
type Optimizer struct {
	client  llm.LLMClient
	counter TokenCounter
	config  OptimizerConfig
}

// NewOptimizer creates an optimizer. Zero Rounds, VariationCount, and
// EntryAgent fields take their defaults.
func NewOptimizer(client llm.LLMClient, counter TokenCounter, config OptimizerConfig) *Optimizer {
	applyOptimizerDefaults(&config)
	return &Optimizer{client: client, counter: counter, config: config}
}

// Run executes the optimization loop, emitting progress events.
//
// Event order per run: one base_evaluated, then for each round a
// candidate_evaluated per scored variation (in completion order, each
// parented on the round's base) followed by one best_updated, and a
// final done carrying the whole tree. Candidate ties are broken in
// favor of the earliest recorded one. Any evaluation or observer error
// aborts the run and is returned; no error event is emitted here, that
// translation belongs to the transport layer.
func (o *Optimizer) Run(ctx context.Context, observe Observer) error {
	emit := func(event stream.Event) error {
		if observe == nil {
			return nil
		}
		return observe(event)
	}

	score, response, err := o.evaluateRule(ctx, o.config.Protocol)
	if err != nil {
		return fmt.Errorf("evaluate base rule: %w", err)
	}
	root := protocol.Node{
		ID:                  uuid.New().String(),
		ParentID:            protocol.RootParentID,
		RoundIndex:          0,
		Rule:                o.config.Protocol,
		CommunicationTokens: score,
		ResponseText:        response,
	}
	arena := []protocol.Node{root}
	bestPath := []string{root.ID}
	best := root
	slog.Info("Base rule evaluated", "tokens", score)
	if err := emit(stream.Event{Type: stream.EventBaseEvaluated, Node: &root, BestPath: snapshotPath(bestPath)}); err != nil {
		return err
	}

	for round := 1; round <= o.config.Rounds; round++ {
		rules, err := o.generateVariations(ctx, best.Rule)
		if err != nil {
			return fmt.Errorf("round %d variations: %w", round, err)
		}
		if len(rules) == 0 {
			slog.Info("No usable variations produced, stopping early", "round", round)
			break
		}

		candidates, err := o.evaluateCandidates(ctx, rules, best.ID, round, func(node protocol.Node) error {
			arena = append(arena, node)
			return emit(stream.Event{Type: stream.EventCandidateEvaluated, Node: &node, RoundIndex: round})
		})
		if err != nil {
			return fmt.Errorf("round %d evaluation: %w", round, err)
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].CommunicationTokens < candidates[j].CommunicationTokens
		})
		winner := candidates[0]
		best = winner
		bestPath = append(bestPath, winner.ID)
		slog.Info("Round complete", "round", round, "candidates", len(candidates), "bestTokens", winner.CommunicationTokens)
		if err := emit(stream.Event{Type: stream.EventBestUpdated, Node: &winner, BestPath: snapshotPath(bestPath)}); err != nil {
			return err
		}
	}

	final := best
	return emit(stream.Event{
		Type:     stream.EventDone,
		Tree:     snapshotNodes(arena),
		BestPath: snapshotPath(bestPath),
		BestNode: &final,
	})
}

// Optimize runs the loop without a caller observer and returns the
// final result directly.
func (o *Optimizer) Optimize(ctx context.Context) (protocol.Node, []protocol.Node, []string, error) {
	var (
		best protocol.Node
		tree []protocol.Node
		path []string
	)
	err := o.Run(ctx, func(event stream.Event) error {
		if event.Type == stream.EventDone {
			best = *event.BestNode
			tree = event.Tree
			path = event.BestPath
		}
		return nil
	})
	if err != nil {
		return protocol.Node{}, nil, nil, err
	}
	return best, tree, path, nil
}

// =============================================================================
// Rule evaluation
// =============================================================================

// evaluateRule scores one rule: the mean channel token count over all
// input prompts, run in parallel. The returned response text is the
// final answer for the first prompt.
func (o *Optimizer) evaluateRule(ctx context.Context, rule string) (float64, string, error) {
	prompts := o.config.InputPrompts
	if len(prompts) == 0 {
		return 0, "", nil
	}

	totals := make([]int, len(prompts))
	finals := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		g.Go(func() error {
			exchange := NewExchange(o.client, o.counter, ExchangeConfig{
				AgentOne:   o.config.AgentOne,
				AgentTwo:   o.config.AgentTwo,
				Protocol:   rule,
				EntryAgent: o.config.EntryAgent,
			})
			finalText, tokens, err := exchange.Run(gctx, prompt, nil)
			if err != nil {
				return err
			}
			totals[i] = tokens
			finals[i] = finalText
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, "", err
	}

	sum := 0
	for _, tokens := range totals {
		sum += tokens
	}
	return float64(sum) / float64(len(prompts)), finals[0], nil
}

// evaluateCandidates scores every rule in parallel. Completed nodes are
// handed to record one at a time under a shared lock, so arena appends
// and event emission stay ordered even though scoring is concurrent.
// The returned slice follows record order.
func (o *Optimizer) evaluateCandidates(ctx context.Context, rules []string, parentID string, round int, record func(protocol.Node) error) ([]protocol.Node, error) {
	var mu sync.Mutex
	recorded := make([]protocol.Node, 0, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	for _, rule := range rules {
		g.Go(func() error {
			score, response, err := o.evaluateRule(gctx, rule)
			if err != nil {
				return err
			}
			node := protocol.Node{
				ID:                  uuid.New().String(),
				ParentID:            parentID,
				RoundIndex:          round,
				Rule:                rule,
				CommunicationTokens: score,
				ResponseText:        response,
			}
			mu.Lock()
			defer mu.Unlock()
			recorded = append(recorded, node)
			return record(node)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recorded, nil
}

// =============================================================================
// Variation generation
// =============================================================================

const variationSchemaName = "rule_variations"

type variationList struct {
	Variations []string `json:"variations"`
}

func variationSchema() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"variations": {
				Type:        jsonschema.Array,
				Description: "Alternative communication rules.",
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			},
		},
		Required:             []string{"variations"},
		AdditionalProperties: false,
	}
}

// generateVariations asks for VariationCount alternatives to the base
// rule, one structured call per candidate so a single slow or repeated
// answer cannot stall the whole set. Duplicates and blanks are dropped.
func (o *Optimizer) generateVariations(ctx context.Context, baseRule string) ([]string, error) {
	system := "You are refining a communication protocol between two agents. " +
		"Propose a concise alternative rule that minimizes the number of tokens needed " +
		"for a single exchange while preserving clarity. Focus on formatting, " +
		"abbreviations, or structural changes to how the agents communicate."
	user := fmt.Sprintf(
		"Current rule:\n%s\n\nAgent system messages for context:\n%s: %s\n%s: %s\n\nReturn exactly 1 alternative rule.",
		baseRule,
		o.config.AgentOne.Name, o.config.AgentOne.SystemPrompt,
		o.config.AgentTwo.Name, o.config.AgentTwo.SystemPrompt,
	)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}

	var mu sync.Mutex
	collected := make([]string, 0, o.config.VariationCount)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.config.VariationCount; i++ {
		g.Go(func() error {
			var out variationList
			if err := o.client.GenerateJSON(gctx, messages, variationSchemaName, variationSchema(), &out); err != nil {
				return err
			}
			for _, variation := range out.Variations {
				variation = strings.TrimSpace(variation)
				if variation == "" {
					continue
				}
				mu.Lock()
				collected = append(collected, variation)
				mu.Unlock()
				break
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(collected))
	rules := make([]string, 0, len(collected))
	for _, rule := range collected {
		if seen[rule] {
			continue
		}
		seen[rule] = true
		rules = append(rules, rule)
		if len(rules) == o.config.VariationCount {
			break
		}
	}
	return rules, nil
}

func snapshotPath(path []string) []string {
	return append([]string(nil), path...)
}

func snapshotNodes(nodes []protocol.Node) []protocol.Node {
	return append([]protocol.Node(nil), nodes...)
}
