// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
)

func validOptimizeBody() datatypes.OptimizeRequest {
	return datatypes.OptimizeRequest{
		Agent1Prompt:   "You plan trips.",
		Agent2Prompt:   "You know the weather.",
		Protocol:       "Communicate in plain English.",
		InputPrompts:   []string{"Plan a picnic for Saturday."},
		Rounds:         1,
		VariationCount: 1,
	}
}

// =============================================================================
// HandleOptimize Tests
// =============================================================================

func TestHandleOptimize_Success(t *testing.T) {
	mockLLM := &MockLLMClient{
		ToolMessage: "wx sat?",
		FinalText:   "Sunny.",
		Variations:  []string{"Abbreviate aggressively."},
	}
	counter := &MockTokenCounter{PerMessage: 5}

	router := createTestRouter("POST", "/api/optimize", HandleOptimize(mockLLM, counter))
	w := performRequest(router, "POST", "/api/optimize", validOptimizeBody())

	assert.Equal(t, http.StatusOK, w.Code)

	var response datatypes.OptimizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	// One round, one variation: root plus one candidate, and the round
	// winner is adopted as the best rule.
	require.Len(t, response.Tree, 2)
	require.Len(t, response.BestPath, 2)
	assert.Equal(t, "Abbreviate aggressively.", response.BestRule)
	assert.Equal(t, "Abbreviate aggressively.", response.BestNode.Rule)
	assert.Equal(t, float64(10), response.BestNode.CommunicationTokens)
	assert.Equal(t, response.BestNode.ID, response.BestPath[1])
	assert.True(t, response.Tree[0].IsRoot())
	assert.Equal(t, response.Tree[0].ID, response.BestNode.ParentID)
}

func TestHandleOptimize_EmptyInputPrompts(t *testing.T) {
	router := createTestRouter("POST", "/api/optimize", HandleOptimize(&MockLLMClient{}, &MockTokenCounter{PerMessage: 1}))

	body := validOptimizeBody()
	body.InputPrompts = []string{}
	w := performRequest(router, "POST", "/api/optimize", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "input_prompts is required", response["detail"])
}

func TestHandleOptimize_OmittedInputPrompts(t *testing.T) {
	router := createTestRouter("POST", "/api/optimize", HandleOptimize(&MockLLMClient{}, &MockTokenCounter{PerMessage: 1}))

	body := validOptimizeBody()
	body.InputPrompts = nil
	w := performRequest(router, "POST", "/api/optimize", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "input_prompts is required", response["detail"])
}

func TestHandleOptimize_InvalidJSON(t *testing.T) {
	router := createTestRouter("POST", "/api/optimize", HandleOptimize(&MockLLMClient{}, &MockTokenCounter{PerMessage: 1}))
	w := performRawRequest(router, "POST", "/api/optimize", "not json at all")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "invalid request body", response["detail"])
}

func TestHandleOptimize_RoundsOutOfRange(t *testing.T) {
	router := createTestRouter("POST", "/api/optimize", HandleOptimize(&MockLLMClient{}, &MockTokenCounter{PerMessage: 1}))

	body := validOptimizeBody()
	body.Rounds = 99
	w := performRequest(router, "POST", "/api/optimize", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["detail"], "Rounds")
}

func TestHandleOptimize_EngineFailure(t *testing.T) {
	mockLLM := &MockLLMClient{
		ToolMessage: "ok",
		FinalText:   "ok",
		JSONError:   assert.AnError,
	}
	counter := &MockTokenCounter{PerMessage: 1}

	router := createTestRouter("POST", "/api/optimize", HandleOptimize(mockLLM, counter))
	w := performRequest(router, "POST", "/api/optimize", validOptimizeBody())

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["detail"], "round 1 variations")
}
