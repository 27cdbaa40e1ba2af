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
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
)

// =============================================================================
// HandleTTS Tests
// =============================================================================

func TestHandleTTS_Success(t *testing.T) {
	speech := &MockSpeechClient{
		Result: &llm.SpeechResult{Audio: []byte("ID3\x04fake-mp3-bytes"), ContentType: "audio/mpeg"},
	}

	router := createTestRouter("POST", "/api/tts", HandleTTS(speech))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{Text: "Read this aloud."})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte("ID3\x04fake-mp3-bytes"), w.Body.Bytes())

	// Defaults fill in before the provider call.
	assert.Equal(t, "Read this aloud.", speech.LastRequest.Text)
	assert.Equal(t, datatypes.DefaultVoice, speech.LastRequest.Voice)
	assert.Equal(t, datatypes.DefaultSpeechModel, speech.LastRequest.Model)
	assert.Equal(t, datatypes.DefaultAudioFormat, speech.LastRequest.Format)
}

func TestHandleTTS_OverridesPassThrough(t *testing.T) {
	speech := &MockSpeechClient{
		Result: &llm.SpeechResult{Audio: []byte("RIFFfake-wav"), ContentType: "audio/wav"},
	}

	router := createTestRouter("POST", "/api/tts", HandleTTS(speech))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{
		Text:   "Read this aloud.",
		Voice:  "nova",
		Model:  "tts-1-hd",
		Format: "wav",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nova", speech.LastRequest.Voice)
	assert.Equal(t, "tts-1-hd", speech.LastRequest.Model)
	assert.Equal(t, "wav", speech.LastRequest.Format)
}

func TestHandleTTS_InvalidJSON(t *testing.T) {
	router := createTestRouter("POST", "/api/tts", HandleTTS(&MockSpeechClient{}))
	w := performRawRequest(router, "POST", "/api/tts", "text=hello")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "invalid request body", response["detail"])
}

func TestHandleTTS_MissingText(t *testing.T) {
	router := createTestRouter("POST", "/api/tts", HandleTTS(&MockSpeechClient{}))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{Voice: "nova"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["detail"], "Text")
}

func TestHandleTTS_WhitespaceText(t *testing.T) {
	router := createTestRouter("POST", "/api/tts", HandleTTS(&MockSpeechClient{}))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{Text: "   \n\t  "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTTS_MissingCredential(t *testing.T) {
	router := createTestRouter("POST", "/api/tts", HandleTTS(nil))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{Text: "Read this aloud."})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "OPENAI_API_KEY is not configured on the server", response["detail"])
}

func TestHandleTTS_ProviderErrorRelaysStatus(t *testing.T) {
	speech := &MockSpeechClient{
		Err: &llm.ProviderError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit exceeded"},
	}

	router := createTestRouter("POST", "/api/tts", HandleTTS(speech))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{Text: "Read this aloud."})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Rate limit exceeded", response["detail"])
}

func TestHandleTTS_GenericFailureIs500(t *testing.T) {
	speech := &MockSpeechClient{Err: errors.New("dial tcp: connection refused")}

	router := createTestRouter("POST", "/api/tts", HandleTTS(speech))
	w := performRequest(router, "POST", "/api/tts", datatypes.TTSRequest{Text: "Read this aloud."})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response["detail"], "connection refused")
}
