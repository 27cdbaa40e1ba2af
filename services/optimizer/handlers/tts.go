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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ShinnosukeUesaka/opt-com/services/llm"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/observability"
)

// ttsUnconfiguredDetail is returned when the service was started without
// a speech credential. Fixed text so clients can distinguish a missing
// server credential from provider failures.
const ttsUnconfiguredDetail = "OPENAI_API_KEY is not configured on the server"

// HandleTTS forwards text to the speech provider and relays the audio.
//
// # Description
//
// Handles POST /api/tts. The service holds the provider credential so
// browser clients never see it. The provider's audio bytes and
// Content-Type pass through verbatim, and provider rejections are
// relayed with the provider's own status code in a `{"detail": ...}`
// body.
//
// # Outputs
//
//   - 200: raw audio bytes with the provider's Content-Type
//   - 400: {"detail": ...} on malformed JSON or empty text
//   - 500: {"detail": ...} when no credential is configured or the
//     provider call fails without a status
//   - other: the provider's status code with its message in detail
func HandleTTS(speech llm.SpeechClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointTTS

		var req datatypes.TTSRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error("Failed to parse TTS request", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			slog.Error("TTS request failed validation", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		if speech == nil {
			slog.Error("TTS request rejected: no speech credential configured")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeInternal)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": ttsUnconfiguredDetail})
			return
		}

		result, err := speech.Synthesize(c.Request.Context(), llm.SpeechRequest{
			Text:   req.Text,
			Voice:  req.Voice,
			Model:  req.Model,
			Format: req.Format,
		})
		if err != nil {
			var provErr *llm.ProviderError
			if errors.As(err, &provErr) {
				slog.Error("Speech provider rejected TTS request",
					"status", provErr.StatusCode,
					"error", provErr.Message,
				)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(endpoint, observability.ErrorCodeProviderError)
					m.RecordRequest(endpoint, false)
				}
				c.JSON(provErr.StatusCode, gin.H{"detail": provErr.Message})
				return
			}
			slog.Error("Speech synthesis failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeLLMError)
				m.RecordRequest(endpoint, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, true)
		}
		c.Data(http.StatusOK, result.ContentType, result.Audio)
	}
}
