// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "testing"

// =============================================================================
// TTSRequest Validation Tests
// =============================================================================

func TestTTSRequest_Validate_Success(t *testing.T) {
	req := &TTSRequest{Text: "Read this aloud."}
	req.EnsureDefaults()

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestTTSRequest_Validate_MissingText(t *testing.T) {
	req := &TTSRequest{}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing text, got nil")
	}
}

func TestTTSRequest_Validate_WhitespaceText(t *testing.T) {
	req := &TTSRequest{Text: "   \n\t "}

	if err := req.Validate(); err == nil {
		t.Error("expected error for whitespace-only text, got nil")
	}
}

// =============================================================================
// TTSRequest EnsureDefaults Tests
// =============================================================================

func TestTTSRequest_EnsureDefaults_FillsSynthesisFields(t *testing.T) {
	req := &TTSRequest{Text: "Read this aloud."}
	req.EnsureDefaults()

	if req.Voice != DefaultVoice {
		t.Errorf("expected voice %q, got %q", DefaultVoice, req.Voice)
	}
	if req.Model != DefaultSpeechModel {
		t.Errorf("expected model %q, got %q", DefaultSpeechModel, req.Model)
	}
	if req.Format != DefaultAudioFormat {
		t.Errorf("expected format %q, got %q", DefaultAudioFormat, req.Format)
	}
}

func TestTTSRequest_EnsureDefaults_PreservesExplicitValues(t *testing.T) {
	req := &TTSRequest{Text: "Read this aloud.", Voice: "nova", Model: "tts-1-hd", Format: "wav"}
	req.EnsureDefaults()

	if req.Voice != "nova" || req.Model != "tts-1-hd" || req.Format != "wav" {
		t.Errorf("expected explicit synthesis fields preserved, got %q/%q/%q",
			req.Voice, req.Model, req.Format)
	}
}
