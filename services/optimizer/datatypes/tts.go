// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes: speech synthesis request types.
package datatypes

// Speech synthesis defaults. Unrecognized voices, models, or formats are
// not rejected here; the provider decides and its error is relayed.
const (
	DefaultVoice       = "alloy"
	DefaultSpeechModel = "tts-1"
	DefaultAudioFormat = "mp3"
)

// TTSRequest asks the server to synthesize speech with the server-held
// provider credential. Backs POST /api/tts.
type TTSRequest struct {
	Text   string `json:"text" validate:"required,notblank,maxbytes"`
	Voice  string `json:"voice" validate:"omitempty,maxbytes"`
	Model  string `json:"model" validate:"omitempty,maxbytes"`
	Format string `json:"format" validate:"omitempty,maxbytes"`
}

// Validate validates the TTSRequest fields. Whitespace-only text is
// rejected, not just missing text.
func (r *TTSRequest) Validate() error {
	return requestValidate.Struct(r)
}

// EnsureDefaults fills voice, model, and format when omitted.
func (r *TTSRequest) EnsureDefaults() {
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}
	if r.Model == "" {
		r.Model = DefaultSpeechModel
	}
	if r.Format == "" {
		r.Format = DefaultAudioFormat
	}
}
