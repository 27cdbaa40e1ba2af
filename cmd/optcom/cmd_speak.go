// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShinnosukeUesaka/opt-com/cmd/optcom/config"
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
	"github.com/ShinnosukeUesaka/opt-com/services/optimizer/datatypes"
)

// speakTimeout bounds one synthesis request. Long texts take a while to
// render server side, so this is generous.
const speakTimeout = 2 * time.Minute

func runSpeakCommand(cmd *cobra.Command, args []string) {
	text := strings.Join(args, " ")
	req := datatypes.TTSRequest{
		Text:   text,
		Voice:  firstNonEmpty(speakVoice, config.Global.Speech.Voice),
		Model:  firstNonEmpty(speakModel, config.Global.Speech.Model),
		Format: firstNonEmpty(speakFormat, config.Global.Speech.Format),
	}

	payload, err := json.Marshal(req)
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	client := stream.NewHTTPClient(speakTimeout)
	resp, err := client.Post(ctx, resolveServerURL()+"/api/tts", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Failed to reach the server: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("Speech synthesis failed (status %d): %s", resp.StatusCode, extractDetail(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read the audio stream: %v", err)
	}

	out := speakOutput
	if out == "" {
		format := req.Format
		if format == "" {
			format = "mp3"
		}
		out = "speech." + format
	}
	if err := os.WriteFile(out, audio, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", out, err)
	}

	fmt.Printf("Wrote %d bytes to %s\n", len(audio), out)
}
