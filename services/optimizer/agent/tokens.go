// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding covers models tiktoken has no mapping for.
const fallbackEncoding = "cl100k_base"

// TokenCounter scores a channel message by its token length.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var _ TokenCounter = (*tiktokenCounter)(nil)

// NewTokenCounter builds a counter for the given model's encoding,
// falling back to cl100k_base when the model is unknown.
func NewTokenCounter(model string) (TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Warn("No token encoding for model, falling back", "model", model, "encoding", fallbackEncoding)
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("load %s encoding: %w", fallbackEncoding, err)
		}
	}
	return &tiktokenCounter{encoding: encoding}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// wordCounter approximates token counts by whitespace splitting. Used
// with the offline fake backend, where fetching a BPE vocabulary over
// the network would defeat the point.
type wordCounter struct{}

var _ TokenCounter = wordCounter{}

// NewWordCounter builds a counter that needs no vocabulary data.
func NewWordCounter() TokenCounter {
	return wordCounter{}
}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}
