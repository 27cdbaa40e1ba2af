// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the client-side event transport for optimizer
// and exchange runs.
//
// This file contains the SSE line parser. Parsers only parse: no I/O, no
// rendering, no state. That separation keeps them trivially testable.
//
// SSE Format Reference (https://developer.mozilla.org/en-US/docs/Web/API/Server-sent_events):
//
//	event: base_evaluated\n
//	data: {"type":"base_evaluated","node":{...}}\n
//	\n
//
// The JSON "type" field is authoritative for decoding; the "event:" field
// line is skipped, as are comments, "id:" and "retry:" lines. Any other
// non-empty line is malformed input and fails the stream.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Parse Errors
// =============================================================================

var (
	// ErrMalformedLine reports a non-empty line that is not a recognized
	// SSE field. There is no plain-text fallback: an unparseable stream
	// is a transport failure, not content.
	ErrMalformedLine = errors.New("malformed sse line")

	// ErrUnknownEventType reports a payload whose type field is outside
	// the closed event set.
	ErrUnknownEventType = errors.New("unknown event type")
)

// =============================================================================
// SSE Parser Interface
// =============================================================================

// SSEParser parses Server-Sent Events lines into Event structs.
//
// Thread Safety:
//
//	SSEParser implementations must be safe for concurrent use.
//	The default implementation is stateless and inherently thread-safe.
//
// Example:
//
//	parser := NewSSEParser()
//	event, err := parser.ParseLine(`data: {"type":"error","message":"rate limited"}`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if event != nil {
//	    fmt.Println(event.Message) // "rate limited"
//	}
type SSEParser interface {
	// ParseLine parses a single line of SSE input.
	//
	// Parameters:
	//   - line: A single line from the SSE stream (without trailing newline)
	//
	// Returns:
	//   - *Event: The decoded event, or nil for lines that carry no payload
	//   - error: Non-nil for malformed lines or undecodable payloads
	//
	// Line handling:
	//   - Empty lines: Returns nil, nil (event delimiter)
	//   - Comment lines (":"): Returns nil, nil (keepalives)
	//   - Field lines ("event:", "id:", "retry:"): Returns nil, nil
	//   - Data lines ("data: "): Decodes the JSON payload
	//   - Anything else: Returns ErrMalformedLine
	ParseLine(line string) (*Event, error)

	// ParseRawJSON decodes a raw JSON payload into an Event.
	//
	// Use this when you have the payload without the "data: " prefix.
	// The payload must carry a type from the closed event set.
	ParseRawJSON(jsonData []byte) (*Event, error)
}

// =============================================================================
// SSE Parser Implementation
// =============================================================================

// sseParser implements SSEParser. Stateless, safe for concurrent use.
type sseParser struct{}

// NewSSEParser creates a new SSE parser.
//
// The returned parser is stateless and can be safely shared across goroutines.
func NewSSEParser() SSEParser {
	return &sseParser{}
}

// ParseLine parses a single SSE line.
func (p *sseParser) ParseLine(line string) (*Event, error) {
	line = strings.TrimSpace(line)

	// Empty lines are event delimiters
	if line == "" {
		return nil, nil
	}

	// Comments start with ":"
	if strings.HasPrefix(line, ":") {
		return nil, nil
	}

	// Data lines start with "data: "
	if strings.HasPrefix(line, "data: ") {
		return p.ParseRawJSON([]byte(strings.TrimPrefix(line, "data: ")))
	}

	// Also handle "data:" without space (some servers do this)
	if strings.HasPrefix(line, "data:") {
		return p.ParseRawJSON([]byte(strings.TrimPrefix(line, "data:")))
	}

	// Field lines the decoder does not use. The JSON type field decides
	// dispatch, so the event name here is redundant.
	if strings.HasPrefix(line, "event:") ||
		strings.HasPrefix(line, "id:") ||
		strings.HasPrefix(line, "retry:") {
		return nil, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
}

// ParseRawJSON decodes a JSON payload into an Event.
//
// Decoding is strict about the type field: payloads outside the closed
// event set fail rather than passing through as opaque data.
func (p *sseParser) ParseRawJSON(jsonData []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(jsonData, &event); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}

	if !event.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}

	return &event, nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEParser = (*sseParser)(nil)
