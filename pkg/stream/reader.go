// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the client-side event transport for optimizer
// and exchange runs.
//
// This file contains the stream reader that consumes an io.Reader source
// and emits parsed events via a callback. Readers handle I/O and event
// sequencing; they use parsers to convert lines to events, and never
// render or aggregate.
package stream

import (
	"bufio"
	"context"
	"io"
)

// maxLineBytes bounds a single SSE line. The done event carries the whole
// tree in one data line, so the default scanner limit is not enough.
const maxLineBytes = 4 * 1024 * 1024

// Callback receives each decoded event in arrival order. Returning an
// error stops the read and propagates the error to the caller.
type Callback func(Event) error

// =============================================================================
// Stream Reader Interface
// =============================================================================

// StreamReader reads an event stream and invokes a callback per event.
//
// Thread Safety:
//
//	StreamReader implementations must be safe for concurrent use.
//	However, a single Read operation should not be called concurrently
//	on the same reader instance.
//
// Example:
//
//	reader := NewSSEStreamReader(NewSSEParser())
//
//	err := reader.Read(ctx, resp.Body, func(event stream.Event) error {
//	    switch event.Type {
//	    case stream.EventCandidateEvaluated:
//	        fmt.Println(event.Node.ID)
//	    case stream.EventError:
//	        return errors.New(event.Message)
//	    }
//	    return nil
//	})
type StreamReader interface {
	// Read processes a stream, invoking callback for each event.
	//
	// Parameters:
	//   - ctx: Context for cancellation. When cancelled, stops reading.
	//   - r: The source to read from. Caller is responsible for closing.
	//   - callback: Invoked for each decoded event. Return error to stop.
	//
	// Returns:
	//   - error: nil on successful completion, otherwise the error that
	//     stopped reading (context cancellation, decode error, or callback
	//     error)
	//
	// The stream is considered complete when:
	//   - EOF is reached
	//   - A terminal event (done/error/final) is received
	//   - Context is cancelled
	//   - Callback returns an error
	Read(ctx context.Context, r io.Reader, callback Callback) error
}

// =============================================================================
// SSE Stream Reader
// =============================================================================

// sseStreamReader implements StreamReader over bufio.Scanner lines.
type sseStreamReader struct {
	parser SSEParser
}

// NewSSEStreamReader creates a stream reader that decodes SSE lines with
// the given parser.
func NewSSEStreamReader(parser SSEParser) StreamReader {
	return &sseStreamReader{
		parser: parser,
	}
}

// Read processes an SSE stream, invoking callback for each event.
//
// Lines that carry no payload (delimiters, comments, field lines) are
// skipped. Decode failures stop the read immediately: the stream is not
// resynchronized past a malformed payload.
func (r *sseStreamReader) Read(ctx context.Context, reader io.Reader, callback Callback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	eventIndex := 0

	for scanner.Scan() {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := r.parser.ParseLine(scanner.Text())
		if err != nil {
			return err
		}

		// Skip lines without a payload
		if event == nil {
			continue
		}

		event.Index = eventIndex
		eventIndex++

		if err := callback(*event); err != nil {
			return err
		}

		// Stop on terminal events
		if event.IsTerminal() {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ StreamReader = (*sseStreamReader)(nil)
