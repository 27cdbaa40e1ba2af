// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the optimizer service:
// one-shot and streaming exchange runs, protocol optimization, and speech
// synthesis pass-through.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
)

// SSEWriter writes optimizer events to a Server-Sent Events stream.
//
// # Description
//
// Wraps an http.ResponseWriter with the framing the stream protocol
// requires: every event goes out as an `event:` line naming the type
// followed by a `data:` line carrying the JSON payload, and keep-alive
// comments hold idle connections open through proxies.
//
// # Thread Safety
//
// Implementations must serialize writes. Engine callbacks and the
// heartbeat goroutine share one writer per request.
type SSEWriter interface {
	// WriteEvent frames and flushes a single event.
	WriteEvent(event stream.Event) error

	// WriteKeepAlive writes an SSE comment to hold the connection open.
	WriteKeepAlive() error
}

// sseWriter is the production SSEWriter backed by an http.ResponseWriter.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps w for SSE output.
//
// Returns an error when the ResponseWriter cannot flush, which means the
// server stack buffers responses and streaming is impossible.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// WriteEvent marshals the event and writes one SSE frame.
//
// The event type doubles as the SSE event name so clients can subscribe
// per type, and the full event (type included) travels in the data line
// so a plain line parser recovers the same object.
func (w *sseWriter) WriteEvent(event stream.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteKeepAlive writes a comment frame. Comments are invisible to SSE
// clients but reset proxy idle timers.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response headers required for SSE.
//
// Must run before the first write. X-Accel-Buffering disables response
// buffering in nginx-style reverse proxies that would otherwise batch
// events.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Compile-time interface check.
var _ SSEWriter = (*sseWriter)(nil)
