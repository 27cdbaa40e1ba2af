// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the client-side event transport for optimizer
// and exchange runs.
//
// This file contains the Session: the one place a client opens an event
// stream. A session posts the request, reads the SSE response on its own
// goroutine, and hands every decoded event to the caller's callbacks in
// arrival order. The returned cancel function is the only control surface.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// errStreamClosed stops the reader once the stream has been cancelled.
// It never escapes the session.
var errStreamClosed = errors.New("stream closed")

// DefaultBaseURL is where the optimizer service listens when unconfigured.
const DefaultBaseURL = "http://localhost:12410"

// =============================================================================
// Callbacks
// =============================================================================

// Callbacks receive the lifecycle of one stream.
//
// All callbacks run sequentially on the session's reader goroutine, in
// arrival order, and never concurrently with each other. Any callback may
// be nil.
//
//   - OnEvent fires once per decoded event.
//   - OnError fires at most once, on transport or decode failure, and is
//     always followed by OnClose. Domain error events arrive through
//     OnEvent like any other event.
//   - OnClose fires exactly once per opened stream, last.
//
// The CancelFunc returned by Open must not be called from inside a
// callback; it blocks until the in-flight callback returns.
type Callbacks struct {
	OnEvent func(Event)
	OnError func(error)
	OnClose func()
}

// CancelFunc tears down a stream. It is idempotent and safe to call at
// any point in the stream's life, including after natural completion.
// Once it returns, no further callbacks will run.
type CancelFunc func()

// =============================================================================
// Session Configuration
// =============================================================================

// SessionConfig configures a Session. Zero values select defaults.
type SessionConfig struct {
	// BaseURL is the optimizer service root, without a trailing slash.
	BaseURL string

	// Client is the HTTP client to use. Defaults to a context-bound
	// client with no client-level timeout.
	Client HTTPClient

	// Logger receives debug and teardown logs. Defaults to slog.Default().
	Logger *slog.Logger
}

func applySessionConfigDefaults(config SessionConfig) SessionConfig {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Client == nil {
		config.Client = NewHTTPClient(0)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

// =============================================================================
// Session
// =============================================================================

// Session opens server-sent event streams against the optimizer service.
//
// A Session holds no per-stream state and may open any number of streams
// concurrently; each Open call gets its own reader goroutine, callback
// ordering, and cancel function.
type Session struct {
	config SessionConfig
}

// NewSession creates a Session with defaults applied.
func NewSession(config SessionConfig) *Session {
	return &Session{config: applySessionConfigDefaults(config)}
}

// Open starts one event stream.
//
// The request payload is marshalled to JSON and POSTed to BaseURL+path;
// the response is consumed as SSE until a terminal event, EOF, failure,
// or cancellation. Open never blocks on the network: connection errors
// are reported through cb.OnError like any other transport failure.
//
// Cancelling the supplied ctx closes the stream (OnClose, no OnError);
// so does the returned CancelFunc. The session retries nothing.
func (s *Session) Open(ctx context.Context, path string, payload any, cb Callbacks) CancelFunc {
	streamCtx, stop := context.WithCancel(ctx)
	st := &streamState{}

	go s.run(streamCtx, stop, st, path, payload, cb)

	return func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.closed {
			return
		}
		st.closed = true
		stop()
		if cb.OnClose != nil {
			cb.OnClose()
		}
	}
}

// streamState serializes callbacks and latches teardown for one stream.
// Every callback runs under mu, so a CancelFunc that has acquired mu
// knows no callback is in flight.
type streamState struct {
	mu     sync.Mutex
	closed bool
}

// deliver hands one event to OnEvent unless the stream is closed.
func (st *streamState) deliver(cb Callbacks, event Event) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return errStreamClosed
	}
	if cb.OnEvent != nil {
		cb.OnEvent(event)
	}
	return nil
}

// fail reports a transport failure and closes the stream.
func (st *streamState) fail(cb Callbacks, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	if cb.OnError != nil {
		cb.OnError(err)
	}
	if cb.OnClose != nil {
		cb.OnClose()
	}
}

// finish closes the stream without an error, if not already closed.
func (st *streamState) finish(cb Callbacks) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	if cb.OnClose != nil {
		cb.OnClose()
	}
}

// run connects and drains one stream. Runs on its own goroutine.
func (s *Session) run(ctx context.Context, stop context.CancelFunc, st *streamState, path string, payload any, cb Callbacks) {
	defer stop()

	requestID := uuid.New().String()

	body, err := s.connect(ctx, requestID, path, payload)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			st.finish(cb)
			return
		}
		st.fail(cb, err)
		return
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			s.config.Logger.Error("failed to close stream body",
				"request_id", requestID, "error", cerr)
		}
	}()

	reader := NewSSEStreamReader(NewSSEParser())
	err = reader.Read(ctx, body, func(event Event) error {
		return st.deliver(cb, event)
	})

	switch {
	case err == nil:
		st.finish(cb)
	case errors.Is(err, errStreamClosed), errors.Is(err, context.Canceled):
		// Cancelled locally or by the parent context. finish is a no-op
		// when the cancel func already closed the stream.
		st.finish(cb)
	default:
		st.fail(cb, err)
	}
}

// connect posts the request and returns the response body on 200.
func (s *Session) connect(ctx context.Context, requestID, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := s.config.BaseURL + path
	s.config.Logger.Debug("opening event stream",
		"request_id", requestID, "url", url)

	headers := map[string]string{"Accept": "text/event-stream"}
	resp, err := s.config.Client.PostWithHeaders(ctx, url, "application/json", bytes.NewBuffer(data), headers)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if cerr := resp.Body.Close(); cerr != nil {
			s.config.Logger.Error("failed to close response body",
				"request_id", requestID, "error", cerr)
		}
		s.config.Logger.Error("stream request rejected",
			"request_id", requestID, "status", resp.StatusCode)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}
