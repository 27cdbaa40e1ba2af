// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newStreamServer serves the given data frames as SSE. When block is true
// the handler holds the stream open until the client goes away.
func newStreamServer(t *testing.T, frames []string, block bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not support flushing")
			return
		}
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
		if block {
			<-r.Context().Done()
		}
	}))
}

// sessionRecorder collects callback invocations for assertions.
type sessionRecorder struct {
	mu      sync.Mutex
	events  []Event
	errs    []error
	closes  int
	closeCh chan struct{}
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{closeCh: make(chan struct{}, 4)}
}

func (r *sessionRecorder) callbacks() Callbacks {
	return Callbacks{
		OnEvent: func(event Event) {
			r.mu.Lock()
			r.events = append(r.events, event)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnClose: func() {
			r.mu.Lock()
			r.closes++
			r.mu.Unlock()
			r.closeCh <- struct{}{}
		},
	}
}

func (r *sessionRecorder) waitClose(t *testing.T) {
	t.Helper()
	select {
	case <-r.closeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

func (r *sessionRecorder) snapshot() ([]Event, []error, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := append([]Event(nil), r.events...)
	errs := append([]error(nil), r.errs...)
	return events, errs, r.closes
}

// =============================================================================
// Session Tests
// =============================================================================

func TestNewSession_Defaults(t *testing.T) {
	session := NewSession(SessionConfig{})
	if session == nil {
		t.Fatal("NewSession returned nil")
	}
	if session.config.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %q", session.config.BaseURL)
	}
	if session.config.Client == nil {
		t.Error("expected default client to be set")
	}
}

func TestSession_Open_DeliversEventsInOrder(t *testing.T) {
	server := newStreamServer(t, []string{
		`{"type":"base_evaluated","node":{"id":"n0","parent_id":"","round_index":0,"rule":"r","communication_tokens":120},"best_path":["n0"]}`,
		`{"type":"candidate_evaluated","node":{"id":"n1","parent_id":"n0","round_index":1,"rule":"r2","communication_tokens":80},"round_index":1}`,
		`{"type":"done","tree":[{"id":"n0"},{"id":"n1"}],"best_path":["n0","n1"],"best_node":{"id":"n1"}}`,
	}, false)
	defer server.Close()

	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	session.Open(context.Background(), "/api/optimize/stream", map[string]string{}, recorder.callbacks())

	recorder.waitClose(t)
	events, errs, closes := recorder.snapshot()

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if closes != 1 {
		t.Fatalf("expected exactly one OnClose, got %d", closes)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []EventType{EventBaseEvaluated, EventCandidateEvaluated, EventDone}
	for i, eventType := range want {
		if events[i].Type != eventType {
			t.Errorf("event %d: expected %v, got %v", i, eventType, events[i].Type)
		}
	}
}

func TestSession_Open_CancelBeforeEvents(t *testing.T) {
	server := newStreamServer(t, nil, true)
	defer server.Close()

	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	cancel := session.Open(context.Background(), "/api/run/stream", map[string]string{}, recorder.callbacks())

	cancel()

	// Give the reader goroutine a beat to (incorrectly) deliver anything.
	time.Sleep(50 * time.Millisecond)
	events, _, closes := recorder.snapshot()

	if len(events) != 0 {
		t.Errorf("expected no events after cancel, got %d", len(events))
	}
	if closes != 1 {
		t.Errorf("expected exactly one OnClose, got %d", closes)
	}
}

func TestSession_Open_CancelAfterCompletionIsNoOp(t *testing.T) {
	server := newStreamServer(t, []string{`{"type":"done","tree":[],"best_path":[]}`}, false)
	defer server.Close()

	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	cancel := session.Open(context.Background(), "/api/optimize/stream", map[string]string{}, recorder.callbacks())

	recorder.waitClose(t)
	cancel()
	cancel()

	_, _, closes := recorder.snapshot()
	if closes != 1 {
		t.Errorf("expected exactly one OnClose, got %d", closes)
	}
}

func TestSession_Open_ServerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"input_prompts is required"}`)
	}))
	defer server.Close()

	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	session.Open(context.Background(), "/api/optimize/stream", map[string]string{}, recorder.callbacks())

	recorder.waitClose(t)
	events, errs, closes := recorder.snapshot()

	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "server error (400)") {
		t.Errorf("expected status in error, got %v", errs[0])
	}
	if closes != 1 {
		t.Errorf("expected exactly one OnClose, got %d", closes)
	}
}

func TestSession_Open_UnknownEventTypeFailsStream(t *testing.T) {
	server := newStreamServer(t, []string{`{"type":"mystery"}`}, false)
	defer server.Close()

	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	session.Open(context.Background(), "/api/optimize/stream", map[string]string{}, recorder.callbacks())

	recorder.waitClose(t)
	events, errs, closes := recorder.snapshot()

	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", errs)
	}
	if closes != 1 {
		t.Errorf("expected exactly one OnClose, got %d", closes)
	}
}

func TestSession_Open_ParentContextCancelCloses(t *testing.T) {
	server := newStreamServer(t, nil, true)
	defer server.Close()

	ctx, cancelCtx := context.WithCancel(context.Background())
	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	session.Open(ctx, "/api/run/stream", map[string]string{}, recorder.callbacks())

	cancelCtx()
	recorder.waitClose(t)
	_, errs, closes := recorder.snapshot()

	if len(errs) != 0 {
		t.Errorf("parent cancellation must not surface as an error, got %v", errs)
	}
	if closes != 1 {
		t.Errorf("expected exactly one OnClose, got %d", closes)
	}
}

func TestSession_Open_ErrorEventIsDeliveredNotFailed(t *testing.T) {
	server := newStreamServer(t, []string{`{"type":"error","message":"rate limited"}`}, false)
	defer server.Close()

	recorder := newSessionRecorder()
	session := NewSession(SessionConfig{BaseURL: server.URL})
	session.Open(context.Background(), "/api/optimize/stream", map[string]string{}, recorder.callbacks())

	recorder.waitClose(t)
	events, errs, closes := recorder.snapshot()

	if len(errs) != 0 {
		t.Errorf("domain error events must not fire OnError, got %v", errs)
	}
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected one error event, got %+v", events)
	}
	if events[0].Message != "rate limited" {
		t.Errorf("expected message verbatim, got %q", events[0].Message)
	}
	if closes != 1 {
		t.Errorf("expected exactly one OnClose, got %d", closes)
	}
}
