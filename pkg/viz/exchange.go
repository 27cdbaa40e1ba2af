// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viz derives renderable state from stream events.
//
// This file contains the exchange reducer. A single exchange run emits a
// handful of agent messages and one final; the reducer keeps the full
// ordered log for inspection while exposing only what rendering needs,
// the newest message per direction and the final result.
package viz

import (
	"github.com/ShinnosukeUesaka/opt-com/pkg/stream"
)

// ExchangeState reduces exchange events into the current run's view.
//
// Like TreeState, an ExchangeState belongs to exactly one run and must
// be driven from a single goroutine.
type ExchangeState struct {
	log         []stream.Event
	latest      map[stream.Direction]stream.Event
	finalText   string
	finalTokens int
	status      RunStatus
	errText     string
}

// NewExchangeState creates an empty exchange state.
func NewExchangeState() *ExchangeState {
	return &ExchangeState{latest: make(map[stream.Direction]stream.Event)}
}

// Apply folds one event into the state. Optimization events pass through
// untouched.
func (s *ExchangeState) Apply(event stream.Event) {
	switch event.Type {
	case stream.EventAgentMessage:
		s.log = append(s.log, event)
		s.latest[event.Direction] = event

	case stream.EventFinal:
		s.log = append(s.log, event)
		s.finalText = event.Message
		s.finalTokens = event.Tokens
		s.status = RunComplete

	case stream.EventError:
		s.log = append(s.log, event)
		s.errText = event.Message
		s.status = RunFailed
	}
}

// Log returns a snapshot of every applied event in arrival order.
func (s *ExchangeState) Log() []stream.Event {
	return append([]stream.Event(nil), s.log...)
}

// Latest returns the newest agent message in the given direction.
func (s *ExchangeState) Latest(direction stream.Direction) (stream.Event, bool) {
	event, ok := s.latest[direction]
	return event, ok
}

// FinalText returns the entry agent's final answer, empty until the
// final event arrives.
func (s *ExchangeState) FinalText() string {
	return s.finalText
}

// FinalTokens returns the total communication token count, zero until
// the final event arrives.
func (s *ExchangeState) FinalTokens() int {
	return s.finalTokens
}

// Status returns the run lifecycle state.
func (s *ExchangeState) Status() RunStatus {
	return s.status
}

// ErrorMessage returns the verbatim message of a failed run.
func (s *ExchangeState) ErrorMessage() string {
	return s.errText
}
