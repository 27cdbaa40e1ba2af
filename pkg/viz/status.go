// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viz derives renderable state from stream events: a tree reducer
// and an exchange reducer accumulate what the optimizer reports, and a
// pure layout engine turns the accumulated tree into pixel geometry.
//
// Reducers are single-threaded by design. Each run owns one reducer
// instance; events are applied in arrival order and nothing here blocks.
package viz

// RunStatus tracks where a run is in its lifecycle.
type RunStatus int

const (
	// RunActive means events are still expected.
	RunActive RunStatus = iota

	// RunComplete means the terminal done or final event arrived.
	RunComplete

	// RunFailed means a domain error event arrived. State accumulated
	// before the failure stays visible; no further events are applied
	// by the producer.
	RunFailed
)

// String returns a short lowercase label for logs.
func (s RunStatus) String() string {
	switch s {
	case RunActive:
		return "active"
	case RunComplete:
		return "complete"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}
