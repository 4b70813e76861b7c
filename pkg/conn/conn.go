// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package conn defines the backend-agnostic side of omnichat: the Connection
// contract every adapter implements, the normalized Event and Message model,
// and the Sink adapters publish to.
//
// # Lifecycle
//
// An adapter is constructed with a *Sink owned by the front end. Construction
// authenticates, enumerates channels and users and opens the live stream
// synchronously, then starts one goroutine per channel for history backfill
// and one goroutine for live events. Both kinds only ever write to the Sink.
// Close cancels them at their next iteration boundary.
//
// # Ordering
//
// Within one channel, history arrives oldest first and HistoryLoadedEvent is
// last. Nothing else is ordered: channels race each other and live events
// interleave freely with history.
package conn

import "context"

// Connection is one long-lived session with one backend.
type Connection interface {
	// SendChannelMessage posts text to the named channel. Failures are
	// reported as an ErrorEvent on the sink.
	SendChannelMessage(ctx context.Context, channel, text string)
	// HandleCommand runs a backend verb. Unknown verbs are ignored.
	HandleCommand(ctx context.Context, name string, args []string)
	// Channels returns the accessible channel names, fixed at connection time.
	Channels() []string
	// Autocomplete completes a sigil-prefixed word (#channel, @user, :emoji:,
	// +:emoji:).
	Autocomplete(partial string) (string, bool)
	// Name is the stable display name of the backend session.
	Name() string
	// Close stops the connection's goroutines.
	Close()
}

// Emit sends evt and reports whether the producer may keep running.
func Emit(sink *Sink, evt Event) bool {
	return sink.Send(evt) == nil
}

// Done reports whether ctx has been cancelled.
func Done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
