// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"

	"maunium.net/go/mautrix/event"

	"github.com/aiku/omnichat/pkg/conn"
)

func (c *Connection) sync(ctx context.Context) {
	defer c.wg.Done()
	err := c.runSync(ctx)
	if conn.Done(ctx) {
		return
	}
	if err != nil {
		c.log.Err(err).Msg("Sync loop stopped")
		c.emitError("live sync stopped: %v", err)
	}
}

// onMessage is the syncer callback. It stops the sync loop once the sink is
// closed.
func (c *Connection) onMessage(_ context.Context, evt *event.Event) {
	if !c.handleEvent(evt) {
		c.cancel()
	}
}

// handleEvent reports whether the live loop may continue.
func (c *Connection) handleEvent(evt *event.Event) bool {
	if !isMessage(evt) {
		c.log.Trace().Str("event_type", evt.Type.Type).Msg("Unhandled event type")
		return true
	}
	content, err := messageContent(evt)
	if err != nil {
		return c.emitError("bad message event %s: %v", evt.ID, err)
	}
	if !isUserMessage(content) {
		return true
	}
	channel, known := c.rooms.GetByID(evt.RoomID)
	if !known {
		return c.emitError("message in unknown room %s", evt.RoomID)
	}
	msg, ok := c.toMessage(evt, content, channel)
	if !ok {
		return false
	}
	return conn.Emit(c.sink, conn.Live(msg))
}
