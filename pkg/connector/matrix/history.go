// Copyright 2024-2026 Aiku AI

package matrix

import (
	"cmp"
	"context"
	"slices"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/omnichat/pkg/conn"
)

func sortByTimestamp(events []*event.Event) {
	slices.SortStableFunc(events, func(a, b *event.Event) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
}

// loadHistory emits the latest page of a room oldest first, then the
// HistoryLoadedEvent, which is sent even when the fetch fails.
func (c *Connection) loadHistory(ctx context.Context, roomID id.RoomID, channel string) {
	defer c.wg.Done()

	var resp *mautrix.RespMessages
	err := c.api.Read(func(cl *mautrix.Client) (err error) {
		resp, err = cl.Messages(ctx, roomID, "", "", mautrix.DirectionBackward, nil, c.cfg.HistoryCount)
		return err
	})
	if conn.Done(ctx) {
		return
	}
	if err != nil {
		c.log.Err(err).Str("channel", channel).Msg("Failed to fetch history")
		if !c.emitError("failed to load history for #%s: %v", channel, err) {
			return
		}
	} else {
		events := slices.Clone(resp.Chunk)
		sortByTimestamp(events)
		for _, evt := range events {
			if conn.Done(ctx) {
				return
			}
			if evt == nil || !isMessage(evt) {
				continue
			}
			content, err := messageContent(evt)
			if err != nil {
				c.log.Debug().Err(err).Stringer("event_id", evt.ID).Msg("Skipping unparsable history event")
				continue
			}
			if !isUserMessage(content) {
				continue
			}
			msg, ok := c.toMessage(evt, content, channel)
			if !ok || !conn.Emit(c.sink, conn.HistoryMessageEvent{Message: msg}) {
				return
			}
		}
	}
	conn.Emit(c.sink, conn.HistoryLoadedEvent{Server: c.Name(), Channel: channel})
}
