// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/omnichat/pkg/conn"
)

func (c *Connection) currentStream() eventStream {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	return c.stream
}

func (c *Connection) listen(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.currentStream().Events():
			if !ok {
				if conn.Done(ctx) || !c.reconnect(ctx) {
					return
				}
				continue
			}
			if evt == nil {
				continue
			}
			if !c.handleEvent(evt) {
				return
			}
		}
	}
}

// reconnect replaces a closed WebSocket. It reports whether listening can
// continue.
func (c *Connection) reconnect(ctx context.Context) bool {
	c.log.Warn().Msg("WebSocket event channel closed, reconnecting")
	stream, err := c.dialStream(c.cfg.ServerURL, c.cfg.Token)
	if err != nil {
		c.log.Err(err).Msg("Failed to reconnect WebSocket")
		c.emitError("live stream lost: %v", err)
		return false
	}
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	if conn.Done(ctx) {
		stream.Close()
		return false
	}
	c.stream = stream
	return true
}

// handleEvent reports whether the live loop may continue.
func (c *Connection) handleEvent(evt *model.WebSocketEvent) bool {
	if evt.EventType() != model.WebsocketEventPosted {
		c.log.Trace().Str("event_type", string(evt.EventType())).Msg("Unhandled event type")
		return true
	}
	post, err := parsePostedEvent(evt)
	if err != nil {
		return c.emitError("bad posted event: %v", err)
	}
	if !isUserPost(post) {
		return true
	}
	channel, known := c.channels.GetByID(post.ChannelId)
	if !known {
		if c.outsideTeam(evt) {
			c.log.Debug().Str("channel_id", post.ChannelId).Msg("Ignoring post outside the team")
			return true
		}
		return c.emitError("message in unknown channel %s", post.ChannelId)
	}
	msg, ok := c.toMessage(post, channel)
	if !ok {
		return false
	}
	return conn.Emit(c.sink, conn.Live(msg))
}

// outsideTeam reports whether a posted event comes from a direct or group
// message or from another team. The WebSocket carries those too.
func (c *Connection) outsideTeam(evt *model.WebSocketEvent) bool {
	data := evt.GetData()
	channelType, _ := data["channel_type"].(string)
	switch model.ChannelType(channelType) {
	case model.ChannelTypeDirect, model.ChannelTypeGroup:
		return true
	}
	teamID, _ := data["team_id"].(string)
	return teamID != "" && teamID != c.team.Id
}

func parsePostedEvent(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}
	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	return &post, nil
}
