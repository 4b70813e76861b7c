// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"sort"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/omnichat/pkg/conn"
)

// loadHistory emits the latest page of a channel oldest first, then the
// HistoryLoadedEvent. A failed fetch is reported and still ends with
// HistoryLoadedEvent so the front end stops waiting for the channel.
func (c *Connection) loadHistory(ctx context.Context, channelID, channel string) {
	defer c.wg.Done()

	var postList *model.PostList
	err := c.api.Read(func(cl *model.Client4) (err error) {
		postList, _, err = cl.GetPostsForChannel(ctx, channelID, 0, c.cfg.HistoryCount, "", false, false)
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
		// Sort chronologically (oldest first).
		posts := postList.ToSlice()
		sort.Slice(posts, func(i, j int) bool {
			return posts[i].CreateAt < posts[j].CreateAt
		})
		for _, post := range posts {
			if conn.Done(ctx) {
				return
			}
			if !isUserPost(post) {
				continue
			}
			msg, ok := c.toMessage(post, channel)
			if !ok || !conn.Emit(c.sink, conn.HistoryMessageEvent{Message: msg}) {
				return
			}
		}
	}
	conn.Emit(c.sink, conn.HistoryLoadedEvent{Server: c.Name(), Channel: channel})
}
