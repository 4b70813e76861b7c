// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/omnichat/pkg/conn"
)

const sendAttempts = 2

// SendChannelMessage posts text to a channel, retrying once. The created
// post becomes the target of later delete and update commands.
func (c *Connection) SendChannelMessage(ctx context.Context, channel, text string) {
	channel = trimChannelSigil(channel)
	channelID, ok := c.channels.GetByName(channel)
	if !ok {
		c.emitError("cannot send: %v: #%s", conn.ErrUnknownChannel, channel)
		return
	}
	post := &model.Post{
		ChannelId: channelID,
		Message:   c.rewriter.ToPlatform(text),
	}

	var created *model.Post
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		err = c.api.Write(func(cl *model.Client4) (err error) {
			created, _, err = cl.CreatePost(ctx, post)
			return err
		})
		if err == nil || ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Str("channel", channel).Msg("Failed to send message")
	}
	if err != nil {
		c.emitError("failed to send message to #%s: %v", channel, err)
		return
	}
	c.lastMu.Lock()
	c.lastPost = created
	c.lastMu.Unlock()
}

// HandleCommand runs join, leave, delete, update, search or users. Unknown
// verbs and wrong argument counts are ignored.
func (c *Connection) HandleCommand(ctx context.Context, name string, args []string) {
	switch {
	case name == "join" && len(args) == 1:
		c.join(ctx, trimChannelSigil(args[0]))
	case name == "leave" && len(args) == 1:
		c.leave(ctx, trimChannelSigil(args[0]))
	case name == "delete" && len(args) == 0:
		c.deleteLast(ctx)
	case name == "update" && len(args) > 0:
		c.updateLast(ctx, strings.Join(args, " "))
	case name == "search" && len(args) > 0:
		c.search(ctx, strings.Join(args, " "))
	case name == "users" && len(args) == 0:
		c.listUsers(ctx)
	default:
		c.log.Debug().Str("command", name).Int("args", len(args)).Msg("Ignoring command")
	}
}

func (c *Connection) join(ctx context.Context, channel string) {
	err := c.api.Write(func(cl *model.Client4) error {
		ch, _, err := cl.GetChannelByName(ctx, channel, c.team.Id, "")
		if err != nil {
			return fmt.Errorf("failed to find channel: %w", err)
		}
		_, _, err = cl.AddChannelMember(ctx, ch.Id, c.me.Id)
		return err
	})
	if err != nil {
		c.emitError("failed to join #%s: %v", channel, err)
	}
}

func (c *Connection) leave(ctx context.Context, channel string) {
	err := c.api.Write(func(cl *model.Client4) error {
		channelID, ok := c.channels.GetByName(channel)
		if !ok {
			ch, _, err := cl.GetChannelByName(ctx, channel, c.team.Id, "")
			if err != nil {
				return fmt.Errorf("failed to find channel: %w", err)
			}
			channelID = ch.Id
		}
		_, err := cl.RemoveUserFromChannel(ctx, channelID, c.me.Id)
		return err
	})
	if err != nil {
		c.emitError("failed to leave #%s: %v", channel, err)
	}
}

func (c *Connection) last() *model.Post {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastPost
}

func (c *Connection) deleteLast(ctx context.Context) {
	post := c.last()
	if post == nil {
		c.emitError("no sent message to delete")
		return
	}
	err := c.api.Write(func(cl *model.Client4) error {
		_, err := cl.DeletePost(ctx, post.Id)
		return err
	})
	if err != nil {
		c.emitError("failed to delete message: %v", err)
		return
	}
	c.lastMu.Lock()
	if c.lastPost == post {
		c.lastPost = nil
	}
	c.lastMu.Unlock()
}

func (c *Connection) updateLast(ctx context.Context, text string) {
	post := c.last()
	if post == nil {
		c.emitError("no sent message to update")
		return
	}
	message := c.rewriter.ToPlatform(text)
	err := c.api.Write(func(cl *model.Client4) error {
		_, _, err := cl.PatchPost(ctx, post.Id, &model.PostPatch{Message: &message})
		return err
	})
	if err != nil {
		c.emitError("failed to update message: %v", err)
	}
}

func (c *Connection) search(ctx context.Context, terms string) {
	var postList *model.PostList
	err := c.api.Read(func(cl *model.Client4) (err error) {
		postList, _, err = cl.SearchPosts(ctx, c.team.Id, terms, false)
		return err
	})
	if err != nil {
		c.emitError("search failed: %v", err)
		return
	}
	posts := postList.ToSlice()
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreateAt < posts[j].CreateAt
	})
	lines := make([]string, 0, len(posts))
	for _, post := range posts {
		channel, ok := c.channels.GetByID(post.ChannelId)
		if !ok {
			channel = post.ChannelId
		}
		sender, ok := c.senders[post.UserId]
		if !ok {
			sender = post.UserId
		}
		lines = append(lines, fmt.Sprintf("#%s <%s> %s", channel, sender, c.rewriter.ToHuman(post.Message)))
	}
	conn.Emit(c.sink, conn.CommandResultEvent{Server: c.Name(), Command: "search", Lines: lines})
}

func (c *Connection) listUsers(ctx context.Context) {
	users, err := c.fetchUsers(ctx)
	if err != nil {
		c.emitError("failed to list users: %v", err)
		return
	}
	lines := make([]string, 0, len(users))
	for _, u := range users {
		if u.DeleteAt != 0 {
			continue
		}
		lines = append(lines, "@"+u.Username)
	}
	sort.Strings(lines)
	conn.Emit(c.sink, conn.CommandResultEvent{Server: c.Name(), Command: "users", Lines: lines})
}
