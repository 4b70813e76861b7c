// Copyright 2024-2026 Aiku AI

package matrix

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/omnichat/pkg/conn"
	"github.com/aiku/omnichat/pkg/connector/markdownfmt"
)

const sendAttempts = 2

// buildContent turns user text into message content: codes in the body,
// pills in the formatted body and the mentioned users in m.mentions.
// Matrix clients do not render :shortcode: so those are sent as emoji.
func (c *Connection) buildContent(text string) *event.MessageEventContent {
	parsed := markdownfmt.Parse(c.rewriter.ToPlatform(conn.ExpandEmoji(text)), c.pills...)
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          parsed.Body,
		Format:        parsed.Format,
		FormattedBody: parsed.FormattedBody,
		Mentions:      &event.Mentions{},
	}
	for _, userID := range parsed.Mentions {
		content.Mentions.UserIDs = append(content.Mentions.UserIDs, id.UserID(userID))
	}
	return content
}

func (c *Connection) send(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) (resp *mautrix.RespSendEvent, err error) {
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		err = c.api.Write(func(cl *mautrix.Client) (err error) {
			resp, err = cl.SendMessageEvent(ctx, roomID, event.EventMessage, content)
			return err
		})
		if err == nil || ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Stringer("room_id", roomID).Msg("Failed to send message")
	}
	return resp, err
}

// SendChannelMessage sends text to a room, retrying once. The sent event
// becomes the target of later delete and update commands.
func (c *Connection) SendChannelMessage(ctx context.Context, channel, text string) {
	channel = strings.TrimPrefix(channel, "#")
	roomID, ok := c.rooms.GetByName(channel)
	if !ok {
		c.emitError("cannot send: %v: #%s", conn.ErrUnknownChannel, channel)
		return
	}
	resp, err := c.send(ctx, roomID, c.buildContent(text))
	if err != nil {
		c.emitError("failed to send message to #%s: %v", channel, err)
		return
	}
	c.lastMu.Lock()
	c.lastSent = &sentEvent{room: roomID, event: resp.EventID}
	c.lastMu.Unlock()
}

// HandleCommand runs join, leave, delete, update, search or users. Unknown
// verbs and wrong argument counts are ignored.
func (c *Connection) HandleCommand(ctx context.Context, name string, args []string) {
	switch {
	case name == "join" && len(args) == 1:
		c.join(ctx, args[0])
	case name == "leave" && len(args) == 1:
		c.leave(ctx, args[0])
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

// resolveRoom accepts a channel name, a room ID or a room alias.
func (c *Connection) resolveRoom(ctx context.Context, target string) (id.RoomID, error) {
	if roomID, ok := c.rooms.GetByName(strings.TrimPrefix(target, "#")); ok {
		return roomID, nil
	}
	switch {
	case strings.HasPrefix(target, "!"):
		return id.RoomID(target), nil
	case strings.HasPrefix(target, "#") && strings.Contains(target, ":"):
		var resp *mautrix.RespAliasResolve
		err := c.api.Read(func(cl *mautrix.Client) (err error) {
			resp, err = cl.ResolveAlias(ctx, id.RoomAlias(target))
			return err
		})
		if err != nil {
			return "", fmt.Errorf("failed to resolve alias: %w", err)
		}
		return resp.RoomID, nil
	}
	return "", fmt.Errorf("%w: %s", conn.ErrUnknownChannel, target)
}

func (c *Connection) join(ctx context.Context, target string) {
	roomID, err := c.resolveRoom(ctx, target)
	if err == nil {
		err = c.api.Write(func(cl *mautrix.Client) error {
			_, err := cl.JoinRoomByID(ctx, roomID)
			return err
		})
	}
	if err != nil {
		c.emitError("failed to join %s: %v", target, err)
	}
}

func (c *Connection) leave(ctx context.Context, target string) {
	roomID, err := c.resolveRoom(ctx, target)
	if err == nil {
		err = c.api.Write(func(cl *mautrix.Client) error {
			_, err := cl.LeaveRoom(ctx, roomID)
			return err
		})
	}
	if err != nil {
		c.emitError("failed to leave %s: %v", target, err)
	}
}

func (c *Connection) last() *sentEvent {
	c.lastMu.Lock()
	defer c.lastMu.Unlock()
	return c.lastSent
}

func (c *Connection) deleteLast(ctx context.Context) {
	sent := c.last()
	if sent == nil {
		c.emitError("no sent message to delete")
		return
	}
	err := c.api.Write(func(cl *mautrix.Client) error {
		_, err := cl.RedactEvent(ctx, sent.room, sent.event)
		return err
	})
	if err != nil {
		c.emitError("failed to delete message: %v", err)
		return
	}
	c.lastMu.Lock()
	if c.lastSent == sent {
		c.lastSent = nil
	}
	c.lastMu.Unlock()
}

// updateLast sends an m.replace edit of the last sent message.
func (c *Connection) updateLast(ctx context.Context, text string) {
	sent := c.last()
	if sent == nil {
		c.emitError("no sent message to update")
		return
	}
	content := c.buildContent(text)
	newContent := *content
	content.NewContent = &newContent
	content.RelatesTo = &event.RelatesTo{Type: event.RelReplace, EventID: sent.event}
	content.Body = "* " + content.Body
	if content.FormattedBody != "" {
		content.FormattedBody = "* " + content.FormattedBody
	}
	err := c.api.Write(func(cl *mautrix.Client) error {
		_, err := cl.SendMessageEvent(ctx, sent.room, event.EventMessage, content)
		return err
	})
	if err != nil {
		c.emitError("failed to update message: %v", err)
	}
}

type searchRequest struct {
	SearchCategories searchCategories `json:"search_categories"`
}

type searchCategories struct {
	RoomEvents roomEventsCriteria `json:"room_events"`
}

type roomEventsCriteria struct {
	SearchTerm string       `json:"search_term"`
	Keys       []string     `json:"keys,omitempty"`
	OrderBy    string       `json:"order_by,omitempty"`
	Filter     *searchRooms `json:"filter,omitempty"`
}

type searchRooms struct {
	Rooms []id.RoomID `json:"rooms"`
}

type searchResponse struct {
	SearchCategories struct {
		RoomEvents struct {
			Results []struct {
				Result *event.Event `json:"result"`
			} `json:"results"`
		} `json:"room_events"`
	} `json:"search_categories"`
}

// search runs a server-side search over the connection's rooms.
func (c *Connection) search(ctx context.Context, terms string) {
	req := &searchRequest{SearchCategories: searchCategories{RoomEvents: roomEventsCriteria{
		SearchTerm: terms,
		Keys:       []string{"content.body"},
		OrderBy:    "recent",
		Filter:     &searchRooms{Rooms: c.rooms.IDs()},
	}}}
	var resp searchResponse
	err := c.api.Read(func(cl *mautrix.Client) error {
		_, err := cl.MakeRequest(ctx, "POST", cl.BuildClientURL("v3", "search"), req, &resp)
		return err
	})
	if err != nil {
		c.emitError("search failed: %v", err)
		return
	}
	events := make([]*event.Event, 0, len(resp.SearchCategories.RoomEvents.Results))
	for _, r := range resp.SearchCategories.RoomEvents.Results {
		if r.Result != nil && isMessage(r.Result) {
			events = append(events, r.Result)
		}
	}
	sortByTimestamp(events)
	lines := make([]string, 0, len(events))
	for _, evt := range events {
		content, err := messageContent(evt)
		if err != nil || !isUserMessage(content) {
			continue
		}
		channel, ok := c.rooms.GetByID(evt.RoomID)
		if !ok {
			channel = string(evt.RoomID)
		}
		sender, ok := c.users.GetByID(evt.Sender)
		if !ok {
			sender = string(evt.Sender)
		}
		lines = append(lines, fmt.Sprintf("#%s <%s> %s", channel, sender, c.rewriter.ToHuman(render(content))))
	}
	conn.Emit(c.sink, conn.CommandResultEvent{Server: c.Name(), Command: "search", Lines: lines})
}

func (c *Connection) listUsers(ctx context.Context) {
	members, err := c.fetchMembers(ctx)
	if err != nil {
		c.emitError("failed to list users: %v", err)
		return
	}
	_, names := memberNames(members)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, "@"+name)
	}
	sort.Strings(lines)
	conn.Emit(c.sink, conn.CommandResultEvent{Server: c.Name(), Command: "users", Lines: lines})
}
