// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/omnichat/pkg/bimap"
	"github.com/aiku/omnichat/pkg/conn"
	"github.com/aiku/omnichat/pkg/connector/markdownfmt"
	"github.com/aiku/omnichat/pkg/connector/matrixfmt"
	"github.com/aiku/omnichat/pkg/rewrite"
)

const backendName = "matrix"

type sentEvent struct {
	room  id.RoomID
	event id.EventID
}

// Connection is a session with one Matrix account.
type Connection struct {
	cfg  Config
	sink *conn.Sink
	log  zerolog.Logger

	api     *conn.Handle[*mautrix.Client]
	runSync func(ctx context.Context) error

	me        id.UserID
	myMention string
	// rooms maps room ID to channel name.
	rooms   *bimap.BiMap[id.RoomID, string]
	aliases map[id.RoomID]id.RoomAlias
	// users maps user ID to display name.
	users    *bimap.BiMap[id.UserID, string]
	rewriter *rewrite.Rewriter
	pills    []markdownfmt.Pill

	lastMu   sync.Mutex
	lastSent *sentEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ conn.Connection = (*Connection)(nil)

// New authenticates, loads rooms and members and registers the sync
// handler. History loading and the sync loop continue in the background
// until Close. Any failure is returned as a *conn.SetupError.
func New(ctx context.Context, cfg Config, sink *conn.Sink, log zerolog.Logger) (*Connection, error) {
	if err := cfg.PostProcess(); err != nil {
		return nil, conn.NewSetupError(backendName, "config", err)
	}
	c, err := newConnection(cfg, sink, log)
	if err != nil {
		return nil, conn.NewSetupError(backendName, "config", err)
	}
	if err = c.setup(ctx); err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}

func newConnection(cfg Config, sink *conn.Sink, log zerolog.Logger) (*Connection, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, "", cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	l := log.With().Str("component", "matrix").Str("homeserver", cfg.Homeserver).Logger()
	client.Log = l
	c := &Connection{
		cfg:  cfg,
		sink: sink,
		log:  l,
		api:  conn.NewHandle(client),
	}
	c.runSync = func(ctx context.Context) error {
		return c.api.Read(func(cl *mautrix.Client) error {
			return cl.SyncWithContext(ctx)
		})
	}
	return c, nil
}

func (c *Connection) setup(ctx context.Context) error {
	var whoami *mautrix.RespWhoami
	err := c.api.Read(func(cl *mautrix.Client) (err error) {
		whoami, err = cl.Whoami(ctx)
		return err
	})
	if err != nil {
		return conn.NewSetupError(backendName, "auth", fmt.Errorf("failed to verify Matrix session: %w", err))
	}
	if whoami.UserID == "" {
		return conn.NewSetupError(backendName, "auth", fmt.Errorf("%w: user_id", conn.ErrMissingField))
	}
	c.me = whoami.UserID
	_ = c.api.Write(func(cl *mautrix.Client) error {
		cl.UserID = whoami.UserID
		return nil
	})
	c.log = c.log.With().Stringer("user_id", c.me).Logger()
	c.log.Info().Msg("Authenticated")

	if err = c.loadRooms(ctx); err != nil {
		return conn.NewSetupError(backendName, "rooms", err)
	}
	if err = c.loadUsers(ctx); err != nil {
		return conn.NewSetupError(backendName, "users", err)
	}
	myName, ok := c.users.GetByID(c.me)
	if !ok {
		myName = localpart(c.me)
	}
	c.myMention = "@" + myName

	userPairs := make([]rewrite.Pair, 0, c.users.Len())
	c.pills = make([]markdownfmt.Pill, 0, c.users.Len()+c.rooms.Len())
	c.users.Each(func(userID id.UserID, name string) {
		userPairs = append(userPairs, rewrite.UserPair(string(userID), name))
		c.pills = append(c.pills, markdownfmt.Pill{ID: string(userID), Display: name})
	})
	// Room IDs come before aliases so that #name is sent as the room ID.
	roomPairs := make([]rewrite.Pair, 0, 2*c.rooms.Len())
	var aliasPairs []rewrite.Pair
	c.rooms.Each(func(roomID id.RoomID, name string) {
		roomPairs = append(roomPairs, rewrite.ChannelPair(string(roomID), name))
		c.pills = append(c.pills, markdownfmt.Pill{ID: string(roomID), Display: "#" + name})
		if alias, ok := c.aliases[roomID]; ok {
			aliasPairs = append(aliasPairs, rewrite.ChannelPair(string(alias), name))
		}
	})
	c.rewriter = rewrite.New(rewrite.Options{}, userPairs, roomPairs, aliasPairs)

	var syncer mautrix.ExtensibleSyncer
	_ = c.api.Read(func(cl *mautrix.Client) error {
		syncer, _ = cl.Syncer.(mautrix.ExtensibleSyncer)
		return nil
	})
	if syncer == nil {
		return conn.NewSetupError(backendName, "stream", errors.New("client syncer does not accept event handlers"))
	}
	// The first sync repeats recent messages that history already loaded.
	_ = c.api.Read(func(cl *mautrix.Client) error {
		syncer.OnSync(cl.DontProcessOldEvents)
		return nil
	})
	syncer.OnEventType(event.EventMessage, c.onMessage)

	c.log.Info().
		Int("rooms", c.rooms.Len()).
		Int("users", c.users.Len()).
		Msg("Connected")
	return nil
}

// canPost reports whether the session may send messages in a room. Rooms
// whose power levels cannot be read are assumed writable.
func (c *Connection) canPost(ctx context.Context, roomID id.RoomID) bool {
	var pl event.PowerLevelsEventContent
	err := c.api.Read(func(cl *mautrix.Client) error {
		return cl.StateEvent(ctx, roomID, event.StatePowerLevels, "", &pl)
	})
	if err != nil {
		c.log.Debug().Err(err).Stringer("room_id", roomID).Msg("Power levels unavailable")
		return true
	}
	return pl.GetUserLevel(c.me) >= pl.GetEventLevel(event.EventMessage)
}

// roomName returns m.room.name, else the canonical alias without its sigil,
// else the room ID.
func (c *Connection) roomName(ctx context.Context, roomID id.RoomID) (string, id.RoomAlias) {
	var nameContent event.RoomNameEventContent
	_ = c.api.Read(func(cl *mautrix.Client) error {
		return cl.StateEvent(ctx, roomID, event.StateRoomName, "", &nameContent)
	})
	var aliasContent event.CanonicalAliasEventContent
	_ = c.api.Read(func(cl *mautrix.Client) error {
		return cl.StateEvent(ctx, roomID, event.StateCanonicalAlias, "", &aliasContent)
	})
	alias := aliasContent.Alias
	switch {
	case strings.TrimSpace(nameContent.Name) != "":
		return strings.TrimSpace(nameContent.Name), alias
	case alias != "":
		return strings.TrimPrefix(string(alias), "#"), alias
	default:
		return string(roomID), alias
	}
}

func (c *Connection) loadRooms(ctx context.Context) error {
	var joined *mautrix.RespJoinedRooms
	err := c.api.Read(func(cl *mautrix.Client) (err error) {
		joined, err = cl.JoinedRooms(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get joined rooms: %w", err)
	}
	roomIDs := slices.Clone(joined.JoinedRooms)
	slices.Sort(roomIDs)

	var kept []id.RoomID
	var names []string
	c.aliases = make(map[id.RoomID]id.RoomAlias)
	for _, roomID := range roomIDs {
		if roomID == "" {
			return fmt.Errorf("%w: room id", conn.ErrMissingField)
		}
		if !c.canPost(ctx, roomID) {
			c.log.Debug().Stringer("room_id", roomID).Msg("Skipping read-only room")
			continue
		}
		name, alias := c.roomName(ctx, roomID)
		if alias != "" {
			c.aliases[roomID] = alias
		}
		kept = append(kept, roomID)
		names = append(names, name)
	}
	counts := make(map[string]int, len(names))
	for _, name := range names {
		counts[name]++
	}
	for i, name := range names {
		if counts[name] > 1 {
			names[i] = fmt.Sprintf("%s (%s)", name, kept[i])
		}
	}
	c.rooms, err = bimap.New(names, kept)
	return err
}

// fetchMembers returns the union of joined members of all channels with the
// first non-empty display name seen for each.
func (c *Connection) fetchMembers(ctx context.Context) (map[id.UserID]string, error) {
	members := make(map[id.UserID]string)
	for _, roomID := range c.rooms.IDs() {
		var resp *mautrix.RespJoinedMembers
		err := c.api.Read(func(cl *mautrix.Client) (err error) {
			resp, err = cl.JoinedMembers(ctx, roomID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get members of %s: %w", roomID, err)
		}
		for userID, member := range resp.Joined {
			if userID == "" {
				return nil, fmt.Errorf("%w: member user id", conn.ErrMissingField)
			}
			if members[userID] == "" {
				members[userID] = strings.TrimSpace(member.DisplayName)
			}
		}
	}
	return members, nil
}

// memberNames picks a unique name per user, sorted by user ID.
func memberNames(members map[id.UserID]string) ([]id.UserID, []string) {
	ids := make([]id.UserID, 0, len(members))
	for userID := range members {
		ids = append(ids, userID)
	}
	slices.Sort(ids)
	names := make([]string, len(ids))
	counts := make(map[string]int, len(ids))
	for i, userID := range ids {
		names[i] = members[userID]
		if names[i] == "" {
			names[i] = localpart(userID)
		}
		counts[names[i]]++
	}
	for i, userID := range ids {
		if counts[names[i]] > 1 {
			names[i] = strings.TrimPrefix(string(userID), "@")
		}
	}
	return ids, names
}

func (c *Connection) loadUsers(ctx context.Context) error {
	members, err := c.fetchMembers(ctx)
	if err != nil {
		return err
	}
	ids, names := memberNames(members)
	c.users, err = bimap.New(names, ids)
	return err
}

func localpart(userID id.UserID) string {
	local, _, _ := strings.Cut(strings.TrimPrefix(string(userID), "@"), ":")
	return local
}

func (c *Connection) start() {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.rooms.Each(func(roomID id.RoomID, name string) {
		c.wg.Add(1)
		go c.loadHistory(c.ctx, roomID, name)
	})
	c.wg.Add(1)
	go c.sync(c.ctx)
}

// Close stops history loading and the sync loop and waits for them to exit.
func (c *Connection) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Connection) Name() string {
	return c.cfg.Name
}

func (c *Connection) Channels() []string {
	names := c.rooms.Names()
	slices.Sort(names)
	return names
}

func (c *Connection) Autocomplete(partial string) (string, bool) {
	return conn.Complete(partial, c.Channels(), c.users.Names())
}

func (c *Connection) emitError(format string, args ...any) bool {
	text := fmt.Sprintf(format, args...)
	c.log.Warn().Msg(text)
	return conn.Emit(c.sink, conn.ErrorEvent{Server: c.Name(), Text: text})
}

func messageContent(evt *event.Event) (*event.MessageEventContent, error) {
	if content, ok := evt.Content.Parsed.(*event.MessageEventContent); ok {
		return content, nil
	}
	var content event.MessageEventContent
	if err := json.Unmarshal(evt.Content.VeryRaw, &content); err != nil {
		return nil, fmt.Errorf("failed to parse message content: %w", err)
	}
	return &content, nil
}

func isMessage(evt *event.Event) bool {
	return evt.Type.Type == event.EventMessage.Type
}

// isUserMessage rejects redacted messages and edits. Edits are not new
// messages.
func isUserMessage(content *event.MessageEventContent) bool {
	if content.MsgType == "" {
		return false
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return false
	}
	return true
}

// render returns the markdown text of a message with platform codes intact.
func render(content *event.MessageEventContent) string {
	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
		return matrixfmt.Parse(content)
	case event.MsgEmote:
		return "* " + matrixfmt.Parse(content)
	default:
		return fmt.Sprintf("[%s] %s", content.MsgType, content.Body)
	}
}

// toMessage converts a room message. Messages from unknown users keep the
// raw user ID as sender and produce an ErrorEvent. ok is false if the sink
// is closed.
func (c *Connection) toMessage(evt *event.Event, content *event.MessageEventContent, channel string) (msg conn.Message, ok bool) {
	sender, known := c.users.GetByID(evt.Sender)
	if !known {
		sender = string(evt.Sender)
		if !c.emitError("unknown user %s in #%s", evt.Sender, channel) {
			return msg, false
		}
	}
	contents := c.rewriter.ToHuman(render(content))
	return conn.Message{
		Server:    c.Name(),
		Channel:   channel,
		Sender:    sender,
		Contents:  contents,
		IsMention: c.rewriter.Mentions(contents, c.myMention),
		Timestamp: time.UnixMilli(evt.Timestamp),
	}, true
}
