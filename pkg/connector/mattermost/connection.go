// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/omnichat/pkg/bimap"
	"github.com/aiku/omnichat/pkg/conn"
	"github.com/aiku/omnichat/pkg/rewrite"
)

const (
	backendName  = "mattermost"
	usersPerPage = 200
)

// Connection is a session with one Mattermost team.
type Connection struct {
	cfg  Config
	sink *conn.Sink
	log  zerolog.Logger

	api        *conn.Handle[*model.Client4]
	dialStream func(serverURL, token string) (eventStream, error)

	streamMu sync.Mutex
	stream   eventStream

	me        *model.User
	myMention string
	team      *model.Team
	// channels maps channel ID to channel URL name.
	channels *bimap.BiMap[string, string]
	// users maps user ID to username.
	users    *bimap.BiMap[string, string]
	senders  map[string]string
	rewriter *rewrite.Rewriter

	lastMu   sync.Mutex
	lastPost *model.Post

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ conn.Connection = (*Connection)(nil)

// New authenticates, resolves the team, loads channels and users and opens
// the WebSocket. History loading and live ingestion continue in the
// background until Close. Any failure is returned as a *conn.SetupError.
func New(ctx context.Context, cfg Config, sink *conn.Sink, log zerolog.Logger) (*Connection, error) {
	if err := cfg.PostProcess(); err != nil {
		return nil, conn.NewSetupError(backendName, "config", err)
	}
	c := newConnection(cfg, sink, log)
	if err := c.setup(ctx); err != nil {
		return nil, err
	}
	c.start()
	return c, nil
}

func newConnection(cfg Config, sink *conn.Sink, log zerolog.Logger) *Connection {
	client := model.NewAPIv4Client(cfg.ServerURL)
	client.SetToken(cfg.Token)
	return &Connection{
		cfg:        cfg,
		sink:       sink,
		log:        log.With().Str("component", "mattermost").Str("server_url", cfg.ServerURL).Logger(),
		api:        conn.NewHandle(client),
		dialStream: dialWebSocket,
	}
}

func (c *Connection) setup(ctx context.Context) error {
	var me *model.User
	err := c.api.Read(func(cl *model.Client4) (err error) {
		me, _, err = cl.GetMe(ctx, "")
		return err
	})
	if err != nil {
		return conn.NewSetupError(backendName, "auth", fmt.Errorf("failed to verify Mattermost session: %w", err))
	}
	if me.Id == "" || me.Username == "" {
		return conn.NewSetupError(backendName, "auth", fmt.Errorf("%w: user id or username", conn.ErrMissingField))
	}
	c.me = me
	c.myMention = "@" + me.Username
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")

	if c.team, err = c.findTeam(ctx); err != nil {
		return conn.NewSetupError(backendName, "team", err)
	}
	c.log = c.log.With().Str("team", c.team.Name).Logger()

	if err = c.loadChannels(ctx); err != nil {
		return conn.NewSetupError(backendName, "channels", err)
	}
	if err = c.loadUsers(ctx); err != nil {
		return conn.NewSetupError(backendName, "users", err)
	}

	channelPairs := make([]rewrite.Pair, 0, c.channels.Len())
	c.channels.Each(func(_, name string) {
		channelPairs = append(channelPairs, rewrite.ChannelPair("~"+name, name))
	})
	// Mattermost already writes mentions as @username, so these pairs are
	// identities and the rewriter drops them.
	userPairs := make([]rewrite.Pair, 0, c.users.Len())
	c.users.Each(func(_, name string) {
		userPairs = append(userPairs, rewrite.UserPair("@"+name, name))
	})
	c.rewriter = rewrite.New(rewrite.Options{}, channelPairs, userPairs)

	stream, err := c.dialStream(c.cfg.ServerURL, c.cfg.Token)
	if err != nil {
		return conn.NewSetupError(backendName, "stream", err)
	}
	c.stream = stream
	c.log.Info().
		Int("channels", c.channels.Len()).
		Int("users", c.users.Len()).
		Msg("Connected")
	return nil
}

func (c *Connection) findTeam(ctx context.Context) (*model.Team, error) {
	var teams []*model.Team
	err := c.api.Read(func(cl *model.Client4) (err error) {
		teams, _, err = cl.GetTeamsForUser(ctx, c.me.Id, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get teams: %w", err)
	}
	for _, team := range teams {
		if c.cfg.Team == "" || team.DisplayName == c.cfg.Team || team.Name == c.cfg.Team {
			if team.Id == "" {
				return nil, fmt.Errorf("%w: team id", conn.ErrMissingField)
			}
			return team, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", conn.ErrNoMatchingServer, c.cfg.Team)
}

// isAccessible keeps live public and private team channels. Direct and group
// messages are not part of a team.
func isAccessible(ch *model.Channel) bool {
	return ch.DeleteAt == 0 && (ch.Type == model.ChannelTypeOpen || ch.Type == model.ChannelTypePrivate)
}

func (c *Connection) loadChannels(ctx context.Context) error {
	var channels []*model.Channel
	err := c.api.Read(func(cl *model.Client4) (err error) {
		channels, _, err = cl.GetChannelsForTeamForUser(ctx, c.team.Id, c.me.Id, false, "")
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get channels: %w", err)
	}
	var ids, names []string
	for _, ch := range channels {
		if !isAccessible(ch) {
			continue
		}
		if ch.Id == "" || ch.Name == "" {
			return fmt.Errorf("%w: channel id or name", conn.ErrMissingField)
		}
		ids = append(ids, ch.Id)
		names = append(names, ch.Name)
	}
	c.channels, err = bimap.New(names, ids)
	return err
}

func (c *Connection) fetchUsers(ctx context.Context) ([]*model.User, error) {
	var all []*model.User
	for page := 0; ; page++ {
		var users []*model.User
		err := c.api.Read(func(cl *model.Client4) (err error) {
			users, _, err = cl.GetUsersInTeam(ctx, c.team.Id, page, usersPerPage, "")
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get users in team: %w", err)
		}
		all = append(all, users...)
		if len(users) < usersPerPage {
			return all, nil
		}
	}
}

func (c *Connection) loadUsers(ctx context.Context) error {
	users, err := c.fetchUsers(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(users))
	names := make([]string, 0, len(users))
	c.senders = make(map[string]string, len(users))
	for _, u := range users {
		if u.Id == "" || u.Username == "" {
			return fmt.Errorf("%w: user id or username", conn.ErrMissingField)
		}
		ids = append(ids, u.Id)
		names = append(names, u.Username)
		c.senders[u.Id] = c.cfg.FormatDisplayname(DisplaynameParams{
			Username:  u.Username,
			Nickname:  u.Nickname,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		})
	}
	c.users, err = bimap.New(names, ids)
	return err
}

func (c *Connection) start() {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.channels.Each(func(id, name string) {
		c.wg.Add(1)
		go c.loadHistory(c.ctx, id, name)
	})
	c.wg.Add(1)
	go c.listen(c.ctx)
}

// Close stops history loading and live ingestion and waits for them to exit.
func (c *Connection) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.streamMu.Lock()
	if c.stream != nil {
		c.stream.Close()
	}
	c.streamMu.Unlock()
	c.wg.Wait()
}

// Name returns the team display name.
func (c *Connection) Name() string {
	if c.team.DisplayName != "" {
		return c.team.DisplayName
	}
	return c.team.Name
}

func (c *Connection) Channels() []string {
	names := c.channels.Names()
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

// toMessage converts a user post. Posts from unknown users keep the raw user
// ID as sender and produce an ErrorEvent. ok is false if the sink is closed.
func (c *Connection) toMessage(post *model.Post, channel string) (msg conn.Message, ok bool) {
	sender, known := c.senders[post.UserId]
	if !known {
		sender = post.UserId
		if !c.emitError("unknown user %s in #%s", post.UserId, channel) {
			return msg, false
		}
	}
	contents := c.rewriter.ToHuman(post.Message)
	return conn.Message{
		Server:    c.Name(),
		Channel:   channel,
		Sender:    sender,
		Contents:  contents,
		IsMention: c.rewriter.Mentions(contents, c.myMention),
		Timestamp: time.UnixMilli(post.CreateAt),
	}, true
}

func isUserPost(post *model.Post) bool {
	return post.Type == "" || post.Type == model.PostTypeDefault
}

func trimChannelSigil(name string) string {
	return strings.TrimPrefix(name, "#")
}
