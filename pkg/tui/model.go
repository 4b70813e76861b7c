// Copyright 2024-2026 Aiku AI

// Package tui is the terminal front end. It drains the shared event sink
// and shows one tab per channel behind a status tab.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/aiku/omnichat/pkg/conn"
	"github.com/aiku/omnichat/pkg/cursor"
)

type Options struct {
	Connections     []conn.Connection
	Events          <-chan conn.Event
	TimestampFormat string
	Log             zerolog.Logger
}

// eventMsg carries one sink event into Update.
type eventMsg struct{ evt conn.Event }

// sinkClosedMsg is delivered once the event channel is closed.
type sinkClosedMsg struct{}

type Model struct {
	ctx    context.Context
	log    zerolog.Logger
	events <-chan conn.Event
	conns  map[string]conn.Connection
	tsFmt  string

	tabs  *cursor.Cursor[*tab]
	input textinput.Model
	view  viewport.Model

	width, height int
	ready         bool
}

// New builds the model with the status tab first and one tab per channel
// the connections knew at startup, in connection order.
func New(ctx context.Context, opts Options) *Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	m := &Model{
		ctx:    ctx,
		log:    opts.Log.With().Str("component", "tui").Logger(),
		events: opts.Events,
		conns:  make(map[string]conn.Connection, len(opts.Connections)),
		tsFmt:  opts.TimestampFormat,
		tabs:   cursor.New(&tab{}),
		input:  input,
		view:   viewport.New(80, 20),
	}
	if m.tsFmt == "" {
		m.tsFmt = "15:04"
	}
	for _, c := range opts.Connections {
		if _, dup := m.conns[c.Name()]; dup {
			m.log.Warn().Str("name", c.Name()).Msg("Duplicate connection name, later one is not addressable by events")
			continue
		}
		m.conns[c.Name()] = c
		for _, ch := range c.Channels() {
			m.tabs.Append(&tab{server: c.Name(), channel: ch, conn: c, loading: true})
		}
	}
	return m
}

// Status appends an informational line to the status tab.
func (m *Model) Status(format string, args ...any) {
	m.tabs.First().add(infoStyle.Render(fmt.Sprintf(format, args...)))
}

// waitEvent blocks on the sink and re-arms after every event.
func waitEvent(ch <-chan conn.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return sinkClosedMsg{}
		}
		return eventMsg{evt: evt}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitEvent(m.events))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.handleEvent(msg.evt)
		m.refresh()
		return m, waitEvent(m.events)
	case sinkClosedMsg:
		m.Status("event stream closed")
		m.refresh()
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.view.Width = width
	// tab bar, separator and input
	m.view.Height = max(height-3, 1)
	m.input.Width = max(width-len(m.input.Prompt)-1, 1)
	m.ready = true
	m.refresh()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch key := msg.String(); key {
	case "ctrl+c":
		return tea.Quit, true
	case "ctrl+n":
		m.tabs.Advance()
		m.switched()
		return nil, true
	case "ctrl+p":
		m.tabs.Retreat()
		m.switched()
		return nil, true
	case "alt+1", "alt+2", "alt+3", "alt+4", "alt+5", "alt+6", "alt+7", "alt+8", "alt+9":
		if i := int(key[len(key)-1] - '1'); i < m.tabs.Len() {
			m.tabs.Seek(i)
			m.switched()
		}
		return nil, true
	case "pgup":
		m.view.SetYOffset(m.view.YOffset - m.view.Height/2)
		return nil, true
	case "pgdown":
		m.view.SetYOffset(m.view.YOffset + m.view.Height/2)
		return nil, true
	case "tab":
		m.autocomplete()
		return nil, true
	case "enter":
		cmd := m.submit(m.input.Value())
		m.input.Reset()
		return cmd, true
	}
	return nil, false
}

func (m *Model) switched() {
	m.tabs.Current().seen()
	m.refresh()
	m.view.GotoBottom()
}

// autocomplete replaces the last word of the input with its completion.
func (m *Model) autocomplete() {
	cur := m.tabs.Current()
	if cur.conn == nil {
		return
	}
	value := m.input.Value()
	start := strings.LastIndexByte(value, ' ') + 1
	word := value[start:]
	if word == "" {
		return
	}
	if done, ok := cur.conn.Autocomplete(word); ok {
		m.input.SetValue(value[:start] + done)
		m.input.CursorEnd()
	}
}

// submit sends text to the current channel or runs a /command. Remote calls
// run as commands so they never block the interface.
func (m *Model) submit(text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	cur := m.tabs.Current()
	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text[1:])
		if len(fields) == 0 {
			return nil
		}
		name, args := fields[0], fields[1:]
		if name == "quit" {
			return tea.Quit
		}
		if cur.conn == nil {
			m.Status("/%s needs a channel tab", name)
			m.refresh()
			return nil
		}
		m.log.Debug().Str("server", cur.server).Str("command", name).Msg("Running command")
		c := cur.conn
		return func() tea.Msg {
			c.HandleCommand(m.ctx, name, args)
			return nil
		}
	}
	if cur.conn == nil {
		m.Status("switch to a channel tab to send messages")
		m.refresh()
		return nil
	}
	c, channel := cur.conn, cur.channel
	return func() tea.Msg {
		c.SendChannelMessage(m.ctx, channel, text)
		return nil
	}
}

// tabFor finds the tab of a channel, appending one if the channel is new.
// Channels joined after startup get no history, so their tabs never load.
func (m *Model) tabFor(server, channel string) *tab {
	if i := m.tabs.IndexFunc(func(t *tab) bool { return t.is(server, channel) }); i >= 0 {
		t, _ := m.tabs.Get(i)
		return t
	}
	t := &tab{server: server, channel: channel, conn: m.conns[server]}
	m.tabs.Append(t)
	return t
}

func (m *Model) handleEvent(evt conn.Event) {
	switch evt := evt.(type) {
	case conn.MessageEvent:
		m.addMessage(evt.Message, true)
	case conn.MentionEvent:
		m.addMessage(evt.Message, true)
	case conn.HistoryMessageEvent:
		m.addMessage(evt.Message, false)
	case conn.HistoryLoadedEvent:
		m.tabFor(evt.Server, evt.Channel).loading = false
	case conn.ErrorEvent:
		m.log.Warn().Str("server", evt.Server).Msg(evt.Text)
		m.tabs.First().add(errorStyle.Render(fmt.Sprintf("[%s] %s", evt.Server, evt.Text)))
	case conn.CommandResultEvent:
		status := m.tabs.First()
		status.add(infoStyle.Render(fmt.Sprintf("[%s] %s: %d results", evt.Server, evt.Command, len(evt.Lines))))
		for _, line := range evt.Lines {
			status.add("  " + line)
		}
		if m.tabs.Current() != status {
			status.unread++
		}
	}
}

func (m *Model) addMessage(msg conn.Message, live bool) {
	t := m.tabFor(msg.Server, msg.Channel)
	t.add(m.formatMessage(msg))
	if !live || t == m.tabs.Current() {
		return
	}
	t.unread++
	if msg.IsMention {
		t.mention = true
	}
}

func (m *Model) formatMessage(msg conn.Message) string {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	contents := msg.Contents
	if msg.IsMention {
		contents = mentionStyle.Render(contents)
	}
	return fmt.Sprintf("%s %s %s",
		timestampStyle.Render(ts.Local().Format(m.tsFmt)),
		nickStyle(msg.Sender).Render("<"+msg.Sender+">"),
		contents,
	)
}

// refresh reloads the viewport from the current tab, following the bottom
// when it was already there.
func (m *Model) refresh() {
	follow := m.view.AtBottom()
	content := strings.Join(m.tabs.Current().lines, "\n")
	if m.width > 0 {
		content = wrapStyle.Width(m.width).Render(content)
	}
	m.view.SetContent(content)
	if follow {
		m.view.GotoBottom()
	}
}

// Run starts the program on the terminal and returns when the user quits or
// ctx is cancelled.
func Run(ctx context.Context, m *Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
