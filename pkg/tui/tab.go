// Copyright 2024-2026 Aiku AI

package tui

import (
	"github.com/mattn/go-runewidth"

	"github.com/aiku/omnichat/pkg/conn"
)

const (
	statusLabel   = "status"
	maxLabelWidth = 24
	// maxTabLines bounds the scrollback kept per tab.
	maxTabLines = 5000
)

// tab is one pane: the status tab has no connection, every other tab is one
// channel of one connection.
type tab struct {
	server  string
	channel string
	conn    conn.Connection

	lines   []string
	loading bool
	unread  int
	mention bool
}

func (t *tab) isStatus() bool {
	return t.conn == nil && t.channel == ""
}

func (t *tab) is(server, channel string) bool {
	return t.server == server && t.channel == channel
}

func (t *tab) add(line string) {
	t.lines = append(t.lines, line)
	if over := len(t.lines) - maxTabLines; over > 0 {
		t.lines = t.lines[over:]
	}
}

// label is the text shown in the tab bar, without markers.
func (t *tab) label() string {
	if t.isStatus() {
		return statusLabel
	}
	return runewidth.Truncate(t.server+" #"+t.channel, maxLabelWidth, "…")
}

func (t *tab) seen() {
	t.unread = 0
	t.mention = false
}
