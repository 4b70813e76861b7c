// Copyright 2024-2026 Aiku AI

package conn

import "time"

// Message is a chat message in the shared vocabulary. Contents has already
// been rewritten to human syntax by the adapter that produced it.
type Message struct {
	Server    string
	Channel   string
	Sender    string
	Contents  string
	IsMention bool
	Timestamp time.Time
}

// Event is a closed set of values that adapters publish to a Sink. Only the
// types in this file implement it; consumers switch over them.
type Event interface {
	isEvent()
}

// MessageEvent is a live message.
type MessageEvent struct {
	Message
}

// MentionEvent is a live message that mentions the session's user. It is
// sent instead of a MessageEvent, never in addition to one.
type MentionEvent struct {
	Message
}

// HistoryMessageEvent is a backfilled message.
type HistoryMessageEvent struct {
	Message
}

// HistoryLoadedEvent marks the end of backfill for one channel. No
// HistoryMessageEvent for that channel follows it.
type HistoryLoadedEvent struct {
	Server  string
	Channel string
}

// ErrorEvent is a non-fatal diagnostic.
type ErrorEvent struct {
	Server string
	Text   string
}

// CommandResultEvent carries the output of a read-only command such as
// search or users.
type CommandResultEvent struct {
	Server  string
	Command string
	Lines   []string
}

func (MessageEvent) isEvent()        {}
func (MentionEvent) isEvent()        {}
func (HistoryMessageEvent) isEvent() {}
func (HistoryLoadedEvent) isEvent()  {}
func (ErrorEvent) isEvent()          {}
func (CommandResultEvent) isEvent()  {}

// Live wraps a live message as a MentionEvent or a MessageEvent depending on
// msg.IsMention.
func Live(msg Message) Event {
	if msg.IsMention {
		return MentionEvent{Message: msg}
	}
	return MessageEvent{Message: msg}
}
