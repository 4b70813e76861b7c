// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package matrix

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"

	"github.com/aiku/omnichat/pkg/conn"
)

const clientPrefix = "/_matrix/client/v3/"

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeHS wraps an httptest.Server simulating the parts of the Matrix
// client-server API the adapter uses.
type fakeHS struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall
	sent  int

	UserID string
	Rooms  []string
	// State maps room ID and state event type to content.
	State map[string]map[string]any
	// Members maps room ID to user ID to display name.
	Members map[string]map[string]string
	// History maps room ID to the /messages chunk, newest first.
	History map[string][]map[string]any
	// Directory maps room alias to room ID.
	Directory     map[string]string
	SearchResults []map[string]any
	// FailEndpoints makes requests matching a "METHOD path-substring" key
	// return 500. The value is how many times to fail, or -1 for always.
	FailEndpoints map[string]int
}

func newFakeHS() *fakeHS {
	f := &fakeHS{
		UserID:        "@me:hs",
		State:         make(map[string]map[string]any),
		Members:       make(map[string]map[string]string),
		History:       make(map[string][]map[string]any),
		Directory:     make(map[string]string),
		FailEndpoints: make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeHS) Close() {
	f.Server.Close()
}

func (f *fakeHS) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeHS) CallCount(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && strings.Contains(c.Path, path) {
			n++
		}
	}
	return n
}

// SentBodies returns the decoded bodies of message sends, in order.
func (f *fakeHS) SentBodies(t *testing.T) []event.MessageEventContent {
	t.Helper()
	var out []event.MessageEventContent
	for _, c := range f.Calls() {
		if c.Method != "PUT" || !strings.Contains(c.Path, "/send/m.room.message/") {
			continue
		}
		var content event.MessageEventContent
		if err := json.Unmarshal([]byte(c.Body), &content); err != nil {
			t.Fatalf("decode sent content: %v", err)
		}
		out = append(out, content)
	}
	return out
}

func (f *fakeHS) setState(roomID, eventType string, content any) {
	if f.State[roomID] == nil {
		f.State[roomID] = make(map[string]any)
	}
	f.State[roomID][eventType] = content
}

func (f *fakeHS) shouldFail(method, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, n := range f.FailEndpoints {
		m, sub, _ := strings.Cut(key, " ")
		if m != method || !strings.Contains(path, sub) || n == 0 {
			continue
		}
		if n > 0 {
			f.FailEndpoints[key] = n - 1
		}
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func matrixError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"errcode": code, "error": msg})
}

func (f *fakeHS) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer test-token" {
		matrixError(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "unknown token")
		return
	}
	if f.shouldFail(r.Method, r.URL.Path) {
		matrixError(w, http.StatusInternalServerError, "M_UNKNOWN", "fake error")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, clientPrefix), "/")
	parts := strings.Split(path, "/")

	switch {
	case r.Method == "GET" && path == "account/whoami":
		writeJSON(w, http.StatusOK, map[string]string{"user_id": f.UserID, "device_id": "DEVICE"})

	case r.Method == "GET" && path == "joined_rooms":
		rooms := f.Rooms
		if rooms == nil {
			rooms = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"joined_rooms": rooms})

	// GET rooms/{room}/state/{type}/{key}
	case r.Method == "GET" && len(parts) >= 4 && parts[0] == "rooms" && parts[2] == "state":
		if content, ok := f.State[parts[1]][parts[3]]; ok {
			writeJSON(w, http.StatusOK, content)
			return
		}
		matrixError(w, http.StatusNotFound, "M_NOT_FOUND", "no such state")

	case r.Method == "GET" && len(parts) == 3 && parts[0] == "rooms" && parts[2] == "joined_members":
		joined := make(map[string]any)
		for userID, name := range f.Members[parts[1]] {
			member := map[string]string{}
			if name != "" {
				member["display_name"] = name
			}
			joined[userID] = member
		}
		writeJSON(w, http.StatusOK, map[string]any{"joined": joined})

	case r.Method == "GET" && len(parts) == 3 && parts[0] == "rooms" && parts[2] == "messages":
		chunk := f.History[parts[1]]
		if chunk == nil {
			chunk = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"chunk": chunk, "start": "s0", "end": "s1"})

	// PUT rooms/{room}/send/{type}/{txn}
	case r.Method == "PUT" && len(parts) == 5 && parts[0] == "rooms" && parts[2] == "send":
		f.mu.Lock()
		f.sent++
		n := f.sent
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$sent-" + strconv.Itoa(n)})

	// PUT rooms/{room}/redact/{event}/{txn}
	case r.Method == "PUT" && len(parts) >= 4 && parts[0] == "rooms" && parts[2] == "redact":
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$redaction"})

	case r.Method == "POST" && len(parts) == 3 && parts[0] == "rooms" && parts[2] == "join":
		writeJSON(w, http.StatusOK, map[string]string{"room_id": parts[1]})

	case r.Method == "POST" && len(parts) == 2 && parts[0] == "join":
		writeJSON(w, http.StatusOK, map[string]string{"room_id": parts[1]})

	case r.Method == "POST" && len(parts) == 3 && parts[0] == "rooms" && parts[2] == "leave":
		writeJSON(w, http.StatusOK, map[string]any{})

	case r.Method == "GET" && len(parts) == 3 && parts[0] == "directory" && parts[1] == "room":
		if roomID, ok := f.Directory[parts[2]]; ok {
			writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "servers": []string{"hs"}})
			return
		}
		matrixError(w, http.StatusNotFound, "M_NOT_FOUND", "room alias not found")

	case r.Method == "POST" && path == "search":
		results := make([]map[string]any, 0, len(f.SearchResults))
		for _, evt := range f.SearchResults {
			results = append(results, map[string]any{"rank": 1, "result": evt})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"search_categories": map[string]any{
				"room_events": map[string]any{"results": results, "count": len(results)},
			},
		})

	default:
		matrixError(w, http.StatusNotFound, "M_UNRECOGNIZED", "not found: "+r.URL.Path)
	}
}

// textEvent builds a raw m.room.message event as the server sends it.
func textEvent(eventID, roomID, sender, body string, ts int64) map[string]any {
	return map[string]any{
		"type":             "m.room.message",
		"event_id":         eventID,
		"room_id":          roomID,
		"sender":           sender,
		"origin_server_ts": ts,
		"content":          map[string]any{"msgtype": "m.text", "body": body},
	}
}

func htmlEvent(eventID, roomID, sender, body, formatted string, ts int64) map[string]any {
	evt := textEvent(eventID, roomID, sender, body, ts)
	evt["content"] = map[string]any{
		"msgtype":        "m.text",
		"body":           body,
		"format":         "org.matrix.custom.html",
		"formatted_body": formatted,
	}
	return evt
}

// toEvent decodes a raw event the way the sync loop receives it.
func toEvent(t *testing.T, raw map[string]any) *event.Event {
	t.Helper()
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var evt event.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return &evt
}

// recent is a timestamp a little before now, as sent by a homeserver whose
// clock lags the client's.
func recent() int64 {
	return time.Now().Add(-2 * time.Second).UnixMilli()
}

func testConfig(homeserver string) Config {
	cfg := Config{Homeserver: homeserver, Token: "test-token", Name: "Example HS"}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	return cfg
}

// openTest runs setup and start against the fake homeserver. Events written
// to the returned channel are delivered as if they came from /sync.
func openTest(t *testing.T, f *fakeHS, cfg Config) (*Connection, chan<- *event.Event, *conn.Sink) {
	t.Helper()
	sink := conn.NewSink()
	t.Cleanup(sink.Close)
	live := make(chan *event.Event, 16)
	c, err := newConnection(cfg, sink, zerolog.Nop())
	if err != nil {
		t.Fatalf("newConnection: %v", err)
	}
	c.runSync = func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt := <-live:
				c.onMessage(ctx, evt)
			}
		}
	}
	if err := c.setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	c.start()
	t.Cleanup(c.Close)
	return c, live, sink
}

func nextEvent(t *testing.T, sink *conn.Sink) conn.Event {
	t.Helper()
	select {
	case evt := <-sink.Events():
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

// collectUntil reads events until stop returns true for one of them.
func collectUntil(t *testing.T, sink *conn.Sink, stop func(conn.Event) bool) []conn.Event {
	t.Helper()
	var events []conn.Event
	for {
		evt := nextEvent(t, sink)
		events = append(events, evt)
		if stop(evt) {
			return events
		}
	}
}

// drainHistory reads events until every room has reported HistoryLoaded.
func drainHistory(t *testing.T, sink *conn.Sink, rooms int) []conn.Event {
	t.Helper()
	loaded := 0
	return collectUntil(t, sink, func(evt conn.Event) bool {
		if _, ok := evt.(conn.HistoryLoadedEvent); ok {
			loaded++
		}
		return loaded == rooms
	})
}

func expectNoEvent(t *testing.T, sink *conn.Sink) {
	t.Helper()
	select {
	case evt := <-sink.Events():
		t.Fatalf("unexpected event %#v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}
