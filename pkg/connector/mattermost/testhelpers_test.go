// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

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

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/omnichat/pkg/conn"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM wraps an httptest.Server simulating the parts of the Mattermost
// API the adapter uses. It records calls and serves canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall

	Me       *model.User
	Teams    []*model.Team
	Channels []*model.Channel
	Users    []*model.User
	// ChannelsByName serves GetChannelByName.
	ChannelsByName map[string]*model.Channel
	// Posts maps channel ID to the history page.
	Posts map[string]*model.PostList
	// SearchResults is returned for every search.
	SearchResults *model.PostList
	// FailEndpoints makes requests matching a "METHOD path-suffix" key
	// return 500. The value is how many times to fail, or -1 for always.
	FailEndpoints map[string]int
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Me:             &model.User{Id: "me-id", Username: "me"},
		Teams:          []*model.Team{{Id: "team-id", Name: "acme", DisplayName: "Acme Corp"}},
		ChannelsByName: make(map[string]*model.Channel),
		Posts:          make(map[string]*model.PostList),
		FailEndpoints:  make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CallCount(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && strings.Contains(c.Path, path) {
			n++
		}
	}
	return n
}

func (f *fakeMM) shouldFail(method, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, n := range f.FailEndpoints {
		m, suffix, _ := strings.Cut(key, " ")
		if m != method || !strings.HasSuffix(path, suffix) || n == 0 {
			continue
		}
		if n > 0 {
			f.FailEndpoints[key] = n - 1
		}
		return true
	}
	return false
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	path := r.URL.Path
	if f.shouldFail(r.Method, path) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "fake error"})
		return
	}
	parts := strings.Split(path, "/")

	switch {
	// GET /api/v4/users/me
	case r.Method == "GET" && path == "/api/v4/users/me":
		if r.Header.Get("Authorization") != "Bearer test-token" && r.Header.Get("Authorization") != "BEARER test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(f.Me)

	// GET /api/v4/users/{uid}/teams
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/users/") && strings.HasSuffix(path, "/teams"):
		_ = json.NewEncoder(w).Encode(f.Teams)

	// GET /api/v4/users/{uid}/teams/{tid}/channels
	case r.Method == "GET" && strings.Contains(path, "/teams/") && strings.HasSuffix(path, "/channels"):
		_ = json.NewEncoder(w).Encode(f.Channels)

	// GET /api/v4/users?in_team={tid}&page=N&per_page=M
	case r.Method == "GET" && path == "/api/v4/users":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		start, end := page*perPage, (page+1)*perPage
		users := []*model.User{}
		for i, u := range f.Users {
			if i >= start && i < end {
				users = append(users, u)
			}
		}
		_ = json.NewEncoder(w).Encode(users)

	// GET /api/v4/channels/{cid}/posts
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/channels/") && strings.HasSuffix(path, "/posts"):
		if pl, ok := f.Posts[parts[4]]; ok {
			_ = json.NewEncoder(w).Encode(pl)
			return
		}
		_ = json.NewEncoder(w).Encode(model.NewPostList())

	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		_ = json.NewEncoder(w).Encode(&post)

	// PUT /api/v4/posts/{pid}/patch
	case r.Method == "PUT" && strings.HasSuffix(path, "/patch"):
		_ = json.NewEncoder(w).Encode(&model.Post{Id: parts[4]})

	// DELETE /api/v4/posts/{pid}
	case r.Method == "DELETE" && strings.HasPrefix(path, "/api/v4/posts/"):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	// POST /api/v4/teams/{tid}/posts/search
	case r.Method == "POST" && strings.HasSuffix(path, "/posts/search"):
		if f.SearchResults == nil {
			_ = json.NewEncoder(w).Encode(model.NewPostList())
			return
		}
		_ = json.NewEncoder(w).Encode(f.SearchResults)

	// GET /api/v4/teams/{tid}/channels/name/{name}
	case r.Method == "GET" && strings.Contains(path, "/channels/name/"):
		if ch, ok := f.ChannelsByName[parts[len(parts)-1]]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "channel not found"})

	// POST /api/v4/channels/{cid}/members
	case r.Method == "POST" && strings.HasSuffix(path, "/members"):
		_ = json.NewEncoder(w).Encode(&model.ChannelMember{ChannelId: parts[4], UserId: f.Me.Id})

	// DELETE /api/v4/channels/{cid}/members/{uid}
	case r.Method == "DELETE" && strings.Contains(path, "/members/"):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "not found: " + path})
	}
}

// fakeStream stands in for the WebSocket.
type fakeStream struct {
	ch        chan *model.WebSocketEvent
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan *model.WebSocketEvent, 16)}
}

func (s *fakeStream) Events() <-chan *model.WebSocketEvent { return s.ch }

func (s *fakeStream) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// newWebSocketEvent creates a model.WebSocketEvent for testing handlers.
func newWebSocketEvent(eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(data)
}

func postedEvent(t *testing.T, post *model.Post) *model.WebSocketEvent {
	t.Helper()
	raw, err := json.Marshal(post)
	if err != nil {
		t.Fatalf("marshal post: %v", err)
	}
	return newWebSocketEvent(model.WebsocketEventPosted, post.ChannelId, map[string]any{"post": string(raw)})
}

func postList(posts ...*model.Post) *model.PostList {
	pl := model.NewPostList()
	for _, p := range posts {
		pl.AddPost(p)
		pl.AddOrder(p.Id)
	}
	return pl
}

func testConfig(serverURL string) Config {
	cfg := Config{ServerURL: serverURL, Token: "test-token"}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	return cfg
}

// openTest runs setup and start against the fake server with a fake stream.
func openTest(t *testing.T, f *fakeMM, cfg Config) (*Connection, *fakeStream, *conn.Sink) {
	t.Helper()
	sink := conn.NewSink()
	t.Cleanup(sink.Close)
	stream := newFakeStream()
	c := newConnection(cfg, sink, zerolog.Nop())
	c.dialStream = func(string, string) (eventStream, error) { return stream, nil }
	if err := c.setup(context.Background()); err != nil {
		t.Fatalf("setup: %v", err)
	}
	c.start()
	t.Cleanup(c.Close)
	return c, stream, sink
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

func expectNoEvent(t *testing.T, sink *conn.Sink) {
	t.Helper()
	select {
	case evt := <-sink.Events():
		t.Fatalf("unexpected event %#v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}
