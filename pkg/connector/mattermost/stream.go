// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
)

// eventStream is the live event source. Tests replace the WebSocket with a
// channel they feed directly.
type eventStream interface {
	Events() <-chan *model.WebSocketEvent
	Close()
}

type wsStream struct {
	ws *model.WebSocketClient
}

func (s *wsStream) Events() <-chan *model.WebSocketEvent {
	return s.ws.EventChannel
}

func (s *wsStream) Close() {
	s.ws.Close()
}

func dialWebSocket(serverURL, token string) (eventStream, error) {
	ws, err := model.NewWebSocketClient4(httpToWS(serverURL), token)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket client: %w", err)
	}
	ws.Listen()
	return &wsStream{ws: ws}, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
