// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost connects omnichat to one Mattermost team.
//
// # Identifiers
//
// Channels are shown by their URL name. Message text refers to channels as
// ~name, which is rewritten to #name for display and back on send. User
// mentions already use @username on both sides.
//
// # Transport
//
// REST calls go through model.Client4, shared behind a conn.Handle: history
// workers and search read concurrently while sends and membership changes
// are serialized. Live messages arrive on the Mattermost WebSocket as posted
// events. If the socket closes it is redialed once before the connection
// gives up on live events.
package mattermost
