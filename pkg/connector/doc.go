// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector opens chat backends from configuration.
//
// Each entry of the backends list names its type and credential; the rest
// of the entry belongs to the adapter. [Open] dispatches on the type and
// [OpenAll] brings every configured backend up at once, keeping the ones
// that succeed.
//
// # Sub-packages
//
//   - mattermost is the Mattermost adapter (REST plus WebSocket).
//   - matrix is the Matrix adapter (client-server API plus /sync).
//   - matrixfmt converts Matrix HTML bodies to plain markdown text.
//   - markdownfmt renders markdown text to Matrix HTML with mention pills.
package connector
