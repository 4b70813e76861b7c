// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrix connects omnichat to one Matrix account.
//
// # Identifiers
//
// Every joined room the account may post in becomes a channel. A room is
// named after its m.room.name, then its canonical alias, then its room ID;
// rooms sharing a name get the room ID appended. Users are named by display
// name, then localpart. Names claimed by more than one user fall back to the
// full user ID.
//
// Message bodies carry user IDs and room IDs. Those are rewritten to @name
// and #name for display and back on send. Formatted bodies are converted to
// markdown first, so mention pills end up as IDs too.
//
// # Transport
//
// All calls go through one mautrix.Client behind a conn.Handle. Live
// messages come from the client's /sync loop. The timeline of the first
// sync is skipped because history already covers it; later timelines are
// delivered whatever their timestamps say.
package matrix
