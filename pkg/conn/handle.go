// Copyright 2024-2026 Aiku AI

package conn

import "sync"

// Handle shares a backend's remote-call client between the history workers,
// the live loop and the consumer's outbound calls. Reads run fully
// concurrently. Writes are serialized against each other but never wait for
// readers. The client itself must be safe for concurrent use.
type Handle[C any] struct {
	client  C
	writeMu sync.Mutex
}

func NewHandle[C any](client C) *Handle[C] {
	return &Handle[C]{client: client}
}

// Read runs fn with the client.
func (h *Handle[C]) Read(fn func(C) error) error {
	return fn(h.client)
}

// Write runs fn with the client while holding the writer lock.
func (h *Handle[C]) Write(fn func(C) error) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return fn(h.client)
}
