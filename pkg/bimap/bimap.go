// Copyright 2024-2026 Aiku AI

// Package bimap provides an immutable two-way lookup between stable platform
// identifiers and human-readable names.
package bimap

import (
	"errors"
	"fmt"
)

var (
	ErrLengthMismatch = errors.New("names and ids have different lengths")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrDuplicateID    = errors.New("duplicate id")
)

// BiMap maps every identifier to exactly one name and every name to exactly
// one identifier. It is never modified after New returns, so any number of
// goroutines may read it concurrently.
type BiMap[I comparable, N comparable] struct {
	byID   map[I]N
	byName map[N]I
	ids    []I
	names  []N
}

// New builds a BiMap from two parallel sequences. names[i] is paired with
// ids[i].
func New[I comparable, N comparable](names []N, ids []I) (*BiMap[I, N], error) {
	if len(names) != len(ids) {
		return nil, fmt.Errorf("%w: %d names, %d ids", ErrLengthMismatch, len(names), len(ids))
	}
	m := &BiMap[I, N]{
		byID:   make(map[I]N, len(ids)),
		byName: make(map[N]I, len(names)),
		ids:    make([]I, len(ids)),
		names:  make([]N, len(names)),
	}
	copy(m.ids, ids)
	copy(m.names, names)
	for i, id := range ids {
		name := names[i]
		if _, ok := m.byID[id]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, id)
		}
		if _, ok := m.byName[name]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateName, name)
		}
		m.byID[id] = name
		m.byName[name] = id
	}
	return m, nil
}

// GetByID returns the name paired with id.
func (m *BiMap[I, N]) GetByID(id I) (N, bool) {
	name, ok := m.byID[id]
	return name, ok
}

// GetByName returns the identifier paired with name.
func (m *BiMap[I, N]) GetByName(name N) (I, bool) {
	id, ok := m.byName[name]
	return id, ok
}

func (m *BiMap[I, N]) ContainsID(id I) bool {
	_, ok := m.byID[id]
	return ok
}

func (m *BiMap[I, N]) ContainsName(name N) bool {
	_, ok := m.byName[name]
	return ok
}

func (m *BiMap[I, N]) Len() int {
	return len(m.ids)
}

// IDs returns a copy of the identifiers in construction order.
func (m *BiMap[I, N]) IDs() []I {
	out := make([]I, len(m.ids))
	copy(out, m.ids)
	return out
}

// Names returns a copy of the names in construction order.
func (m *BiMap[I, N]) Names() []N {
	out := make([]N, len(m.names))
	copy(out, m.names)
	return out
}

// Each calls fn for every pair in construction order.
func (m *BiMap[I, N]) Each(fn func(id I, name N)) {
	for i, id := range m.ids {
		fn(id, m.names[i])
	}
}
