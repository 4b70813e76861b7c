// Copyright 2024-2026 Aiku AI

package conn

import (
	"sync"
)

// Sink is the unbounded multi-producer, single-consumer channel that every
// adapter publishes to. Send never blocks; events are delivered to Events in
// the order each producer sent them.
type Sink struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	notify chan struct{}
	done   chan struct{}
	out    chan Event

	closeOnce sync.Once
}

func NewSink() *Sink {
	s := &Sink{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
	}
	go s.pump()
	return s
}

// Send queues evt for the consumer. It returns ErrSinkClosed once Close has
// been called; producers must stop when that happens.
func (s *Sink) Send(evt Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns the consumer end. It is closed after Close.
func (s *Sink) Events() <-chan Event {
	return s.out
}

// Close makes every later Send fail and closes the Events channel. Events
// still queued are dropped.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// Pending returns the number of queued events not yet taken by the consumer.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Sink) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		evt := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- evt:
		case <-s.done:
			return
		}
	}
}
