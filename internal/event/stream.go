package event

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"
)

// ErrClosed is returned by Cursor.Next once the stream is closed and fully read.
var ErrClosed = errors.New("event stream closed")

// Stream is an append-only, sequence-numbered event log with any number of readers.
//
// Readers either pull lazily through a Cursor or register an observer that is called
// synchronously, in append order, for every event.
type Stream struct {
	mu        sync.Mutex
	events    []Event
	observers []func(Event)
	notify    chan struct{} // closed and replaced on every append
	closed    bool
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{notify: make(chan struct{})}
}

// Append assigns the next sequence number (starting at 1) and publishes ev.
// Appending to a closed stream is a no-op and returns the zero Event.
// Observers run under the stream lock and must not call back into the stream.
func (s *Stream) Append(ev Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}
	}

	ev.Seq = uint64(len(s.events)) + 1
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.events = append(s.events, ev)

	for _, fn := range s.observers {
		fn(ev)
	}

	close(s.notify)
	s.notify = make(chan struct{})
	return ev
}

// Observe registers fn and replays every event already in the stream to it.
func (s *Stream) Observe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		fn(ev)
	}
	s.observers = append(s.observers, fn)
}

// Close marks the end of the stream. Cursors drain what is left and then return ErrClosed.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.notify)
}

// Len returns the number of events appended so far.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Events returns a copy of everything appended so far.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Cursor returns a reader positioned before the first event.
func (s *Stream) Cursor() *Cursor {
	return &Cursor{stream: s}
}

// CursorAfter returns a reader positioned after seq, so the next event read has Seq seq+1.
func (s *Stream) CursorAfter(seq uint64) *Cursor {
	return &Cursor{stream: s, next: int(seq)}
}

// Cursor reads a Stream from a position. A Cursor is not safe for concurrent use.
type Cursor struct {
	stream *Stream
	next   int
}

// Next blocks until the next event is available, the stream is closed and drained, or ctx ends.
func (c *Cursor) Next(ctx context.Context) (Event, error) {
	for {
		s := c.stream
		s.mu.Lock()
		if c.next < len(s.events) {
			ev := s.events[c.next]
			c.next++
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Event{}, ErrClosed
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-wait:
		}
	}
}

// All yields events until the stream closes or ctx ends.
func (c *Cursor) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := c.Next(ctx)
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}
