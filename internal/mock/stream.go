package mock

import (
	"context"
	"sync"
)

const streamBuffer = 16

// stream fans values out to subscribers. A subscriber that is not
// keeping up misses values rather than blocking the publisher.
type stream[T any] struct {
	mu     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
}

func (s *stream[T]) subscribe(ctx context.Context) <-chan T {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscriber[T]{ch: make(chan T, streamBuffer), done: make(chan struct{})}
	if s.closed {
		close(sub.ch)
		return sub.ch
	}
	if s.subs == nil {
		s.subs = make(map[*subscriber[T]]struct{})
	}
	s.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(sub)
		case <-sub.done:
		}
	}()
	return sub.ch
}

func (s *stream[T]) unsubscribe(sub *subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
		close(sub.done)
	}
}

func (s *stream[T]) publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- v:
		default:
		}
	}
}

// close ends the stream for every current and future subscriber.
func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
		close(sub.done)
	}
}

func (s *stream[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
