// Package notify delivers notifications: live per-user SSE fan-out and the
// scheduled appointment reminder job.
package notify

import (
	"context"
	"sync"

	"medidesk.org/internal/clinic"
)

// Stream fan-outs freshly created notifications to the SSE connections of the
// user they belong to.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	userID string
	ch     chan clinic.Notification
}

// NewStream initialises an empty stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a connection for one user and returns the channel it
// will receive events on. The channel is closed when the context ends.
func (s *Stream) Subscribe(ctx context.Context, userID string) <-chan clinic.Notification {
	ch := make(chan clinic.Notification, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{userID: userID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the notification to every connection of its user.
func (s *Stream) Publish(n clinic.Notification) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.userID != n.UserID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers reports the number of open connections, for the readiness info.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
