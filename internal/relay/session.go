package relay

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Session is one authenticated connection.
//
// Lifecycle:
//
//	Connecting ──auth ok──► Authenticated ──join──► Joined(room)
//	     │                        │                    │  ▲
//	  auth fail                   │                    └──┘ join other room
//	     ▼                        ▼                    ▼
//	  rejected (401)           Disconnected ◄──────────┘
//
// The read loop is the only goroutine that dispatches messages for a session,
// so messages from one connection are handled in arrival order.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	conn    *websocket.Conn // nil in tests that drive the service directly
	outbox  <-chan []byte
	limiter *rate.Limiter

	// locks holds the resources this session acquired and has not released.
	locks map[string]struct{}

	ID     string
	UserID string

	once sync.Once
	mu   sync.Mutex // protects locks
}

func (s *Session) trackLock(resourceID string) {
	s.mu.Lock()
	s.locks[resourceID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) untrackLock(resourceID string) {
	s.mu.Lock()
	delete(s.locks, resourceID)
	s.mu.Unlock()
}

func (s *Session) heldLocks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.locks))
	for r := range s.locks {
		out = append(out, r)
	}
	return out
}

// Context is canceled when the session disconnects.
func (s *Session) Context() context.Context { return s.ctx }
