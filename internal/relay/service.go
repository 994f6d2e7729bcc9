package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dreamware/designsync/internal/activity"
	"github.com/dreamware/designsync/internal/auth"
	"github.com/dreamware/designsync/internal/broadcast"
	"github.com/dreamware/designsync/internal/coordinator"
	"github.com/dreamware/designsync/internal/lock"
	"github.com/dreamware/designsync/internal/metrics"
	"github.com/dreamware/designsync/internal/presence"
)

// Deps are the collaborators a Service coordinates. All except Clock,
// Metrics and Logger are required.
type Deps struct {
	Authenticator *auth.Authenticator
	Registry      *coordinator.RoomRegistry
	Presence      *presence.Manager
	Locks         *lock.Coordinator
	Router        *broadcast.Router
	Cursors       *broadcast.CursorCache
	Activity      *activity.Logger
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Clock         clock.Clock
}

// Options tune connection handling.
type Options struct {
	AllowedOrigins    []string
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	CleanupTimeout    time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
}

func (o *Options) setDefaults() {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = 5 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 60
	}
	if o.Burst <= 0 {
		o.Burst = 120
	}
}

// Service is the collaboration relay: it authenticates connections, runs one
// control loop per session and coordinates the room registry, presence,
// locks, broadcast and activity logging on its behalf.
//
// Thread Safety: safe for concurrent use by many connections.
type Service struct {
	Deps
	opts     Options
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	sessions     map[string]*Session
	userSessions map[string]int // userID -> open local sessions
	mu           sync.Mutex
	wg           sync.WaitGroup
}

// NewService validates deps and returns a ready Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Authenticator == nil:
		return nil, errors.New("relay: Authenticator is required")
	case deps.Registry == nil:
		return nil, errors.New("relay: Registry is required")
	case deps.Presence == nil:
		return nil, errors.New("relay: Presence is required")
	case deps.Locks == nil:
		return nil, errors.New("relay: Locks is required")
	case deps.Router == nil:
		return nil, errors.New("relay: Router is required")
	case deps.Cursors == nil:
		return nil, errors.New("relay: Cursors is required")
	case deps.Activity == nil:
		return nil, errors.New("relay: Activity is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	opts.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		Deps:         deps,
		opts:         opts,
		ctx:          ctx,
		cancel:       cancel,
		sessions:     make(map[string]*Session),
		userSessions: make(map[string]int),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// open creates and registers a session for an authenticated identity.
func (s *Service) open(id auth.Identity, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(s.ctx)
	sess := &Session{
		ctx:     ctx,
		cancel:  cancel,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst),
		locks:   make(map[string]struct{}),
		ID:      uuid.NewString(),
		UserID:  id.UserID,
	}
	sess.outbox = s.Router.Register(sess.ID)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.userSessions[sess.UserID]++
	s.mu.Unlock()
	s.wg.Add(1)

	s.Metrics.Connections.Inc()
	s.Logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID))
	return sess
}

// forget removes the session from the index and reports whether it was the
// user's last local session.
func (s *Service) forget(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sess.ID)
	s.userSessions[sess.UserID]--
	if s.userSessions[sess.UserID] <= 0 {
		delete(s.userSessions, sess.UserID)
		return true
	}
	return false
}

// SessionCount returns the number of open sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown disconnects every session and waits for their cleanup to finish
// or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	// Closing a session's outbox makes its write loop send a close frame.
	for _, sess := range open {
		s.Close(sess)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
