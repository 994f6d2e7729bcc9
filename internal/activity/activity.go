package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/metrics"
)

// Actions recorded by the relay.
const (
	ActionComponentUpdated = "component.updated"
	ActionTokenUpdated     = "token.updated"
	ActionCommentCreated   = "comment.created"
	ActionCommentReacted   = "comment.reacted"
)

// Event is one audit record. RoomID doubles as the team attribution: a room
// is one team's design workspace.
type Event struct {
	At           time.Time      `json:"at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Action       string         `json:"action"`
	UserID       string         `json:"userId"`
	RoomID       string         `json:"roomId"`
	ResourceID   string         `json:"resourceId,omitempty"`
	ResourceType string         `json:"resourceType"`
}

// ResourceTypeOf derives the resource type from an action name:
// "component.updated" → "component".
func ResourceTypeOf(action string) string {
	prefix, _, _ := strings.Cut(action, ".")
	return prefix
}

// Sink persists or forwards activity events.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Config holds the parameters for NewLogger.
type Config struct {
	Sink      Sink
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	QueueSize int           // defaults to 1024
	Workers   int           // defaults to 2
	Timeout   time.Duration // per sink write, defaults to 5s
}

// Logger records activity asynchronously. Record never blocks the caller and
// never returns an error: failures and overflow are logged and counted.
//
//	Record ──► queue (bounded) ──► worker 1 ──► Sink.Write
//	                          └──► worker N ──►
type Logger struct {
	sink    Sink
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	queue   chan Event
	done    chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards sends against Close
	closed  bool
}

// NewLogger starts the worker pool. Call Close to drain and stop it.
func NewLogger(cfg Config) *Logger {
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	l := &Logger{
		sink:    cfg.Sink,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		queue:   make(chan Event, cfg.QueueSize),
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

// Record enqueues ev. Missing At and ResourceType are filled in.
func (l *Logger) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = l.clock.Now()
	}
	if ev.ResourceType == "" {
		ev.ResourceType = ResourceTypeOf(ev.Action)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- ev:
	default:
		l.metrics.ActivityDropped.Inc()
		l.logger.Warn("activity queue full, event dropped",
			zap.String("action", ev.Action),
			zap.String("user_id", ev.UserID),
			zap.String("room_id", ev.RoomID))
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to
// end, whichever comes first.
func (l *Logger) Close(ctx context.Context) error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()

		go func() {
			l.wg.Wait()
			close(l.done)
		}()
	})

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()
	for ev := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		err := l.sink.Write(ctx, ev)
		cancel()
		if err != nil {
			l.metrics.DependencyErrors.WithLabelValues("activity").Inc()
			l.logger.Warn("activity write failed",
				zap.String("action", ev.Action),
				zap.String("user_id", ev.UserID),
				zap.String("room_id", ev.RoomID),
				zap.String("resource_id", ev.ResourceID),
				zap.Error(err))
		}
	}
}
