package presence

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/apperr"
)

// DefaultFreshness is how recently a user must have been seen to appear in
// the active roster.
const DefaultFreshness = 5 * time.Minute

// Entry is one user in a room's active roster.
type Entry struct {
	LastSeen time.Time `json:"lastSeen"`
	UserID   string    `json:"userId"`
	Status   Status    `json:"status"`
}

// Config holds the parameters for NewManager.
type Config struct {
	Store     Store
	Clock     clock.Clock
	Logger    *zap.Logger
	Freshness time.Duration // defaults to DefaultFreshness
	Timeout   time.Duration // per store call, defaults to 2s
}

// Manager records per-room user status and answers roster queries.
// Thread-safe: all state lives in the Store.
type Manager struct {
	store     Store
	clock     clock.Clock
	logger    *zap.Logger
	freshness time.Duration
	timeout   time.Duration
}

// NewManager returns a Manager over cfg.Store, which is required.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Manager{
		store:     cfg.Store,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		freshness: cfg.Freshness,
		timeout:   cfg.Timeout,
	}
}

// SetStatus upserts the (user, room) record with status and last-seen = now.
// Calling it twice with the same arguments leaves one record.
func (m *Manager) SetStatus(ctx context.Context, userID, roomID string, status Status) error {
	if userID == "" || roomID == "" {
		return apperr.Validation("presence", "user and room are required")
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.Upsert(ctx, Record{
		UserID:   userID,
		RoomID:   roomID,
		Status:   status,
		LastSeen: m.clock.Now(),
	})
	if err != nil {
		m.logger.Warn("presence update failed",
			zap.String("user_id", userID),
			zap.String("room_id", roomID),
			zap.String("status", string(status)),
			zap.Error(err))
		return apperr.Dependency("presence", err)
	}
	return nil
}

// ActiveRoster lists users in roomID whose status is not offline and who were
// seen within the freshness window, sorted by user ID.
func (m *Manager) ActiveRoster(ctx context.Context, roomID string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	records, err := m.store.Active(ctx, roomID, m.clock.Now().Add(-m.freshness))
	if err != nil {
		m.logger.Warn("presence roster failed", zap.String("room_id", roomID), zap.Error(err))
		return nil, apperr.Dependency("presence", err)
	}

	roster := make([]Entry, len(records))
	for i, rec := range records {
		roster[i] = Entry{UserID: rec.UserID, Status: rec.Status, LastSeen: rec.LastSeen}
	}
	return roster, nil
}

// Ping probes the backing store; used by the health monitor.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
