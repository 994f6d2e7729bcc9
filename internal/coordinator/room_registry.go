// Package coordinator implements the room registry, room admission and
// dependency health monitoring for the collaboration relay.
// See doc.go for complete package documentation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/apperr"
	"github.com/dreamware/designsync/internal/shard"
)

// ErrAccessDenied is the cause attached to authorization failures when the
// collaborator answered "no".
var ErrAccessDenied = errors.New("access denied")

// Authorizer decides whether a user may join a room. It is the boundary to
// the external team-membership service.
type Authorizer interface {
	CanAccess(ctx context.Context, userID, roomID string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, userID, roomID string) (bool, error)

// CanAccess calls f.
func (f AuthorizerFunc) CanAccess(ctx context.Context, userID, roomID string) (bool, error) {
	return f(ctx, userID, roomID)
}

// JoinResult describes the membership change made by Join.
type JoinResult struct {
	// RoomID is the room the session is now in.
	RoomID string

	// Previous is the room the session implicitly left, or "" if none.
	Previous string

	// AlreadyMember is true when the session was already in RoomID; no
	// membership changed.
	AlreadyMember bool
}

// RoomRegistry tracks which sessions are joined to which rooms, serving as
// the authoritative source for fan-out sets.
//
// The registry partitions rooms across a fixed number of shards by hashing
// the room ID:
//
//	┌─────────────────────────────────────┐
//	│           RoomRegistry              │
//	├─────────────────────────────────────┤
//	│  shards: []*shard.Shard             │
//	│  sessions: sessionID → roomID       │
//	│  authorizer: admission check        │
//	├─────────────────────────────────────┤
//	│  Room → Hash → Shard → Members      │
//	│  "ds-42" → 0x8c1f → 3 → {s1, s7}    │
//	└─────────────────────────────────────┘
//
// Concurrency Model:
//   - Each shard guards its own rooms with an RWMutex
//   - The session index has its own mutex and is always taken before a
//     shard lock, so moving a session between rooms is atomic with respect
//     to other joins and leaves of the same session
//   - The authorizer is called without any lock held
//
// A session is a member of at most one room at any instant.
type RoomRegistry struct {
	authorizer Authorizer
	clock      clock.Clock
	logger     *zap.Logger

	// sessions maps a session ID to the one room it is joined to.
	sessions map[string]string

	shards  []*shard.Shard
	timeout time.Duration
	mu      sync.Mutex // protects sessions
}

// RegistryConfig holds the parameters for NewRoomRegistry.
type RegistryConfig struct {
	// Authorizer is consulted on every join. Required.
	Authorizer Authorizer

	// Clock stamps membership join times. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives admission decisions. Defaults to a no-op logger.
	Logger *zap.Logger

	// NumShards is the number of room partitions. Defaults to 16.
	NumShards int

	// AuthorizeTimeout bounds each authorizer call. Defaults to 2s.
	AuthorizeTimeout time.Duration
}

// NewRoomRegistry creates a registry with cfg.NumShards empty shards.
//
// Example:
//
//	registry, err := NewRoomRegistry(RegistryConfig{
//	    Authorizer: NewStaticAuthorizer(map[string][]string{"*": {"*"}}),
//	    NumShards:  16,
//	})
func NewRoomRegistry(cfg RegistryConfig) (*RoomRegistry, error) {
	if cfg.Authorizer == nil {
		return nil, errors.New("room registry: Authorizer is required")
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = 16
	}
	if cfg.AuthorizeTimeout <= 0 {
		cfg.AuthorizeTimeout = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	shards := make([]*shard.Shard, cfg.NumShards)
	for i := range shards {
		shards[i] = shard.NewShard(i)
	}

	return &RoomRegistry{
		authorizer: cfg.Authorizer,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		sessions:   make(map[string]string),
		shards:     shards,
		timeout:    cfg.AuthorizeTimeout,
	}, nil
}

// Join admits the session into roomID after checking authorization.
//
// Admission process:
// 1. Validates roomID is not empty
// 2. Asks the authorizer; any error counts as a denial (fail closed)
// 3. Removes the session from its previous room, if any
// 4. Adds the session to the new room
//
// Returns:
//   - JoinResult describing the change
//   - Validation error for an empty room ID
//   - Authorization error when access is denied or the check failed
func (r *RoomRegistry) Join(ctx context.Context, sessionID, userID, roomID string) (JoinResult, error) {
	if roomID == "" {
		return JoinResult{}, apperr.Validation("join", "roomId is required")
	}
	if sessionID == "" || userID == "" {
		return JoinResult{}, apperr.Validation("join", "session is not authenticated")
	}

	if err := r.authorize(ctx, userID, roomID); err != nil {
		return JoinResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.sessions[sessionID]
	if previous == roomID {
		return JoinResult{RoomID: roomID, AlreadyMember: true}, nil
	}
	if previous != "" {
		r.shardFor(previous).Remove(previous, sessionID)
	}

	r.shardFor(roomID).Add(roomID, shard.Member{
		SessionID: sessionID,
		UserID:    userID,
		JoinedAt:  r.clock.Now(),
	})
	r.sessions[sessionID] = roomID

	return JoinResult{RoomID: roomID, Previous: previous}, nil
}

func (r *RoomRegistry) authorize(ctx context.Context, userID, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	allowed, err := r.authorizer.CanAccess(ctx, userID, roomID)
	if err != nil {
		r.logger.Warn("room authorization check failed, denying",
			zap.String("user_id", userID),
			zap.String("room_id", roomID),
			zap.Error(err))
		return &apperr.Error{Kind: apperr.KindAuthorization, Op: "join", Msg: "access denied", Err: err}
	}
	if !allowed {
		return &apperr.Error{Kind: apperr.KindAuthorization, Op: "join", Msg: "access denied", Err: ErrAccessDenied}
	}
	return nil
}

// Leave removes the session from roomID.
// Returns true if the session was a member. Safe to call repeatedly.
func (r *RoomRegistry) Leave(sessionID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[sessionID] == roomID {
		delete(r.sessions, sessionID)
	}
	return r.shardFor(roomID).Remove(roomID, sessionID)
}

// LeaveAll removes the session from whatever room it is in.
// Returns the room it left and whether anything changed.
func (r *RoomRegistry) LeaveAll(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	delete(r.sessions, sessionID)
	return roomID, r.shardFor(roomID).Remove(roomID, sessionID)
}

// RoomOf returns the room the session is joined to.
func (r *RoomRegistry) RoomOf(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.sessions[sessionID]
	return roomID, ok
}

// IsMember reports whether the session is currently joined to roomID.
func (r *RoomRegistry) IsMember(sessionID, roomID string) bool {
	return r.shardFor(roomID).Contains(roomID, sessionID)
}

// MembersOf returns a copy of the room's members sorted by session ID.
func (r *RoomRegistry) MembersOf(roomID string) []shard.Member {
	return r.shardFor(roomID).Members(roomID)
}

// MemberSessions returns the session IDs joined to roomID.
func (r *RoomRegistry) MemberSessions(roomID string) []string {
	members := r.MembersOf(roomID)
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.SessionID
	}
	return out
}

// Rooms lists every known room, including empty ones, sorted by ID.
func (r *RoomRegistry) Rooms() []shard.RoomInfo {
	var out []shard.RoomInfo
	for _, s := range r.shards {
		out = append(out, s.Rooms()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ShardForRoom returns the index of the shard owning roomID.
func (r *RoomRegistry) ShardForRoom(roomID string) int {
	return shard.Index(roomID, len(r.shards))
}

// NumShards returns the number of room partitions.
func (r *RoomRegistry) NumShards() int {
	return len(r.shards)
}

// ShardInfo returns per-shard metadata for the admin endpoint.
func (r *RoomRegistry) ShardInfo() []shard.ShardInfo {
	out := make([]shard.ShardInfo, len(r.shards))
	for i, s := range r.shards {
		out[i] = s.Info()
	}
	return out
}

func (r *RoomRegistry) shardFor(roomID string) *shard.Shard {
	return r.shards[r.ShardForRoom(roomID)]
}

// String is used in debug logs.
func (r *RoomRegistry) String() string {
	r.mu.Lock()
	n := len(r.sessions)
	r.mu.Unlock()
	return fmt.Sprintf("RoomRegistry{shards=%d sessions=%d}", len(r.shards), n)
}
