package shard

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Member is one session's membership in a room
type Member struct {
	JoinedAt  time.Time `json:"joined_at"`  // When the session joined the room
	SessionID string    `json:"session_id"` // Session identifier
	UserID    string    `json:"user_id"`    // Authenticated user behind the session
}

// Room is the membership set of one workspace
// Rooms are created lazily on first join and kept after the last leave
type Room struct {
	members map[string]Member // sessionID -> member
	ID      string            // Room identifier
}

// Shard is a partition of the room space
// Each shard owns the rooms whose IDs hash to it and guards them with its own lock
type Shard struct {
	rooms map[string]*Room // roomID -> room
	Stats *ShardStats      // Operation statistics
	ID    int              // Unique shard identifier
	mu    sync.RWMutex     // Protects rooms
}

// ShardStats tracks operational statistics for a shard
type ShardStats struct {
	Joins  uint64 // Number of successful adds
	Leaves uint64 // Number of removals that found the member
}

// ShardInfo contains metadata about a shard
type ShardInfo struct {
	ID      int `json:"id"`      // Shard identifier
	Rooms   int `json:"rooms"`   // Number of known rooms (including empty ones)
	Members int `json:"members"` // Number of memberships across rooms
}

// RoomInfo summarizes one room
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// NewShard creates an empty shard
func NewShard(id int) *Shard {
	return &Shard{
		ID:    id,
		rooms: make(map[string]*Room),
		Stats: &ShardStats{},
	}
}

// Add puts the member into the room, creating the room if needed
// Returns false if the session was already a member
func (s *Shard) Add(roomID string, m Member) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, members: make(map[string]Member)}
		s.rooms[roomID] = room
	}
	if _, exists := room.members[m.SessionID]; exists {
		return false
	}
	room.members[m.SessionID] = m
	atomic.AddUint64(&s.Stats.Joins, 1)
	return true
}

// Remove drops the session from the room
// No error if the session or room is absent (idempotent)
func (s *Shard) Remove(roomID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := room.members[sessionID]; !exists {
		return false
	}
	delete(room.members, sessionID)
	atomic.AddUint64(&s.Stats.Leaves, 1)
	return true
}

// Members returns a copy of the room's members sorted by session ID
func (s *Shard) Members(roomID string) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Member, 0, len(room.members))
	for _, m := range room.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Contains reports whether the session is a member of the room
func (s *Shard) Contains(roomID, sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	_, exists := room.members[sessionID]
	return exists
}

// Rooms returns a summary of every known room in the shard
func (s *Shard) Rooms() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoomInfo, 0, len(s.rooms))
	for id, room := range s.rooms {
		out = append(out, RoomInfo{ID: id, Members: len(room.members)})
	}
	return out
}

// OwnsRoom determines if this shard owns a given room
// Uses the same FNV-1a hashing as the registry
func (s *Shard) OwnsRoom(roomID string, numShards int) bool {
	if numShards <= 0 {
		return false
	}
	return Index(roomID, numShards) == s.ID
}

// GetStats returns a snapshot of the shard's counters
func (s *Shard) GetStats() ShardStats {
	return ShardStats{
		Joins:  atomic.LoadUint64(&s.Stats.Joins),
		Leaves: atomic.LoadUint64(&s.Stats.Leaves),
	}
}

// Info returns metadata about the shard
func (s *Shard) Info() ShardInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := ShardInfo{ID: s.ID, Rooms: len(s.rooms)}
	for _, room := range s.rooms {
		info.Members += len(room.members)
	}
	return info
}

// Index maps a room ID onto [0, numShards) with FNV-1a
func Index(roomID string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(numShards))
}
