// Package shard implements one partition of room membership state for the
// collaboration coordinator.
//
// # Overview
//
// Room membership is read on every fan-out and written on every join and
// leave. A single global lock would serialize unrelated rooms against each
// other, so the room space is split into a fixed number of shards. A room's
// shard is chosen by hashing its ID:
//
//	roomID → FNV-1a → hash % numShards → Shard
//	"ds-42" → 0x8c1f…  → 3               → shards[3]
//
// Each shard guards only its own rooms, so joins in different shards never
// contend.
//
// # Core Components
//
// Shard: map of room ID to Room under one RWMutex
//   - Add/Remove are idempotent and report whether anything changed
//   - Members returns a sorted copy, never the live map
//   - Join/leave counters are updated atomically
//
// Room: membership set keyed by session ID
//   - Created lazily on first Add
//   - Kept after the last member leaves so it can be reused
//
// # Thread Safety
//
// All Shard methods are safe for concurrent use. The "one room per session"
// rule spans shards and is therefore enforced by the registry in the
// coordinator package, not here.
package shard
