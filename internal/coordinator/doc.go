// Package coordinator implements the room registry, room admission and
// dependency health monitoring for the designsync collaboration relay.
//
// # Overview
//
// A room is the unit of broadcast scoping: every live session that has
// joined the same design workspace receives the events produced inside it.
// The coordinator owns the authoritative answer to "who is in room R right
// now", which the broadcast router uses to compute fan-out sets.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│         COORDINATOR                 │
//	├─────────────────────────────────────┤
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │   Room Registry              │   │
//	│  │   - Room → Shard partition   │   │
//	│  │   - Session → Room index     │   │
//	│  │   - Single-room membership   │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │   Authorizer                 │   │
//	│  │   - Team membership check    │   │
//	│  │   - Positive-grant LRU cache │   │
//	│  │   - Fails closed on error    │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │   Health Monitor             │   │
//	│  │   - Ephemeral store probe    │   │
//	│  │   - Presence store probe     │   │
//	│  │   - Failure threshold        │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	└─────────────────────────────────────┘
//
// # Room Partitioning
//
// Rooms are spread over a fixed number of shards with FNV-1a:
//
//	shard = fnv1a(roomID) % numShards
//
// Each shard has its own lock, so joins into unrelated rooms do not contend.
// Rooms are created lazily on the first join and are never deleted; an empty
// room costs one map entry.
//
// # Admission
//
// Join asks the Authorizer before touching any state. A denial, a timeout or
// any collaborator error rejects the join and leaves the session's existing
// membership intact. CachingAuthorizer keeps positive answers for a short TTL
// so reconnect storms do not hammer the membership service.
//
// # Concurrency
//
// Lock ordering is session index first, then shard. The authorizer is always
// called with no lock held.
//
// # Usage Example
//
//	registry, err := coordinator.NewRoomRegistry(coordinator.RegistryConfig{
//	    Authorizer: coordinator.NewCachingAuthorizer(upstreamAuth, 4096, time.Minute),
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	res, err := registry.Join(ctx, sess.ID, sess.UserID, "ds-42")
//	if err != nil {
//	    return err // apperr.KindAuthorization or apperr.KindValidation
//	}
//	if res.Previous != "" {
//	    // announce user-left in res.Previous
//	}
//
// # See Also
//
//   - internal/shard: the room partition itself
//   - internal/relay: the session loop that drives joins and leaves
//   - internal/upstream: the HTTP membership authorizer
package coordinator
