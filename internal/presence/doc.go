// Package presence tracks which users are active in which rooms.
//
// Each (user, room) pair has exactly one durable record holding a status
// (active, idle, away, offline) and a last-seen time. Records are upserted on
// join, on status changes and on disconnect, and are never deleted. The
// active roster of a room is every record whose status is not offline and
// whose last-seen falls within the freshness window (5 minutes by default).
// Idle and away users are part of the roster.
//
// Two stores are provided: SQLiteStore for deployments and MemoryStore for
// development and tests.
package presence
