// Package storage defines the ephemeral key-value store used by the
// collaboration core for short-lived shared state: edit locks and cursor
// positions.
//
// # Overview
//
// Locks and cursors share one property: losing them is harmless. A lock that
// disappears is re-acquired, a cursor that disappears simply is not drawn.
// What matters is atomicity and expiry, so the interface is built around
// set-if-absent with a TTL and compare-and-delete rather than general CRUD.
//
//	┌─────────────────────────────────────┐
//	│   lock.Coordinator  broadcast.Cursor│
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│            storage.Store            │
//	│  SetNX · CompareAndDelete · Scan    │
//	└─────────────────────────────────────┘
//	         │                 │
//	         ▼                 ▼
//	┌──────────────┐   ┌──────────────┐
//	│ MemoryStore  │   │  RedisStore  │
//	└──────────────┘   └──────────────┘
//
// # Key Layout
//
//	lock:<resourceId>              → holder user id, TTL = lock lease
//	cursor:<userId>:<roomId>       → JSON cursor, TTL = cursor TTL
//
// # Implementations
//
// MemoryStore: in-process map guarded by sync.RWMutex
//   - Linearizable within one process only
//   - Expired entries are invisible on access (lazy expiry)
//   - RunJanitor purges expired entries to bound memory
//   - Time comes from an injected clock so tests can advance it
//
// RedisStore: go-redis client
//   - SET NX PX for acquisition, a Lua script for compare-and-delete
//   - Linearizable across every process sharing the server
//   - SCAN (never KEYS) for prefix listing
//
// # Error Handling
//
// ErrKeyNotFound is the only sentinel; every other error is a transport or
// server failure that callers classify as a dependency error.
package storage
