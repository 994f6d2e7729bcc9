// Package lock implements exclusive, time-bounded edit locks on design
// resources (components, tokens).
//
// A lock is a key "lock:<resourceId>" in the ephemeral store whose value is
// the holder's user ID and whose TTL is the lease (5 minutes by default).
// Expired locks vanish lazily through the store's TTL; locks of a user whose
// last session disconnects are swept eagerly with ReleaseAll.
//
//	Acquire  SETNX lock:R alice PX lease   → granted
//	         GET lock:R                    → denied, held by bob
//	Release  compare-and-delete lock:R alice
package lock
