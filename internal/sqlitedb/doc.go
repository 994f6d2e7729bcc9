// Package sqlitedb wraps a zombiezen sqlitex pool with the pragmas used by
// the durable stores (WAL journal, NORMAL sync, 5s busy timeout) and an
// idempotent per-connection schema hook.
package sqlitedb
