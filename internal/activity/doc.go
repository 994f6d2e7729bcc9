// Package activity keeps the audit trail of edits and comments.
//
// The relay calls Logger.Record after it has already answered the client, so
// logging never delays or fails a collaboration action. Events flow through
// a bounded queue to a small worker pool that writes them to a Sink:
// SQLiteSink (activity_log table), HTTPSink (webhook), NopSink, or a
// MultiSink combining several.
//
// The team an event is attributed to is the room it happened in, never a
// guess from the user's memberships.
package activity
