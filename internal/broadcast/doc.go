// Package broadcast fans room events out to the sessions joined to the room.
//
// The Router owns one bounded outbox per session. Publish encodes an event
// once and offers the frame to every member's outbox without blocking; the
// session's write loop drains it onto the socket. A slow client therefore
// loses frames instead of stalling the room.
//
// CursorCache stores the last cursor of each user per room under
// "cursor:<userId>:<roomId>" with a 30 second TTL, so a joining session can
// be sent a cursor-snapshot of everyone already present.
package broadcast
