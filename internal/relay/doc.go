// Package relay runs the live side of the collaboration coordinator: one
// WebSocket session per client, one control loop per session, and the
// disconnect cleanup that keeps rooms, presence and locks consistent.
//
// # Overview
//
// A Service is an http.Handler. Each handshake is authenticated before the
// upgrade; an accepted connection gets two goroutines:
//
//	            ┌────────────┐   decode   ┌──────────┐
//	socket ───► │  readPump  │ ─────────► │  handle  │──► registry / presence /
//	            └────────────┘            └──────────┘    locks / router / activity
//	            ┌────────────┐
//	socket ◄─── │ writePump  │ ◄── outbox (bounded, owned by broadcast.Router)
//	            └────────────┘
//
// readPump is the only goroutine that dispatches a session's messages, so
// one client's messages are handled in the order they were sent. writePump
// drains the session's outbox and pings the peer.
//
// # Replies
//
// Every failure is answered on the same connection with an error frame whose
// code is the apperr kind: forbidden, invalid or unavailable. Nothing closes
// the connection except the peer, a read error or Shutdown.
//
// # Disconnect
//
// Close runs the cleanup exactly once per session, whichever of the read
// loop, the write loop or Shutdown gets there first. The steps are
// independent and all run even when one fails:
//
//  1. remove the session from its room
//  2. mark the user offline and drop their cursor, unless another session
//     of the same user is still in the room
//  3. release the locks this session acquired
//  4. on the user's last local session, sweep every lock they still hold
//  5. announce user-left
//
// Failures are collected with multierr and logged.
//
// Leaving a room without disconnecting, with leave-room or by joining
// another room, also releases the session's locks and announces them to the
// room being left.
//
// # See Also
//
//   - internal/protocol: the wire vocabulary
//   - internal/broadcast: fan-out and the cursor cache
//   - internal/coordinator: room membership
package relay
