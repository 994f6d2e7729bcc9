// Package protocol defines the JSON frames exchanged over the collaboration
// WebSocket.
//
// Every frame is an envelope:
//
//	{"type": "cursor-move", "data": {"x": 10, "y": 20}}
//
// Inbound frames decode into a closed set of typed messages (JoinRoom,
// CursorMove, LockAcquire, ...). Decode validates required fields and size
// limits, so handlers can trust what they receive. Anything malformed or
// unknown is an apperr.KindValidation error, which the relay answers with an
// error frame to the sender only.
//
// Outbound frames are built with the constructor of the same name
// (UserJoined, LockDenied, ...) and serialized once with Encode before
// fan-out.
package protocol
