// Package auth is the session gateway's credential check.
//
// Clients present an HS256 JWT on the WebSocket handshake, either as
// "Authorization: Bearer <token>" or as the "token" query parameter. The
// token must carry an exp claim and a userId claim. Only HS256 is accepted;
// tokens signed with any other algorithm (including "none") are invalid.
//
// A failed check is answered with HTTP 401 before the upgrade, with one of
// two body texts:
//
//	authentication required   no token presented
//	invalid credential        malformed, forged, expired, or missing userId
//
// Issuing tokens is the job of an external identity service. Issuer exists
// for local development and tests.
package auth
