// Package upstream talks to the collaborators that live outside the relay:
// the team-membership service that answers room authorization questions and
// the optional HTTP activity sink.
//
// # Communication Protocol
//
// All calls are HTTP/JSON with a shared client whose timeout is 5 seconds.
// Callers are expected to pass a context with a tighter deadline.
//
// Membership check (GET {base}/rooms/{roomId}/members/{userId}):
//   - 200 {"allowed": true|false}
//   - 403 or 404 is treated as "not allowed"
//   - anything else is an error; the room registry denies on error
//
// Activity sink (POST {url}):
//   - body is one activity event
//   - any 2xx is success
//
// # Usage Example
//
//	auth, err := upstream.NewHTTPAuthorizer("http://teams.internal")
//	if err != nil {
//	    return err
//	}
//	registry, err := coordinator.NewRoomRegistry(coordinator.RegistryConfig{
//	    Authorizer: coordinator.NewCachingAuthorizer(auth, 4096, time.Minute),
//	})
package upstream
