package coordinator

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Wildcard matches any room or any user in a StaticAuthorizer rule.
const Wildcard = "*"

// StaticAuthorizer grants access from a fixed allow list. It is meant for
// development and tests; production deployments use the HTTP collaborator.
type StaticAuthorizer struct {
	allow map[string]map[string]struct{} // roomID -> userIDs
}

// NewStaticAuthorizer builds an authorizer from room → users rules. Either
// side may be Wildcard.
//
// Example:
//
//	NewStaticAuthorizer(map[string][]string{
//	    "ds-1": {"alice", "bob"},
//	    "*":    {"admin"},
//	})
func NewStaticAuthorizer(rules map[string][]string) *StaticAuthorizer {
	allow := make(map[string]map[string]struct{}, len(rules))
	for room, users := range rules {
		set := make(map[string]struct{}, len(users))
		for _, u := range users {
			set[u] = struct{}{}
		}
		allow[room] = set
	}
	return &StaticAuthorizer{allow: allow}
}

// CanAccess never fails.
func (s *StaticAuthorizer) CanAccess(_ context.Context, userID, roomID string) (bool, error) {
	for _, room := range []string{roomID, Wildcard} {
		users, ok := s.allow[room]
		if !ok {
			continue
		}
		if _, ok := users[userID]; ok {
			return true, nil
		}
		if _, ok := users[Wildcard]; ok {
			return true, nil
		}
	}
	return false, nil
}

// CachingAuthorizer remembers positive decisions of another Authorizer for a
// short TTL. Denials and errors are never cached, so a user who is granted
// access is admitted on the next attempt, while a revoked user may keep
// access for at most one TTL.
type CachingAuthorizer struct {
	next  Authorizer
	cache *expirable.LRU[string, struct{}]
}

// NewCachingAuthorizer wraps next with an LRU of at most size entries.
func NewCachingAuthorizer(next Authorizer, size int, ttl time.Duration) *CachingAuthorizer {
	if size <= 0 {
		size = 1024
	}
	return &CachingAuthorizer{
		next:  next,
		cache: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// CanAccess consults the cache before the wrapped authorizer.
func (c *CachingAuthorizer) CanAccess(ctx context.Context, userID, roomID string) (bool, error) {
	key := userID + "\x00" + roomID
	if _, ok := c.cache.Get(key); ok {
		return true, nil
	}

	allowed, err := c.next.CanAccess(ctx, userID, roomID)
	if err != nil || !allowed {
		return false, err
	}
	c.cache.Add(key, struct{}{})
	return true, nil
}

// Forget drops a cached grant, e.g. after a membership change notification.
func (c *CachingAuthorizer) Forget(userID, roomID string) {
	c.cache.Remove(userID + "\x00" + roomID)
}
