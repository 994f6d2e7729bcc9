package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dreamware/designsync/internal/apperr"
	"github.com/dreamware/designsync/internal/protocol"
	"github.com/dreamware/designsync/internal/storage"
)

// DefaultCursorTTL is how long a cursor position survives without updates.
const DefaultCursorTTL = 30 * time.Second

// CursorKey returns the store key for a user's cursor in a room.
func CursorKey(userID, roomID string) string {
	return "cursor:" + userID + ":" + roomID
}

// CursorCache keeps the last known cursor of every user per room in the
// ephemeral store so late joiners can be shown where everyone is.
type CursorCache struct {
	store   storage.Store
	ttl     time.Duration
	timeout time.Duration
}

// NewCursorCache returns a cache over store. ttl <= 0 uses DefaultCursorTTL.
func NewCursorCache(store storage.Store, ttl, timeout time.Duration) *CursorCache {
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &CursorCache{store: store, ttl: ttl, timeout: timeout}
}

// Put overwrites the user's cursor in roomID and refreshes its TTL.
func (c *CursorCache) Put(ctx context.Context, roomID string, cur protocol.Cursor) error {
	value, err := json.Marshal(cur)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(ctx, CursorKey(cur.UserID, roomID), value, c.ttl); err != nil {
		return apperr.Dependency("cursor-put", err)
	}
	return nil
}

// Snapshot returns the known cursors of userIDs in roomID, in the order
// given. Users without a live cursor are skipped.
func (c *CursorCache) Snapshot(ctx context.Context, roomID string, userIDs []string) ([]protocol.Cursor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out []protocol.Cursor
	for _, userID := range userIDs {
		value, err := c.store.Get(ctx, CursorKey(userID, roomID))
		if errors.Is(err, storage.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return out, apperr.Dependency("cursor-snapshot", err)
		}
		var cur protocol.Cursor
		if err := json.Unmarshal(value, &cur); err != nil {
			continue
		}
		out = append(out, cur)
	}
	return out, nil
}

// Forget drops the user's cursor in roomID.
func (c *CursorCache) Forget(ctx context.Context, userID, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Delete(ctx, CursorKey(userID, roomID)); err != nil {
		return apperr.Dependency("cursor-forget", err)
	}
	return nil
}
