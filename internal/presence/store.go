package presence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by Store.Get when no record exists for the pair.
var ErrNotFound = errors.New("presence record not found")

// Record is the durable presence row for one (user, room) pair.
type Record struct {
	LastSeen time.Time
	UserID   string
	RoomID   string
	Status   Status
}

// Store persists presence records. Records are upserted and never deleted.
type Store interface {
	// Upsert creates or overwrites the record for (rec.UserID, rec.RoomID).
	Upsert(ctx context.Context, rec Record) error

	// Active returns the room's records whose status is not offline and
	// whose LastSeen is at or after since, sorted by user ID.
	Active(ctx context.Context, roomID string, since time.Time) ([]Record, error)

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, userID, roomID string) (Record, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

type recordKey struct {
	user string
	room string
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	records map[recordKey]Record
	mu      sync.RWMutex
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

func (m *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.UserID, rec.RoomID}] = rec
	return nil
}

func (m *MemoryStore) Active(ctx context.Context, roomID string, since time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for k, rec := range m.records {
		if k.room != roomID || rec.Status == StatusOffline || rec.LastSeen.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, userID, roomID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{userID, roomID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
