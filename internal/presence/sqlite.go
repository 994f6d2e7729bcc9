package presence

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/dreamware/designsync/internal/sqlitedb"
)

// Schema creates the presence table. Pass it as sqlitedb.Config.Schema.
const Schema = `
CREATE TABLE IF NOT EXISTS user_presence (
	user_id   TEXT    NOT NULL,
	room_id   TEXT    NOT NULL,
	status    TEXT    NOT NULL,
	last_seen INTEGER NOT NULL,
	PRIMARY KEY (user_id, room_id)
);
CREATE INDEX IF NOT EXISTS user_presence_room ON user_presence (room_id, last_seen);
`

// SQLiteStore keeps presence in the user_presence table. last_seen is stored
// as Unix milliseconds.
type SQLiteStore struct {
	pool *sqlitedb.Pool
}

// NewSQLiteStore wraps an open pool whose schema includes Schema.
func NewSQLiteStore(pool *sqlitedb.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO user_presence (user_id, room_id, status, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, room_id)
		DO UPDATE SET status = excluded.status, last_seen = excluded.last_seen`,
		&sqlitex.ExecOptions{
			Args: []any{rec.UserID, rec.RoomID, string(rec.Status), rec.LastSeen.UnixMilli()},
		})
	if err != nil {
		return fmt.Errorf("presence upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Active(ctx context.Context, roomID string, since time.Time) ([]Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var out []Record
	err = sqlitex.Execute(conn, `
		SELECT user_id, status, last_seen FROM user_presence
		WHERE room_id = ? AND status != 'offline' AND last_seen >= ?
		ORDER BY user_id`,
		&sqlitex.ExecOptions{
			Args: []any{roomID, since.UnixMilli()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Record{
					UserID:   stmt.ColumnText(0),
					RoomID:   roomID,
					Status:   Status(stmt.ColumnText(1)),
					LastSeen: time.UnixMilli(stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("presence active: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, roomID string) (Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, err
	}
	defer s.pool.Put(conn)

	var (
		rec   Record
		found bool
	)
	err = sqlitex.Execute(conn, `
		SELECT status, last_seen FROM user_presence WHERE user_id = ? AND room_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{userID, roomID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				rec = Record{
					UserID:   userID,
					RoomID:   roomID,
					Status:   Status(stmt.ColumnText(0)),
					LastSeen: time.UnixMilli(stmt.ColumnInt64(1)),
				}
				return nil
			},
		})
	if err != nil {
		return Record{}, fmt.Errorf("presence get: %w", err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
