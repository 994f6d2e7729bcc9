package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/dreamware/designsync/internal/sqlitedb"
	"github.com/dreamware/designsync/internal/upstream"
)

// NopSink discards events.
type NopSink struct{}

func (NopSink) Write(context.Context, Event) error { return nil }

// MultiSink writes to every sink and combines their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, ev Event) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Write(ctx, ev))
	}
	return err
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Write(ctx context.Context, ev Event) error { return f(ctx, ev) }

// HTTPSink posts each event as JSON to a webhook.
type HTTPSink struct {
	URL string
}

func (h HTTPSink) Write(ctx context.Context, ev Event) error {
	return upstream.PostJSON(ctx, h.URL, ev, nil)
}

// Schema creates the activity table. Pass it as sqlitedb.Config.Schema.
const Schema = `
CREATE TABLE IF NOT EXISTS activity_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	at            INTEGER NOT NULL,
	team_id       TEXT    NOT NULL,
	user_id       TEXT    NOT NULL,
	action        TEXT    NOT NULL,
	resource_type TEXT    NOT NULL,
	resource_id   TEXT,
	metadata      TEXT
);
CREATE INDEX IF NOT EXISTS activity_log_team ON activity_log (team_id, at);
`

// SQLiteSink appends events to the activity_log table. team_id is the room.
type SQLiteSink struct {
	pool *sqlitedb.Pool
}

// NewSQLiteSink wraps an open pool whose schema includes Schema.
func NewSQLiteSink(pool *sqlitedb.Pool) *SQLiteSink {
	return &SQLiteSink{pool: pool}
}

func (s *SQLiteSink) Write(ctx context.Context, ev Event) error {
	var metadata any
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("activity metadata: %w", err)
		}
		metadata = string(raw)
	}
	var resourceID any
	if ev.ResourceID != "" {
		resourceID = ev.ResourceID
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO activity_log (at, team_id, user_id, action, resource_type, resource_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{ev.At.UnixMilli(), ev.RoomID, ev.UserID, ev.Action, ev.ResourceType, resourceID, metadata},
		})
	if err != nil {
		return fmt.Errorf("activity insert: %w", err)
	}
	return nil
}
