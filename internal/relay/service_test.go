package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/designsync/internal/activity"
	"github.com/dreamware/designsync/internal/auth"
	"github.com/dreamware/designsync/internal/broadcast"
	"github.com/dreamware/designsync/internal/coordinator"
	"github.com/dreamware/designsync/internal/lock"
	"github.com/dreamware/designsync/internal/metrics"
	"github.com/dreamware/designsync/internal/presence"
	"github.com/dreamware/designsync/internal/protocol"
	"github.com/dreamware/designsync/internal/storage"
)

var testSecret = []byte("relay-test-secret-0123456789")

type harness struct {
	svc      *Service
	metrics  *metrics.Metrics
	issuer   *auth.Issuer
	activity chan activity.Event
}

func newHarness(t *testing.T, allow map[string][]string) *harness {
	t.Helper()
	return newHarnessWithPresence(t, allow, presence.NewMemoryStore())
}

func newHarnessWithPresence(t *testing.T, allow map[string][]string, presenceStore presence.Store) *harness {
	t.Helper()
	if allow == nil {
		allow = map[string][]string{coordinator.Wildcard: {coordinator.Wildcard}}
	}

	m := metrics.New()
	authn, err := auth.NewAuthenticator(testSecret, nil)
	require.NoError(t, err)
	registry, err := coordinator.NewRoomRegistry(coordinator.RegistryConfig{
		Authorizer: coordinator.NewStaticAuthorizer(allow),
		NumShards:  4,
	})
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	recorded := make(chan activity.Event, 64)
	logger := activity.NewLogger(activity.Config{
		Sink: activity.SinkFunc(func(_ context.Context, ev activity.Event) error {
			recorded <- ev
			return nil
		}),
		Metrics: m,
	})
	t.Cleanup(func() { logger.Close(context.Background()) })

	svc, err := NewService(Deps{
		Authenticator: authn,
		Registry:      registry,
		Presence:      presence.NewManager(presence.Config{Store: presenceStore}),
		Locks:         lock.NewCoordinator(lock.Config{Store: store}),
		Router:        broadcast.NewRouter(registry, 64, m, nil),
		Cursors:       broadcast.NewCursorCache(store, 0, 0),
		Activity:      logger,
		Metrics:       m,
	}, Options{MessagesPerSecond: 1000, Burst: 1000})
	require.NoError(t, err)

	return &harness{svc: svc, metrics: m, issuer: auth.NewIssuer(testSecret, nil), activity: recorded}
}

// flakyPresence wraps a presence store. It fails every write while down is
// set, and runs beforeWrite once ahead of the next write.
type flakyPresence struct {
	presence.Store
	beforeWrite func(rec presence.Record)
	down        atomic.Bool
}

func (f *flakyPresence) Upsert(ctx context.Context, rec presence.Record) error {
	if f.down.Load() {
		return errors.New("presence store unreachable")
	}
	if hook := f.beforeWrite; hook != nil {
		f.beforeWrite = nil
		hook(rec)
		// The write was already on its way when the hook ran.
		ctx = context.WithoutCancel(ctx)
	}
	return f.Store.Upsert(ctx, rec)
}

func (h *harness) connect(userID string) *Session {
	return h.svc.open(auth.Identity{UserID: userID}, nil)
}

func (h *harness) send(t *testing.T, sess *Session, msgType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(protocol.Envelope{Type: msgType, Data: raw})
	require.NoError(t, err)

	msg, err := protocol.Decode(frame)
	require.NoError(t, err)
	h.svc.handle(sess.ctx, sess, msg)
}

// frames drains everything queued for sess. Dispatch enqueues synchronously,
// so the outbox is complete once send returns.
func frames(sess *Session) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case frame, ok := <-sess.outbox:
			if !ok {
				return out
			}
			var env protocol.Envelope
			json.Unmarshal(frame, &env)
			out = append(out, env)
		default:
			return out
		}
	}
}

func types(envs []protocol.Envelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

func decodeData[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(Deps{}, Options{})
	assert.Error(t, err)
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.connect("alice")
	bob := h.connect("bob")

	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	got := frames(alice)
	require.Equal(t, []string{protocol.TypeJoinedRoom}, types(got))
	joined := decodeData[protocol.JoinedRoomData](t, got[0])
	assert.Equal(t, "R1", joined.RoomID)
	require.Len(t, joined.Roster, 1)
	assert.Equal(t, "alice", joined.Roster[0].UserID)

	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	got = frames(bob)
	require.Equal(t, []string{protocol.TypeJoinedRoom}, types(got))
	joined = decodeData[protocol.JoinedRoomData](t, got[0])
	require.Len(t, joined.Roster, 2)
	assert.Equal(t, "alice", joined.Roster[0].UserID)
	assert.Equal(t, "bob", joined.Roster[1].UserID)

	got = frames(alice)
	require.Equal(t, []string{protocol.TypeUserJoined}, types(got))
	assert.Equal(t, protocol.UserRoomData{UserID: "bob", RoomID: "R1"}, decodeData[protocol.UserRoomData](t, got[0]))

	t.Run("rejoin does not re-announce", func(t *testing.T) {
		h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
		assert.Equal(t, []string{protocol.TypeJoinedRoom}, types(frames(bob)))
		assert.Empty(t, frames(alice))
	})

	t.Run("switching rooms announces the departure", func(t *testing.T) {
		h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R2"})
		got := frames(alice)
		require.Equal(t, []string{protocol.TypeUserLeft}, types(got))
		assert.Equal(t, "bob", decodeData[protocol.UserRoomData](t, got[0]).UserID)
		assert.False(t, h.svc.Registry.IsMember(bob.ID, "R1"))
	})
}

func TestJoinDeniedKeepsConnection(t *testing.T) {
	h := newHarness(t, map[string][]string{"R1": {"alice"}})
	mallory := h.connect("mallory")

	h.send(t, mallory, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	got := frames(mallory)
	require.Equal(t, []string{protocol.TypeError}, types(got))
	assert.Equal(t, "forbidden", decodeData[protocol.ErrorData](t, got[0]).Code)
	assert.Equal(t, 1, h.svc.SessionCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Joins.WithLabelValues("denied")))

	h.send(t, mallory, protocol.TypePing, struct{}{})
	assert.Equal(t, []string{protocol.TypePong}, types(frames(mallory)))
}

func TestMessagesRequireRoom(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.connect("alice")

	h.send(t, alice, protocol.TypeCursorMove, map[string]any{"x": 1, "y": 2})
	got := frames(alice)
	require.Equal(t, []string{protocol.TypeError}, types(got))
	errData := decodeData[protocol.ErrorData](t, got[0])
	assert.Equal(t, "invalid", errData.Code)
	assert.Equal(t, "join a room first", errData.Message)
}

func TestCursorUpdatesOrderedWithoutEcho(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)
	frames(bob)

	for i := 1; i <= 20; i++ {
		h.send(t, alice, protocol.TypeCursorMove, map[string]any{"x": i, "y": i * 2})
	}

	assert.Empty(t, frames(alice), "originator must not receive its own cursor")
	got := frames(bob)
	require.Len(t, got, 20)
	for i, env := range got {
		require.Equal(t, protocol.TypeCursorUpdate, env.Type)
		cur := decodeData[protocol.Cursor](t, env)
		assert.Equal(t, "alice", cur.UserID)
		assert.Equal(t, float64(i+1), cur.X)
	}

	t.Run("late joiner gets a snapshot", func(t *testing.T) {
		carol := h.connect("carol")
		h.send(t, carol, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
		got := frames(carol)
		require.Equal(t, []string{protocol.TypeJoinedRoom, protocol.TypeCursorSnapshot}, types(got))
		snap := decodeData[protocol.CursorSnapshotData](t, got[1])
		require.Len(t, snap.Cursors, 1)
		assert.Equal(t, protocol.Cursor{UserID: "alice", X: 20, Y: 40}, snap.Cursors[0])
	})
}

// TestLockScenario walks two users through a contested lock and a disconnect.
func TestLockScenario(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)
	frames(bob)

	h.send(t, alice, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "C1"})
	for _, sess := range []*Session{alice, bob} {
		got := frames(sess)
		require.Equal(t, []string{protocol.TypeLockGranted}, types(got))
		assert.Equal(t, protocol.LockGrantedData{ResourceID: "C1", UserID: "alice"}, decodeData[protocol.LockGrantedData](t, got[0]))
	}

	h.send(t, bob, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "C1"})
	assert.Empty(t, frames(alice), "denial is not broadcast")
	got := frames(bob)
	require.Equal(t, []string{protocol.TypeLockDenied}, types(got))
	assert.Equal(t, "alice", decodeData[protocol.LockDeniedData](t, got[0]).HeldBy)

	t.Run("edit by non-holder is refused", func(t *testing.T) {
		h.send(t, bob, protocol.TypeResourceUpdate, map[string]any{"resourceId": "C1", "changes": map[string]any{"fill": "red"}})
		assert.Equal(t, []string{protocol.TypeLockDenied}, types(frames(bob)))
		assert.Empty(t, frames(alice))
	})

	t.Run("edit by holder is relayed and logged", func(t *testing.T) {
		h.send(t, alice, protocol.TypeResourceUpdate, map[string]any{"resourceId": "C1", "changes": map[string]any{"fill": "blue"}})
		assert.Empty(t, frames(alice))
		got := frames(bob)
		require.Equal(t, []string{protocol.TypeResourceChanged}, types(got))
		changed := decodeData[protocol.ResourceChangedData](t, got[0])
		assert.Equal(t, protocol.ResourceComponent, changed.ResourceType)
		assert.JSONEq(t, `{"fill":"blue"}`, string(changed.Changes))

		select {
		case ev := <-h.activity:
			assert.Equal(t, activity.ActionComponentUpdated, ev.Action)
			assert.Equal(t, "R1", ev.RoomID)
			assert.Equal(t, "C1", ev.ResourceID)
		case <-time.After(time.Second):
			t.Fatal("activity event not recorded")
		}
	})

	t.Run("disconnect releases locks and announces departure", func(t *testing.T) {
		h.svc.Close(alice)

		got := frames(bob)
		require.Equal(t, []string{protocol.TypeLockReleased, protocol.TypeUserLeft}, types(got))
		assert.Equal(t, "C1", decodeData[protocol.LockReleasedData](t, got[0]).ResourceID)

		_, held, err := h.svc.Locks.Holder(context.Background(), "C1")
		require.NoError(t, err)
		assert.False(t, held)

		h.send(t, bob, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "C1"})
		assert.Equal(t, []string{protocol.TypeLockGranted}, types(frames(bob)))
	})
}

func TestLockReleaseByNonHolderIsSilent(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, alice, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "C1"})
	frames(alice)
	frames(bob)

	h.send(t, bob, protocol.TypeLockRelease, protocol.LockRelease{ResourceID: "C1"})
	assert.Empty(t, frames(alice))
	assert.Empty(t, frames(bob))

	h.send(t, alice, protocol.TypeLockRelease, protocol.LockRelease{ResourceID: "C1"})
	assert.Equal(t, []string{protocol.TypeLockReleased}, types(frames(bob)))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(bob)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.Connections))

	for i := 0; i < 3; i++ {
		h.svc.Close(alice)
	}

	assert.Equal(t, []string{protocol.TypeUserLeft}, types(frames(bob)))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Connections))
	assert.Equal(t, 1, h.svc.SessionCount())
	assert.Error(t, alice.Context().Err())

	roster, err := h.svc.Presence.ActiveRoster(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].UserID)
}

func TestSecondSessionKeepsUserPresent(t *testing.T) {
	h := newHarness(t, nil)
	tab1, tab2, bob := h.connect("alice"), h.connect("alice"), h.connect("bob")
	for _, sess := range []*Session{tab1, tab2, bob} {
		h.send(t, sess, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	}
	h.send(t, tab2, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "C9"})
	frames(bob)

	h.svc.Close(tab1)
	assert.Empty(t, frames(bob), "alice is still present through another tab")

	_, held, err := h.svc.Locks.Holder(context.Background(), "C9")
	require.NoError(t, err)
	assert.True(t, held, "locks of other sessions survive")

	h.svc.Close(tab2)
	assert.Equal(t, []string{protocol.TypeLockReleased, protocol.TypeUserLeft}, types(frames(bob)))
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)
	frames(bob)

	h.send(t, alice, protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomID: "R1"})
	assert.Equal(t, []string{protocol.TypeLeftRoom}, types(frames(alice)))
	assert.Equal(t, []string{protocol.TypeUserLeft}, types(frames(bob)))

	h.send(t, alice, protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomID: "R1"})
	assert.Equal(t, []string{protocol.TypeLeftRoom}, types(frames(alice)))
	assert.Empty(t, frames(bob))
}

func TestLeavingRoomReleasesLocks(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit leave", func(t *testing.T) {
		h := newHarness(t, nil)
		alice, bob := h.connect("alice"), h.connect("bob")
		h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
		h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
		h.send(t, alice, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "comp-1"})
		frames(alice)
		frames(bob)

		h.send(t, alice, protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomID: "R1"})
		assert.Equal(t, []string{protocol.TypeLeftRoom}, types(frames(alice)))
		got := frames(bob)
		require.Equal(t, []string{protocol.TypeLockReleased, protocol.TypeUserLeft}, types(got))
		assert.Equal(t, "comp-1", decodeData[protocol.LockReleasedData](t, got[0]).ResourceID)

		_, held, err := h.svc.Locks.Holder(ctx, "comp-1")
		require.NoError(t, err)
		assert.False(t, held)
		assert.Empty(t, alice.heldLocks())

		h.send(t, bob, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "comp-1"})
		got = frames(bob)
		require.Equal(t, []string{protocol.TypeLockGranted}, types(got))
		assert.Equal(t, "bob", decodeData[protocol.LockGrantedData](t, got[0]).UserID)
	})

	t.Run("switching rooms", func(t *testing.T) {
		h := newHarness(t, nil)
		alice, bob, carol := h.connect("alice"), h.connect("bob"), h.connect("carol")
		h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
		h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
		h.send(t, carol, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R2"})
		h.send(t, alice, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "comp-1"})
		frames(alice)
		frames(bob)
		frames(carol)

		h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R2"})
		assert.Equal(t, []string{protocol.TypeLockReleased, protocol.TypeUserLeft}, types(frames(bob)))
		assert.Equal(t, []string{protocol.TypeUserJoined}, types(frames(carol)))

		_, held, err := h.svc.Locks.Holder(ctx, "comp-1")
		require.NoError(t, err)
		assert.False(t, held)
	})
}

func TestDependencyFailureKeepsSession(t *testing.T) {
	store := &flakyPresence{Store: presence.NewMemoryStore()}
	h := newHarnessWithPresence(t, nil, store)
	alice := h.connect("alice")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)

	store.down.Store(true)
	h.send(t, alice, protocol.TypeUserStatus, protocol.UserStatus{Status: "away"})
	got := frames(alice)
	require.Equal(t, []string{protocol.TypeError}, types(got))
	assert.Equal(t, protocol.ErrorData{Code: "unavailable", Message: "try again"},
		decodeData[protocol.ErrorData](t, got[0]))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DependencyErrors.WithLabelValues(protocol.TypeUserStatus)))

	room, ok := h.svc.Registry.RoomOf(alice.ID)
	require.True(t, ok)
	assert.Equal(t, "R1", room)
	assert.NoError(t, alice.Context().Err())

	h.send(t, alice, protocol.TypePing, protocol.Ping{})
	assert.Equal(t, []string{protocol.TypePong}, types(frames(alice)))
}

func TestDisconnectCleanupSurvivesPresenceFailure(t *testing.T) {
	store := &flakyPresence{Store: presence.NewMemoryStore()}
	h := newHarnessWithPresence(t, nil, store)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, alice, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "comp-1"})
	frames(alice)
	frames(bob)

	store.down.Store(true)
	h.svc.Close(alice)

	_, held, err := h.svc.Locks.Holder(context.Background(), "comp-1")
	require.NoError(t, err)
	assert.False(t, held)
	assert.Equal(t, []string{protocol.TypeLockReleased, protocol.TypeUserLeft}, types(frames(bob)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DependencyErrors.WithLabelValues("disconnect")))
	assert.Equal(t, 1, h.svc.SessionCount())
}

func TestCloseDuringJoinLeavesUserOffline(t *testing.T) {
	store := &flakyPresence{Store: presence.NewMemoryStore()}
	h := newHarnessWithPresence(t, nil, store)
	alice := h.connect("alice")

	// The disconnect lands while the join's "active" write is in flight, so
	// the cleanup's "offline" write reaches the store first.
	store.beforeWrite = func(rec presence.Record) {
		require.Equal(t, presence.StatusActive, rec.Status)
		h.svc.Close(alice)
	}
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})

	roster, err := h.svc.Presence.ActiveRoster(context.Background(), "R1")
	require.NoError(t, err)
	assert.Empty(t, roster)
	_, ok := h.svc.Registry.RoomOf(alice.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, h.svc.SessionCount())
}

func TestUserStatus(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.connect("alice")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)

	tests := []struct {
		name   string
		status string
		want   string
	}{
		{name: "idle", status: "idle", want: protocol.TypePresenceUpdate},
		{name: "case insensitive", status: "AWAY", want: protocol.TypePresenceUpdate},
		{name: "unknown status", status: "sleeping", want: protocol.TypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.send(t, alice, protocol.TypeUserStatus, protocol.UserStatus{Status: tt.status})
			got := frames(alice)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Type)
		})
	}
}

func TestCommentsAndReactions(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)
	frames(bob)

	h.send(t, alice, protocol.TypeCommentCreate, protocol.CommentCreate{ResourceType: "component", ResourceID: "C1", Content: "nice"})
	for _, sess := range []*Session{alice, bob} {
		got := frames(sess)
		require.Equal(t, []string{protocol.TypeCommentAdded}, types(got))
		c := decodeData[protocol.CommentAddedData](t, got[0]).Comment
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "alice", c.UserID)
		assert.Equal(t, "R1", c.RoomID)
	}

	h.send(t, bob, protocol.TypeReactionAdd, protocol.ReactionAdd{CommentID: "c-1", Emoji: "👍"})
	assert.Equal(t, []string{protocol.TypeReactionAdded}, types(frames(alice)))

	var actions []string
	for len(actions) < 2 {
		select {
		case ev := <-h.activity:
			assert.Equal(t, "R1", ev.RoomID)
			actions = append(actions, ev.Action)
		case <-time.After(time.Second):
			t.Fatalf("expected two activity events, got %v", actions)
		}
	}
	assert.ElementsMatch(t, []string{activity.ActionCommentCreated, activity.ActionCommentReacted}, actions)
}

func TestTypingExcludesSender(t *testing.T) {
	h := newHarness(t, nil)
	alice, bob := h.connect("alice"), h.connect("bob")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	frames(alice)
	frames(bob)

	h.send(t, alice, protocol.TypeTypingStart, protocol.TypingStart{ResourceID: "C1", ResourceType: "component"})
	h.send(t, alice, protocol.TypeTypingStop, protocol.TypingStop{ResourceID: "C1"})
	assert.Empty(t, frames(alice))

	got := frames(bob)
	require.Equal(t, []string{protocol.TypeTypingStatus, protocol.TypeTypingStatus}, types(got))
	assert.True(t, decodeData[protocol.TypingData](t, got[0]).Typing)
	assert.False(t, decodeData[protocol.TypingData](t, got[1]).Typing)
}

func TestShutdownClosesSessions(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.connect("alice")
	h.send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "R1"})
	h.send(t, alice, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: "C1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))
	assert.Equal(t, 0, h.svc.SessionCount())
	assert.Equal(t, 0, h.svc.Router.Sessions())

	_, held, err := h.svc.Locks.Holder(context.Background(), "C1")
	require.NoError(t, err)
	assert.False(t, held)
}
