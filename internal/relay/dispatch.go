package relay

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/activity"
	"github.com/dreamware/designsync/internal/apperr"
	"github.com/dreamware/designsync/internal/presence"
	"github.com/dreamware/designsync/internal/protocol"
)

var errNoRoom = errors.New("not in a room")

// handle dispatches one decoded message. It is only ever called from the
// session's read loop.
func (s *Service) handle(ctx context.Context, sess *Session, msg protocol.Message) {
	var err error
	switch m := msg.(type) {
	case protocol.JoinRoom:
		err = s.joinRoom(ctx, sess, m)
	case protocol.LeaveRoom:
		s.leaveRoom(ctx, sess, m.RoomID)
	case protocol.Ping:
		s.Router.SendTo(sess.ID, protocol.Pong())
	default:
		room, ok := s.Registry.RoomOf(sess.ID)
		if !ok {
			err = &apperr.Error{Kind: apperr.KindValidation, Op: msg.MessageType(), Msg: "join a room first", Err: errNoRoom}
			break
		}
		err = s.handleInRoom(ctx, sess, room, msg)
	}
	if err != nil {
		s.replyError(sess, msg.MessageType(), err)
	}
}

func (s *Service) handleInRoom(ctx context.Context, sess *Session, room string, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.CursorMove:
		return s.cursorMove(ctx, sess, room, m)
	case protocol.SelectionChange:
		s.Router.Publish(room, protocol.SelectionUpdate(sess.UserID, m.ResourceID, m.Selection), sess.ID)
	case protocol.UserStatus:
		return s.userStatus(ctx, sess, room, m)
	case protocol.LockAcquire:
		return s.lockAcquire(ctx, sess, room, m.ResourceID)
	case protocol.LockRelease:
		return s.lockRelease(ctx, sess, room, m.ResourceID)
	case protocol.ResourceUpdate:
		return s.resourceUpdate(ctx, sess, room, m)
	case protocol.CommentCreate:
		s.commentCreate(sess, room, m)
	case protocol.ReactionAdd:
		s.Router.Publish(room, protocol.ReactionAdded(sess.UserID, m), "")
		s.Activity.Record(activity.Event{
			Action:     activity.ActionCommentReacted,
			UserID:     sess.UserID,
			RoomID:     room,
			ResourceID: m.CommentID,
			Metadata:   map[string]any{"emoji": m.Emoji},
		})
	case protocol.TypingStart:
		s.Router.Publish(room, protocol.TypingStatus(sess.UserID, m.ResourceID, m.ResourceType, true), sess.ID)
	case protocol.TypingStop:
		s.Router.Publish(room, protocol.TypingStatus(sess.UserID, m.ResourceID, m.ResourceType, false), sess.ID)
	default:
		s.Logger.Warn("unhandled message type", zap.String("type", msg.MessageType()))
	}
	return nil
}

func (s *Service) joinRoom(ctx context.Context, sess *Session, m protocol.JoinRoom) error {
	res, err := s.Registry.Join(ctx, sess.ID, sess.UserID, m.RoomID)
	if err != nil {
		s.Metrics.Joins.WithLabelValues("denied").Inc()
		return err
	}
	if sess.ctx.Err() != nil {
		// Disconnected while the join was in flight; undo it.
		s.Registry.Leave(sess.ID, m.RoomID)
		return nil
	}
	s.Metrics.Joins.WithLabelValues("admitted").Inc()

	if res.Previous != "" {
		// Locks taken in the previous room are announced there.
		if err := s.releaseSessionLocks(ctx, sess, res.Previous); err != nil {
			s.dependencyFailed("join-room", err)
		}
		s.departed(ctx, sess, res.Previous)
	}

	// Presence is best-effort here: the join already happened.
	if err := s.Presence.SetStatus(ctx, sess.UserID, m.RoomID, presence.StatusActive); err != nil {
		s.dependencyFailed("join-room", err)
	}
	if sess.ctx.Err() != nil {
		// Closed during the presence write. The cleanup's offline write may
		// have landed first, so write it again.
		s.Registry.Leave(sess.ID, m.RoomID)
		if !s.userStillIn(sess.UserID, m.RoomID) {
			if err := s.Presence.SetStatus(context.WithoutCancel(ctx), sess.UserID, m.RoomID, presence.StatusOffline); err != nil {
				s.dependencyFailed("join-room", err)
			}
		}
		return nil
	}

	roster, err := s.Presence.ActiveRoster(ctx, m.RoomID)
	if err != nil {
		s.dependencyFailed("join-room", err)
		roster = nil
	}
	s.Router.SendTo(sess.ID, protocol.JoinedRoom(m.RoomID, roster))

	others := make([]string, 0, len(roster))
	for _, e := range roster {
		if e.UserID != sess.UserID {
			others = append(others, e.UserID)
		}
	}
	if len(others) > 0 {
		cursors, err := s.Cursors.Snapshot(ctx, m.RoomID, others)
		if err != nil {
			s.dependencyFailed("join-room", err)
		}
		if len(cursors) > 0 {
			s.Router.SendTo(sess.ID, protocol.CursorSnapshot(cursors))
		}
	}

	if !res.AlreadyMember {
		s.Router.Publish(m.RoomID, protocol.UserJoined(sess.UserID, m.RoomID), sess.ID)
	}

	s.Logger.Debug("session joined room",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("room_id", m.RoomID),
		zap.String("previous", res.Previous))
	return nil
}

func (s *Service) leaveRoom(ctx context.Context, sess *Session, roomID string) {
	if s.Registry.Leave(sess.ID, roomID) {
		if err := s.releaseSessionLocks(ctx, sess, roomID); err != nil {
			s.dependencyFailed("leave-room", err)
		}
		s.departed(ctx, sess, roomID)
	}
	s.Router.SendTo(sess.ID, protocol.LeftRoom(roomID))
}

// departed announces that sess is no longer in roomID. Presence and cursors
// are only cleared when no other session of the same user remains there.
func (s *Service) departed(ctx context.Context, sess *Session, roomID string) error {
	if s.userStillIn(sess.UserID, roomID) {
		return nil
	}

	var errs error
	if err := s.Presence.SetStatus(ctx, sess.UserID, roomID, presence.StatusOffline); err != nil {
		s.dependencyFailed("presence-offline", err)
		errs = multierr.Append(errs, err)
	}
	if err := s.Cursors.Forget(ctx, sess.UserID, roomID); err != nil {
		s.dependencyFailed("cursor-forget", err)
		errs = multierr.Append(errs, err)
	}
	s.Router.Publish(roomID, protocol.UserLeft(sess.UserID, roomID), sess.ID)
	return errs
}

func (s *Service) userStillIn(userID, roomID string) bool {
	for _, m := range s.Registry.MembersOf(roomID) {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (s *Service) cursorMove(ctx context.Context, sess *Session, room string, m protocol.CursorMove) error {
	cur := protocol.Cursor{UserID: sess.UserID, ElementID: m.ElementID, X: m.X, Y: m.Y}
	// The cache only seeds late joiners; a failed write must not stall the
	// live update.
	if err := s.Cursors.Put(ctx, room, cur); err != nil {
		s.dependencyFailed("cursor-move", err)
	}
	s.Router.Publish(room, protocol.CursorUpdate(cur), sess.ID)
	return nil
}

func (s *Service) userStatus(ctx context.Context, sess *Session, room string, m protocol.UserStatus) error {
	status, err := presence.ParseStatus(m.Status)
	if err != nil {
		return err
	}
	if err := s.Presence.SetStatus(ctx, sess.UserID, room, status); err != nil {
		return err
	}
	s.Router.Publish(room, protocol.PresenceUpdate(sess.UserID, status), "")
	return nil
}

func (s *Service) lockAcquire(ctx context.Context, sess *Session, room, resourceID string) error {
	res, err := s.Locks.Acquire(ctx, resourceID, sess.UserID)
	if err != nil {
		return err
	}
	if !res.Granted {
		s.Metrics.Locks.WithLabelValues("denied").Inc()
		s.Router.SendTo(sess.ID, protocol.LockDenied(resourceID, res.HeldBy))
		return nil
	}

	if sess.ctx.Err() != nil {
		// The disconnect cleanup may already have swept this session's
		// locks, so give this one back directly.
		_, err := s.Locks.Release(context.WithoutCancel(ctx), resourceID, sess.UserID)
		return err
	}
	s.Metrics.Locks.WithLabelValues("granted").Inc()
	sess.trackLock(resourceID)
	s.Router.Publish(room, protocol.LockGranted(resourceID, sess.UserID), "")
	return nil
}

func (s *Service) lockRelease(ctx context.Context, sess *Session, room, resourceID string) error {
	released, err := s.Locks.Release(ctx, resourceID, sess.UserID)
	if err != nil {
		return err
	}
	sess.untrackLock(resourceID)
	if released {
		s.Metrics.Locks.WithLabelValues("released").Inc()
		s.Router.Publish(room, protocol.LockReleased(resourceID), "")
	}
	return nil
}

func (s *Service) resourceUpdate(ctx context.Context, sess *Session, room string, m protocol.ResourceUpdate) error {
	holder, held, err := s.Locks.Holder(ctx, m.ResourceID)
	if err != nil {
		return err
	}
	if held && holder != sess.UserID {
		s.Router.SendTo(sess.ID, protocol.LockDenied(m.ResourceID, holder))
		return nil
	}

	s.Router.Publish(room, protocol.ResourceChanged(sess.UserID, m), sess.ID)

	action := activity.ActionComponentUpdated
	if m.ResourceType == protocol.ResourceToken {
		action = activity.ActionTokenUpdated
	}
	s.Activity.Record(activity.Event{
		Action:       action,
		UserID:       sess.UserID,
		RoomID:       room,
		ResourceID:   m.ResourceID,
		ResourceType: m.ResourceType,
	})
	return nil
}

func (s *Service) commentCreate(sess *Session, room string, m protocol.CommentCreate) {
	c := protocol.Comment{
		CreatedAt:    s.Clock.Now().UTC(),
		ID:           uuid.NewString(),
		UserID:       sess.UserID,
		RoomID:       room,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Content:      m.Content,
		ParentID:     m.ParentID,
	}
	s.Router.Publish(room, protocol.CommentAdded(c), "")

	meta := map[string]any{"commentId": c.ID}
	if c.ParentID != "" {
		meta["parentId"] = c.ParentID
	}
	s.Activity.Record(activity.Event{
		At:           c.CreatedAt,
		Action:       activity.ActionCommentCreated,
		UserID:       sess.UserID,
		RoomID:       room,
		ResourceID:   c.ResourceID,
		ResourceType: c.ResourceType,
		Metadata:     meta,
	})
}

// replyError maps err onto an error frame for the sender. The connection is
// kept open for every kind.
func (s *Service) replyError(sess *Session, op string, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		kind = apperr.KindDependency
	}
	if kind == apperr.KindDependency {
		s.dependencyFailed(op, err)
	} else {
		s.Logger.Debug("request rejected",
			zap.String("session_id", sess.ID),
			zap.String("op", op),
			zap.String("code", kind.String()),
			zap.Error(err))
	}
	s.Router.SendTo(sess.ID, protocol.Error(kind.String(), apperr.Message(err)))
}

func (s *Service) dependencyFailed(op string, err error) {
	s.Metrics.DependencyErrors.WithLabelValues(op).Inc()
	s.Logger.Warn("dependency call failed", zap.String("op", op), zap.Error(err))
}

