package relay

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/presence"
	"github.com/dreamware/designsync/internal/protocol"
)

// Close disconnects sess. It is safe to call any number of times from any
// goroutine; the cleanup runs once.
func (s *Service) Close(sess *Session) {
	sess.once.Do(func() { s.cleanup(sess) })
}

// cleanup runs every disconnect step even when an earlier one fails. It uses
// a fresh context because the session's own context is already canceled.
func (s *Service) cleanup(sess *Session) {
	defer s.wg.Done()
	sess.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
	defer cancel()

	var errs error
	room, wasMember := s.Registry.LeaveAll(sess.ID)
	last := s.forget(sess)

	userGone := wasMember && !s.userStillIn(sess.UserID, room)
	if userGone {
		if err := s.Presence.SetStatus(ctx, sess.UserID, room, presence.StatusOffline); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := s.Cursors.Forget(ctx, sess.UserID, room); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	lockRoom := ""
	if wasMember {
		lockRoom = room
	}
	errs = multierr.Append(errs, s.releaseSessionLocks(ctx, sess, lockRoom))

	if last {
		swept, err := s.Locks.ReleaseAll(ctx, sess.UserID)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		for _, resourceID := range swept {
			s.Metrics.Locks.WithLabelValues("swept").Inc()
			if wasMember {
				s.Router.Publish(room, protocol.LockReleased(resourceID), "")
			}
		}
	}

	if userGone {
		s.Router.Publish(room, protocol.UserLeft(sess.UserID, room), sess.ID)
	}

	s.Router.Unregister(sess.ID)
	s.Metrics.Connections.Dec()

	fields := []zap.Field{
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("room_id", room),
	}
	if errs != nil {
		s.Metrics.DependencyErrors.WithLabelValues("disconnect").Add(float64(len(multierr.Errors(errs))))
		s.Logger.Warn("session closed with cleanup errors", append(fields, zap.Error(errs))...)
		return
	}
	s.Logger.Info("session closed", fields...)
}

// releaseSessionLocks gives back every lock sess acquired and announces each
// release to room, if room is set. A lock whose release fails stays tracked.
func (s *Service) releaseSessionLocks(ctx context.Context, sess *Session, room string) error {
	var errs error
	for _, resourceID := range sess.heldLocks() {
		released, err := s.Locks.Release(ctx, resourceID, sess.UserID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sess.untrackLock(resourceID)
		if released {
			s.Metrics.Locks.WithLabelValues("released").Inc()
			if room != "" {
				s.Router.Publish(room, protocol.LockReleased(resourceID), "")
			}
		}
	}
	return errs
}
