package relay

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/designsync/internal/auth"
	"github.com/dreamware/designsync/internal/protocol"
)

// ServeHTTP authenticates the handshake and upgrades it. A missing or bad
// credential is refused with 401 before any socket is opened.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	id, err := s.Authenticator.Authenticate(auth.TokenFromRequest(r))
	if err != nil {
		reason := auth.Reason(err)
		s.Metrics.AuthRejections.WithLabelValues(reason).Inc()
		s.Logger.Info("handshake rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("reason", reason),
			zap.Error(err))
		http.Error(w, reason, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.Logger.Warn("websocket upgrade failed", zap.String("user_id", id.UserID), zap.Error(err))
		return
	}

	sess := s.open(id, conn)
	go s.writePump(sess)
	go s.readPump(sess)
}

func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}

// readPump is the session's control loop. It exits on any read error and
// then runs the disconnect cleanup.
func (s *Service) readPump(sess *Session) {
	defer s.Close(sess)

	conn := sess.conn
	conn.SetReadLimit(s.opts.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.Logger.Info("connection lost", zap.String("session_id", sess.ID), zap.Error(err))
			}
			return
		}

		if kind != websocket.TextMessage {
			s.Metrics.InboundRejected.WithLabelValues("binary").Inc()
			s.Router.SendTo(sess.ID, protocol.Error("invalid", "text frames only"))
			continue
		}
		if !sess.limiter.Allow() {
			s.Metrics.InboundRejected.WithLabelValues("rate_limited").Inc()
			s.Router.SendTo(sess.ID, protocol.Error("rate_limited", "slow down"))
			continue
		}

		msg, err := protocol.Decode(frame)
		if err != nil {
			s.Metrics.InboundRejected.WithLabelValues("invalid").Inc()
			s.replyError(sess, "decode", err)
			continue
		}
		s.handle(sess.ctx, sess, msg)
	}
}

// writePump drains the outbox onto the socket and keeps the peer alive with
// pings. A closed outbox means the session was cleaned up.
func (s *Service) writePump(sess *Session) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sess.outbox:
			sess.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Logger.Debug("write failed", zap.String("session_id", sess.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
