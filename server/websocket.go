package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/domain"
)

const writeTimeout = 10 * time.Second

// session is one UI connected over websocket. Writes from concurrent imports are serialized.
type session struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (s *session) send(msg domain.OutboundMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// sessionNotifier sends the events of one request back to the session that asked for it.
type sessionNotifier struct {
	session   *session
	requestID string
}

// closeGoingAway tells the UI the server is going away and drops the connection, which ends
// the session's read loop.
func (s *session) closeGoingAway() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = s.conn.Close()
}

func (n *sessionNotifier) Notify(_ context.Context, event domain.ProgressEvent) error {
	return n.session.send(domain.NewOutboundMessage(event, n.requestID))
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := &session{
		id:   uuid.New().String(),
		conn: conn,
	}
	if !s.register(sess) {
		sess.closeGoingAway()
		return
	}
	defer s.unregister(sess)
	logger := s.logger.With(zap.String("session_id", sess.id))
	logger.Info("ui session opened")
	defer logger.Info("ui session closed")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		msg, err := domain.DecodeUIMessage(data)
		if errors.Is(err, domain.ErrIgnoredMessage) {
			continue
		}
		if err != nil {
			logger.Warn("malformed ui message", zap.Error(err))
			continue
		}

		requestID := msg.RequestID
		if requestID == "" {
			requestID = uuid.New().String()
		}
		notifier := &sessionNotifier{session: sess, requestID: requestID}

		if !s.startImport() {
			return
		}
		go func(url string) {
			defer s.inflight.Done()
			if err := s.importer.ImportImage(s.ctx, url, notifier); err != nil {
				logger.Debug("import failed", zap.String("request_id", requestID), zap.Error(err))
			}
		}(msg.Request().URL)
	}
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.readers.Add(1)
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.readers.Done()
}

// startImport reserves an inflight slot. It fails once the server is shutting down, so no
// Add can race the final Wait.
func (s *Server) startImport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	s.closed = true
	open := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.closeGoingAway()
	}
}
