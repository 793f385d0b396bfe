package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/pokerhall/holdemd/internal/game"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// ErrSessionClosed is returned from sends after the session shut down.
var ErrSessionClosed = websocket.ErrCloseSent

// Session is one authenticated websocket connection bound to a table
// runtime. It implements TableClient.
type Session struct {
	conn    *websocket.Conn
	runtime *Runtime
	logger  *log.Logger

	userID  int64
	showAll atomic.Bool

	send      chan any
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection for a verified user.
func NewSession(conn *websocket.Conn, runtime *Runtime, userID int64, logger *log.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:    conn,
		runtime: runtime,
		logger:  logger.WithPrefix("session").With("user_id", userID),
		userID:  userID,
		send:    make(chan any, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start attaches the session to the runtime and begins the pumps.
// It returns once the connection is gone.
func (s *Session) Start() {
	go s.writePump()
	s.runtime.Attach(s)
	s.readPump()
	s.runtime.Detach(s)
	_ = s.Close()
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.send)
		err = s.conn.Close()
	})
	return err
}

// UserID returns the authenticated user.
func (s *Session) UserID() int64 { return s.userID }

// ShowAll reports the session's reveal-everything toggle.
func (s *Session) ShowAll() bool { return s.showAll.Load() }

// SendState queues a table_state frame.
func (s *Session) SendState(snap *Snapshot) error {
	return s.enqueue(StateMessage{Type: MessageTableState, Payload: snap})
}

// SendError queues an error frame.
func (s *Session) SendError(code, message string) error {
	return s.enqueue(ErrorMessage{Type: MessageError, Code: code, Message: message})
}

func (s *Session) enqueue(msg any) error {
	defer func() {
		// The send channel closes during shutdown while broadcasts may
		// still hold a reference to this session.
		if r := recover(); r != nil {
			s.logger.Debug("send on closed session", "recovered", r)
		}
	}()

	select {
	case s.send <- msg:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		s.logger.Warn("send buffer full, closing session")
		_ = s.Close()
		return ErrSessionClosed
	}
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket read error", "error", err)
			}
			return
		}
		s.handleFrame(data)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// handleFrame dispatches one client frame. Unknown or malformed frames
// get an error reply; the session stays open.
func (s *Session) handleFrame(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = s.SendError(CodeInvalidJSON, "failed to parse message")
		return
	}

	switch msg.Type {
	case MessagePlayerAction:
		var payload ActionPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				_ = s.SendError(CodeInvalidJSON, "failed to parse action payload")
				return
			}
		}
		if payload.Action == "" {
			_ = s.SendError(CodeMissingAction, "action is required")
			return
		}
		action, err := game.ParseAction(payload.Action)
		if err != nil {
			_ = s.SendError(CodeInvalidAction, "unknown action: "+payload.Action)
			return
		}
		s.runtime.HandleAction(s, action, payload.Amount)

	case MessageToggleShowAll:
		var payload ShowAllPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				_ = s.SendError(CodeInvalidJSON, "failed to parse show all payload")
				return
			}
		}
		if !s.runtime.CanToggleShowAll(s.userID) {
			_ = s.SendError(CodeSpectatorOnly, "only spectators can toggle show all")
			return
		}
		s.showAll.Store(payload.Show)
		s.runtime.RefreshClient(s)

	default:
		_ = s.SendError(CodeUnknownMessageType, "unknown message type: "+msg.Type)
	}
}
