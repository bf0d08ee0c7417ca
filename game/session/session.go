// Package session tracks connected viewers and their WebSocket
// connections.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected viewer. Outbound writes go through SendChan
// so only the write pump touches the connection; a full channel drops
// the packet rather than blocking the sender.
type Session struct {
	AccountID int64
	Username  string
	Role      string

	Conn *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	closeOnce sync.Once
	logger    *zap.Logger
}

// New creates a Session and starts its write pump.
func New(accountID int64, username, role string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		AccountID: accountID,
		Username:  username,
		Role:      role,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		logger:    logger,
	}
	go s.writePump()
	return s
}

func (s *Session) write(messageType int, data []byte) error {
	_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.Conn.WriteMessage(messageType, data)
}

func (s *Session) writePump() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer s.Conn.Close()

	for {
		select {
		case data := <-s.SendChan:
			if err := s.write(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("account_id", s.AccountID), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and queues it. Undeliverable packets are dropped.
func (s *Session) Send(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw queues raw bytes without blocking.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if s.logger != nil {
			s.logger.Warn("send channel full, dropping packet",
				zap.Int64("account_id", s.AccountID))
		}
	}
}

// Close signals the write pump to shut down. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline pushes the liveness deadline out after inbound traffic.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
