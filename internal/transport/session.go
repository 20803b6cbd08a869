// Package transport owns the client's STOMP session: one WebSocket per
// logged-in user, four subscriptions, and asynchronous publishing. It
// classifies inbound frames and hands them to an EventSink; it makes no
// delivery guarantees and runs no reconnect loop of its own.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"lichka/internal/models"
	"lichka/internal/stomp"
)

const (
	subMessages        = "/user/queue/messages"
	subMessagesFallbck = "/topic/user/%s/queue/messages"
	subTyping          = "/user/queue/typing"
	subStatus          = "/user/queue/status"

	pubSendMessage = "/app/chat.sendPrivateMessage"
	pubTyping      = "/app/chat.typing"
	pubMarkAsRead  = "/app/chat.markAsRead"
	pubAddUser     = "/app/chat.addUser"
)

// ConnectError marks a failed handshake or protocol negotiation. Callers
// surface it as a connection-status value, never as a panic across the
// UI boundary.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect failed: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// EventSink receives classified events in transport delivery order.
type EventSink interface {
	OnChat(models.ChatEvent)
	OnTyping(models.ChatEvent)
	OnRead(models.ChatEvent)
	OnStatus(models.ChatEvent)
}

type stompConn interface {
	Subscribe(destination string) (string, error)
	Send(destination string, body []byte) error
	ReadFrame() (*stomp.Frame, error)
	Disconnect() error
}

type Session struct {
	url  string
	user string
	sink EventSink
	dial func(ctx context.Context, url string) (stompConn, error)

	mu      sync.Mutex
	conn    stompConn
	state   models.ConnState
	closing bool
}

func NewSession(url, user string, sink EventSink) *Session {
	return &Session{
		url:  url,
		user: user,
		sink: sink,
		dial: func(ctx context.Context, url string) (stompConn, error) {
			return stomp.Dial(ctx, url)
		},
		state: models.StateDisconnected,
	}
}

// Connect dials the broker, subscribes the user's queues plus the
// broadcast fallback (some broker setups route user destinations
// differently), announces presence with a JOIN, and starts the read
// pump. On failure the session lands in StateFailed and a ConnectError
// is returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == models.StateConnected || s.state == models.StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = models.StateConnecting
	s.closing = false
	s.mu.Unlock()

	conn, err := s.dial(ctx, s.url)
	if err != nil {
		s.setState(models.StateFailed)
		return &ConnectError{Err: err}
	}

	subs := []string{
		subMessages,
		fmt.Sprintf(subMessagesFallbck, s.user),
		subTyping,
		subStatus,
	}
	for _, dest := range subs {
		if _, err := conn.Subscribe(dest); err != nil {
			_ = conn.Disconnect()
			s.setState(models.StateFailed)
			return &ConnectError{Err: err}
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.state = models.StateConnected
	s.mu.Unlock()

	if err := s.Send(models.ChatEvent{
		Type:   models.EventJoin,
		Sender: s.user,
	}); err != nil {
		slog.Warn("join announce failed", "user", s.user, "error", err)
	}

	go s.readLoop(conn)
	return nil
}

// Send publishes the event to the destination implied by its type.
// Fire-and-forget: an error means the frame never left this process,
// nothing more.
func (s *Session) Send(ev models.ChatEvent) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("session not connected")
	}

	var dest string
	switch ev.Type {
	case models.EventChat:
		dest = pubSendMessage
	case models.EventTyping:
		dest = pubTyping
	case models.EventRead:
		dest = pubMarkAsRead
	case models.EventJoin:
		dest = pubAddUser
	default:
		return fmt.Errorf("no publish destination for event type %s", ev.Type)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return conn.Send(dest, body)
}

// Disconnect releases the transport. Idempotent; in-flight publishes
// are not flushed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.closing = true
	s.state = models.StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Debug("disconnect", "error", err)
		}
	}
}

func (s *Session) setState(st models.ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) State() models.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool {
	return s.State() == models.StateConnected
}

func (s *Session) readLoop(conn stompConn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			s.mu.Lock()
			deliberate := s.closing
			if !deliberate {
				s.state = models.StateDisconnected
				s.conn = nil
			}
			s.mu.Unlock()
			if !deliberate {
				slog.Warn("transport read failed", "user", s.user, "error", err)
			}
			return
		}

		switch frame.Command {
		case stomp.CmdMessage:
			s.route(frame)
		case stomp.CmdError:
			slog.Error("broker error frame", "message", frame.Header("message"))
		default:
			// RECEIPT and friends: nothing subscribes to them.
		}
	}
}

func (s *Session) route(frame *stomp.Frame) {
	var ev models.ChatEvent
	if err := json.Unmarshal(frame.Body, &ev); err != nil {
		slog.Warn("undecodable event", "destination", frame.Header("destination"), "error", err)
		return
	}

	switch ev.Type {
	case models.EventChat:
		s.sink.OnChat(ev)
	case models.EventTyping:
		s.sink.OnTyping(ev)
	case models.EventRead:
		s.sink.OnRead(ev)
	case models.EventJoin, models.EventLeave, models.EventOnline, models.EventOffline:
		s.sink.OnStatus(ev)
	default:
		slog.Warn("unknown event type", "type", ev.Type)
	}
}
