package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lichka/internal/models"
	"lichka/internal/stomp"
)

type fakeConn struct {
	mu          sync.Mutex
	subs        []string
	sends       []sentFrame
	frames      chan *stomp.Frame
	disconnects int
	closeOnce   sync.Once
}

type sentFrame struct {
	dest string
	body []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan *stomp.Frame, 16)}
}

func (c *fakeConn) Subscribe(destination string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, destination)
	return "sub-0", nil
}

func (c *fakeConn) Send(destination string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, sentFrame{dest: destination, body: body})
	return nil
}

func (c *fakeConn) ReadFrame() (*stomp.Frame, error) {
	f, ok := <-c.frames
	if !ok {
		return nil, io.EOF
	}
	return f, nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.frames) })
	return nil
}

func (c *fakeConn) deliver(ev models.ChatEvent) {
	body, _ := json.Marshal(ev)
	c.frames <- stomp.NewFrame(stomp.CmdMessage, map[string]string{
		"destination":  "/user/queue/messages",
		"subscription": "sub-0",
	}, body)
}

func (c *fakeConn) sentTo(dest string) []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentFrame
	for _, s := range c.sends {
		if s.dest == dest {
			out = append(out, s)
		}
	}
	return out
}

type recordingSink struct {
	chat   chan models.ChatEvent
	typing chan models.ChatEvent
	read   chan models.ChatEvent
	status chan models.ChatEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		chat:   make(chan models.ChatEvent, 16),
		typing: make(chan models.ChatEvent, 16),
		read:   make(chan models.ChatEvent, 16),
		status: make(chan models.ChatEvent, 16),
	}
}

func (s *recordingSink) OnChat(ev models.ChatEvent)   { s.chat <- ev }
func (s *recordingSink) OnTyping(ev models.ChatEvent) { s.typing <- ev }
func (s *recordingSink) OnRead(ev models.ChatEvent)   { s.read <- ev }
func (s *recordingSink) OnStatus(ev models.ChatEvent) { s.status <- ev }

func recv(t *testing.T, ch chan models.ChatEvent) models.ChatEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return models.ChatEvent{}
	}
}

func newTestSession(sink EventSink, conn *fakeConn) *Session {
	s := NewSession("ws://test/ws", "alice", sink)
	s.dial = func(context.Context, string) (stompConn, error) {
		return conn, nil
	}
	return s
}

func TestSession_ConnectSubscribesAndAnnounces(t *testing.T) {
	conn := newFakeConn()
	sink := newRecordingSink()
	s := newTestSession(sink, conn)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, models.StateConnected, s.State())

	assert.Equal(t, []string{
		"/user/queue/messages",
		"/topic/user/alice/queue/messages",
		"/user/queue/typing",
		"/user/queue/status",
	}, conn.subs)

	joins := conn.sentTo("/app/chat.addUser")
	require.Len(t, joins, 1)
	var join models.ChatEvent
	require.NoError(t, json.Unmarshal(joins[0].body, &join))
	assert.Equal(t, models.EventJoin, join.Type)
	assert.Equal(t, "alice", join.Sender)

	s.Disconnect()
}

func TestSession_SendRoutesByEventType(t *testing.T) {
	conn := newFakeConn()
	s := newTestSession(newRecordingSink(), conn)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	cases := map[models.EventType]string{
		models.EventChat:   "/app/chat.sendPrivateMessage",
		models.EventTyping: "/app/chat.typing",
		models.EventRead:   "/app/chat.markAsRead",
	}
	for typ, dest := range cases {
		require.NoError(t, s.Send(models.ChatEvent{Type: typ, Sender: "alice", ConversationID: "c1"}))
		assert.Len(t, conn.sentTo(dest), 1, "destination for %s", typ)
	}

	err := s.Send(models.ChatEvent{Type: models.EventOnline, Sender: "alice"})
	assert.Error(t, err, "ONLINE has no publish destination")
}

func TestSession_RoutesInboundByType(t *testing.T) {
	conn := newFakeConn()
	sink := newRecordingSink()
	s := newTestSession(sink, conn)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	now := time.Now().UTC().Truncate(time.Second)
	conn.deliver(models.ChatEvent{Type: models.EventChat, Sender: "bob", ConversationID: "c1", Content: "hi", Timestamp: now})
	conn.deliver(models.ChatEvent{Type: models.EventTyping, Sender: "bob", Timestamp: now})
	conn.deliver(models.ChatEvent{Type: models.EventRead, Sender: "bob", ConversationID: "c1", Timestamp: now})
	conn.deliver(models.ChatEvent{Type: models.EventOnline, Sender: "bob", Timestamp: now})

	chat := recv(t, sink.chat)
	assert.Equal(t, "hi", chat.Content)
	assert.True(t, chat.Timestamp.Equal(now), "timestamp must survive the wire")

	assert.Equal(t, "bob", recv(t, sink.typing).Sender)
	assert.Equal(t, "c1", recv(t, sink.read).ConversationID)
	assert.Equal(t, models.EventOnline, recv(t, sink.status).Type)
}

func TestSession_ConnectFailure(t *testing.T) {
	s := NewSession("ws://test/ws", "alice", newRecordingSink())
	dialErr := errors.New("handshake refused")
	s.dial = func(context.Context, string) (stompConn, error) {
		return nil, dialErr
	}

	err := s.Connect(context.Background())
	require.Error(t, err)

	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, models.StateFailed, s.State())
}

func TestSession_SendWhileDisconnected(t *testing.T) {
	s := NewSession("ws://test/ws", "alice", newRecordingSink())
	err := s.Send(models.ChatEvent{Type: models.EventChat, Sender: "alice", ConversationID: "c1"})
	assert.Error(t, err)
}

func TestSession_DisconnectIdempotent(t *testing.T) {
	conn := newFakeConn()
	s := newTestSession(newRecordingSink(), conn)
	require.NoError(t, s.Connect(context.Background()))

	s.Disconnect()
	s.Disconnect()
	s.Disconnect()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 1, conn.disconnects, "only the first Disconnect reaches the wire")
	assert.Equal(t, models.StateDisconnected, s.State())
}
