package stomp

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is a client-side STOMP connection multiplexed over a single
// WebSocket. Writes are serialized; reads are expected from a single
// reader goroutine.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	nextSub int
}

// Dial opens the WebSocket, performs the CONNECT handshake and waits for
// CONNECTED. Heart-beating is negotiated off; the caller owns liveness.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Conn{ws: ws}

	connect := NewFrame(CmdConnect, map[string]string{
		"accept-version": "1.1,1.2",
		"heart-beat":     "0,0",
	}, nil)
	if err := c.writeFrame(connect); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}

	reply, err := c.ReadFrame()
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("stomp connect: %w", err)
	}
	if reply.Command != CmdConnected {
		_ = ws.Close()
		return nil, fmt.Errorf("stomp connect: broker answered %s: %s", reply.Command, reply.Header("message"))
	}

	return c, nil
}

// Subscribe registers a subscription and returns its id. The broker will
// tag inbound MESSAGE frames with the same id in the subscription header.
func (c *Conn) Subscribe(destination string) (string, error) {
	c.writeMu.Lock()
	id := "sub-" + strconv.Itoa(c.nextSub)
	c.nextSub++
	c.writeMu.Unlock()

	frame := NewFrame(CmdSubscribe, map[string]string{
		"id":          id,
		"destination": destination,
		"ack":         "auto",
	}, nil)
	if err := c.writeFrame(frame); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return id, nil
}

// Send publishes a JSON body to a destination. Fire-and-forget: no
// receipt is requested.
func (c *Conn) Send(destination string, body []byte) error {
	frame := NewFrame(CmdSend, map[string]string{
		"destination":  destination,
		"content-type": "application/json",
	}, body)
	if err := c.writeFrame(frame); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// ReadFrame blocks until the next frame arrives. It must be called from
// a single goroutine.
func (c *Conn) ReadFrame() (*Frame, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Disconnect sends DISCONNECT and closes the WebSocket. Safe to call
// after a failed write; the close error wins only if the frame went out.
func (c *Conn) Disconnect() error {
	err := c.writeFrame(NewFrame(CmdDisconnect, nil, nil))
	if closeErr := c.ws.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *Conn) writeFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, f.Marshal())
}
