// Package typing tracks "peer is typing" state in both directions:
// inbound events populate an expiring set, outbound notifications are
// throttled so a burst of keystrokes does not flood the broker.
package typing

import (
	"context"
	"log/slog"
	"time"

	"github.com/c-pro/geche"

	"lichka/internal/models"
)

// Tracker holds the set of peers currently typing to us. An entry lives
// for a fixed window counted from the first event in a burst; later
// events inside the window do not extend it. A refreshing debounce was
// considered and rejected: letting the flag drop and re-arm makes a
// "paused, then resumed" peer visible, which matches how the flag is
// rendered.
type Tracker struct {
	peers geche.Geche[string, time.Time]
}

func NewTracker(ctx context.Context, expiry time.Duration) *Tracker {
	cleanup := expiry / 10
	if cleanup < 50*time.Millisecond {
		cleanup = 50 * time.Millisecond
	}
	return &Tracker{
		peers: geche.NewMapTTLCache[string, time.Time](ctx, expiry, cleanup),
	}
}

// OnTypingEvent flags the sender as typing. No-op if the flag is already
// up, so the expiry window is not reset.
func (t *Tracker) OnTypingEvent(senderID string) {
	if _, err := t.peers.Get(senderID); err == nil {
		return
	}
	t.peers.Set(senderID, time.Now())
}

func (t *Tracker) IsTyping(peerID string) bool {
	_, err := t.peers.Get(peerID)
	return err == nil
}

// Peers lists everyone currently flagged as typing.
func (t *Tracker) Peers() []string {
	snap := t.peers.Snapshot()
	out := make([]string, 0, len(snap))
	for id := range snap {
		out = append(out, id)
	}
	return out
}

type publisher interface {
	Connected() bool
	Send(models.ChatEvent) error
}

// Notifier emits outbound typing indicators. At most one indicator per
// recipient per suppression window goes out, and only while the
// transport reports itself connected. There is no "stopped typing"
// signal; the receiving side expires the flag on its own.
type Notifier struct {
	self     string
	pub      publisher
	recently geche.Geche[string, struct{}]
}

func NewNotifier(ctx context.Context, self string, pub publisher, suppress time.Duration) *Notifier {
	cleanup := suppress / 4
	if cleanup < 50*time.Millisecond {
		cleanup = 50 * time.Millisecond
	}
	return &Notifier{
		self:     self,
		pub:      pub,
		recently: geche.NewMapTTLCache[string, struct{}](ctx, suppress, cleanup),
	}
}

// NotifyTyping is called on every keystroke that changes non-empty
// input. Publish failures are logged and dropped; a lost indicator
// costs nothing.
func (n *Notifier) NotifyTyping(recipientID string) {
	if !n.pub.Connected() {
		return
	}
	if _, err := n.recently.Get(recipientID); err == nil {
		return
	}
	n.recently.Set(recipientID, struct{}{})

	err := n.pub.Send(models.ChatEvent{
		Type:      models.EventTyping,
		Sender:    n.self,
		Recipient: recipientID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("typing notify failed", "recipient", recipientID, "error", err)
	}
}
