package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"lichka/internal/models"
)

func TestTracker_FlagLifecycle(t *testing.T) {
	tr := NewTracker(context.Background(), 200*time.Millisecond)

	tr.OnTypingEvent("bob")
	if !tr.IsTyping("bob") {
		t.Fatal("flag must be up immediately after the event")
	}
	if tr.IsTyping("carol") {
		t.Error("unrelated peer flagged")
	}

	time.Sleep(600 * time.Millisecond)

	if tr.IsTyping("bob") {
		t.Error("flag must drop after the expiry window")
	}
}

func TestTracker_WindowNotRefreshed(t *testing.T) {
	// The first event in a burst arms the only timer; a second event
	// mid-window must not extend the flag's life.
	tr := NewTracker(context.Background(), 300*time.Millisecond)

	tr.OnTypingEvent("bob")
	time.Sleep(150 * time.Millisecond)
	tr.OnTypingEvent("bob")

	time.Sleep(600 * time.Millisecond)
	if tr.IsTyping("bob") {
		t.Error("second event must not reset the expiry window")
	}
}

func TestTracker_Peers(t *testing.T) {
	tr := NewTracker(context.Background(), time.Second)
	tr.OnTypingEvent("bob")
	tr.OnTypingEvent("carol")

	peers := tr.Peers()
	if len(peers) != 2 {
		t.Fatalf("expected 2 typing peers, got %d", len(peers))
	}
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	sent      []models.ChatEvent
}

func (p *fakePublisher) Connected() bool { return p.connected }

func (p *fakePublisher) Send(ev models.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func TestNotifier_SuppressionWindow(t *testing.T) {
	pub := &fakePublisher{connected: true}
	n := NewNotifier(context.Background(), "alice", pub, 300*time.Millisecond)

	for i := 0; i < 5; i++ {
		n.NotifyTyping("bob")
	}
	if got := pub.count(); got != 1 {
		t.Fatalf("expected 1 publish inside the suppression window, got %d", got)
	}

	time.Sleep(700 * time.Millisecond)
	n.NotifyTyping("bob")
	if got := pub.count(); got != 2 {
		t.Errorf("expected a second publish after the window, got %d", got)
	}
}

func TestNotifier_PerRecipientSuppression(t *testing.T) {
	pub := &fakePublisher{connected: true}
	n := NewNotifier(context.Background(), "alice", pub, time.Second)

	n.NotifyTyping("bob")
	n.NotifyTyping("carol")
	if got := pub.count(); got != 2 {
		t.Errorf("suppression must be per recipient, got %d publishes", got)
	}

	ev := pub.sent[0]
	if ev.Type != models.EventTyping || ev.Sender != "alice" {
		t.Errorf("unexpected typing event %+v", ev)
	}
}

func TestNotifier_RequiresConnectedTransport(t *testing.T) {
	pub := &fakePublisher{connected: false}
	n := NewNotifier(context.Background(), "alice", pub, time.Second)

	n.NotifyTyping("bob")
	if got := pub.count(); got != 0 {
		t.Errorf("nothing must go out while disconnected, got %d", got)
	}
}
