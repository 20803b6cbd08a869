// Package reconcile merges locally-sent optimistic messages with
// server-delivered events into the single ordered thread the UI shows,
// and applies read-receipt transitions. It is the only writer of thread
// state; everything it needs from the outside comes in through narrow
// interfaces.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lichka/internal/models"
)

type publisher interface {
	Send(models.ChatEvent) error
}

type readMarker interface {
	MarkMessagesAsRead(ctx context.Context, conversationID, username string) error
}

type listRefresher interface {
	RefreshAsync()
}

type acceptor interface {
	ShouldAccept(models.ChatEvent) bool
}

type notifier interface {
	Notify(title, body string)
}

type Reconciler struct {
	user   string
	pub    publisher
	marker readMarker
	list   listRefresher
	dedup  acceptor
	notify notifier
	ctx    context.Context

	mu sync.Mutex
	// active is read fresh on every delivery, never captured at
	// subscription time; the open conversation can change under a
	// long-lived handler.
	active string
	thread []models.Message

	onAppend func(models.Message)
}

func New(ctx context.Context, user string, pub publisher, marker readMarker, list listRefresher, dedup acceptor, notify notifier) *Reconciler {
	return &Reconciler{
		user:   user,
		pub:    pub,
		marker: marker,
		list:   list,
		dedup:  dedup,
		notify: notify,
		ctx:    ctx,
	}
}

// SetActive switches the open conversation and replaces the visible
// thread with its fetched backlog.
func (r *Reconciler) SetActive(conversationID string, backlog []models.Message) {
	r.mu.Lock()
	r.active = conversationID
	r.thread = append([]models.Message(nil), backlog...)
	r.mu.Unlock()
}

func (r *Reconciler) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Messages returns a copy of the ordered thread.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.thread...)
}

// OnAppend registers a hook fired after every appended message. Safe to
// call while deliveries are already in flight; the hook runs on
// whichever goroutine appended.
func (r *Reconciler) OnAppend(fn func(models.Message)) {
	r.mu.Lock()
	r.onAppend = fn
	r.mu.Unlock()
}

// AddMessage appends to the thread. Part of the narrow mutation surface
// alongside MarkAllSentAsRead.
func (r *Reconciler) AddMessage(m models.Message) {
	r.mu.Lock()
	r.thread = append(r.thread, m)
	fn := r.onAppend
	r.mu.Unlock()

	if fn != nil {
		fn(m)
	}
}

// MarkAllSentAsRead upgrades every own message from SENT to READ. The
// protocol only says "the conversation reached read state", so the
// transition is bulk, not per message id.
func (r *Reconciler) MarkAllSentAsRead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.thread {
		if r.thread[i].Sender == r.user && r.thread[i].Status == models.StatusSent {
			r.thread[i].Status = models.StatusRead
		}
	}
}

// SendLocal appends the optimistic message immediately and publishes the
// corresponding event in parallel. The thread never waits for the
// broker, and a failed publish is logged without rolling the message
// back.
func (r *Reconciler) SendLocal(conversationID, recipient, content string) models.Message {
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		Sender:         r.user,
		Recipient:      recipient,
		CreatedAt:      time.Now().UTC(),
		Status:         models.StatusSent,
	}
	r.AddMessage(msg)

	go func() {
		err := r.pub.Send(models.ChatEvent{
			Type:           models.EventChat,
			Content:        content,
			Sender:         r.user,
			Recipient:      recipient,
			ConversationID: conversationID,
			Timestamp:      msg.CreatedAt,
			Status:         models.StatusSent,
		})
		if err != nil {
			slog.Warn("publish failed", "conversation", conversationID, "error", err)
		}
	}()

	return msg
}

// OnChat handles an inbound CHAT event.
func (r *Reconciler) OnChat(ev models.ChatEvent) {
	if err := ev.Validate(); err != nil {
		slog.Warn("dropping invalid event", "error", err)
		return
	}

	// Self-echo: the optimistic copy already represents it.
	if ev.Sender == r.user {
		return
	}

	if ev.ConversationID != r.Active() {
		// Sidebar only; the open thread must not gain foreign
		// messages.
		r.list.RefreshAsync()
		if r.notify != nil {
			r.notify.Notify(ev.Sender, ev.Content)
		}
		return
	}

	if !r.dedup.ShouldAccept(ev) {
		return
	}

	r.AddMessage(models.Message{
		ID:             uuid.NewString(),
		ConversationID: ev.ConversationID,
		Content:        ev.Content,
		Sender:         ev.Sender,
		Recipient:      r.user,
		CreatedAt:      ev.Timestamp,
		Status:         models.StatusSent,
	})

	// The message is on screen, so acknowledge it: REST mark plus a
	// READ event back over the transport, then let the sidebar catch
	// up. All best-effort.
	go func() {
		if err := r.marker.MarkMessagesAsRead(r.ctx, ev.ConversationID, r.user); err != nil {
			slog.Warn("mark as read failed", "conversation", ev.ConversationID, "error", err)
		}
		err := r.pub.Send(models.ChatEvent{
			Type:           models.EventRead,
			Sender:         r.user,
			Recipient:      ev.Sender,
			ConversationID: ev.ConversationID,
			Timestamp:      time.Now().UTC(),
			Status:         models.StatusRead,
		})
		if err != nil {
			slog.Warn("read receipt publish failed", "conversation", ev.ConversationID, "error", err)
		}
		r.list.RefreshAsync()
	}()
}

// OnRead handles an inbound READ event: the peer has seen the
// conversation, so every own SENT message flips to READ.
func (r *Reconciler) OnRead(ev models.ChatEvent) {
	if ev.ConversationID == r.Active() {
		r.MarkAllSentAsRead()
	}
	r.list.RefreshAsync()
}
