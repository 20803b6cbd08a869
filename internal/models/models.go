package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type EventType string

const (
	EventChat    EventType = "CHAT"
	EventJoin    EventType = "JOIN"
	EventLeave   EventType = "LEAVE"
	EventTyping  EventType = "TYPING"
	EventOnline  EventType = "ONLINE"
	EventOffline EventType = "OFFLINE"
	EventRead    EventType = "READ"
)

type MessageStatus string

const (
	StatusSent MessageStatus = "SENT"
	StatusRead MessageStatus = "READ"
)

// ChatEvent is the wire-level event exchanged with the broker.
// Content is empty for every type except CHAT.
type ChatEvent struct {
	Type           EventType     `json:"type"`
	Content        string        `json:"content,omitempty"`
	Sender         string        `json:"sender"`
	Recipient      string        `json:"recipient,omitempty"`
	ConversationID string        `json:"conversationId,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status,omitempty"`
}

// Validate enforces the one structural invariant the client relies on:
// a CHAT event directed at a conversation must carry both sender and
// conversation id.
func (e ChatEvent) Validate() error {
	if e.Sender == "" {
		return errors.New("event missing sender")
	}
	if e.Type == EventChat && e.ConversationID == "" {
		return errors.New("chat event missing conversationId")
	}
	return nil
}

// Message is a persisted chat message belonging to exactly one conversation.
// It is never mutated after creation except for the SENT -> READ transition.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Content        string        `json:"content"`
	Sender         string        `json:"sender"`
	Recipient      string        `json:"recipient"`
	CreatedAt      time.Time     `json:"createdAt"`
	Status         MessageStatus `json:"status"`
}

// Conversation is the client's read-only projection of a conversation:
// the sidebar preview. Peer is the other participant relative to the
// current user.
type Conversation struct {
	ID            string    `json:"id"`
	Peer          string    `json:"otherParticipant"`
	LastMessage   string    `json:"lastMessage"`
	LastSender    string    `json:"lastMessageSender"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

// User as returned by the user search endpoint.
type User struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateFailed       ConnState = "failed"
)
