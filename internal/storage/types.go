package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBSession struct {
	Username string `msgpack:"username"`
	Token    string `msgpack:"token"`
	SavedAt  int64  `msgpack:"savedAt"`
}

func (s *DBSession) Key() []byte {
	return []byte(s.Username)
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}

type DBConversation struct {
	ID            string `msgpack:"id"`
	Peer          string `msgpack:"peer"`
	LastMessage   string `msgpack:"lastMessage"`
	LastSender    string `msgpack:"lastSender"`
	LastMessageAt int64  `msgpack:"lastMessageAt"` // Unix nanoseconds
	UnreadCount   int    `msgpack:"unreadCount"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID             string `msgpack:"id"`
	ConversationID string `msgpack:"conversationId"`
	Content        string `msgpack:"content"`
	Sender         string `msgpack:"sender"`
	Recipient      string `msgpack:"recipient"`
	CreatedAt      int64  `msgpack:"createdAt"` // Unix nanoseconds
	Status         string `msgpack:"status"`
}

// Key orders messages by creation time within a conversation bucket.
// The id suffix keeps two messages with equal timestamps from colliding.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.CreatedAt))
	return append(key, m.ID...)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}
