package storage

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"lichka/internal/models"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketSession       = []byte("session")
)

// BboltStorage is the client's offline cache. The sidebar and the open
// thread render from it before the first REST refresh, and every
// successful refresh writes back through it.
type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConversations); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// ReplaceConversations swaps the cached preview list wholesale, matching
// the refresh contract of the conversation list cache.
func (s *BboltStorage) ReplaceConversations(conversations []models.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketConversations); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketConversations)
		if err != nil {
			return err
		}
		for _, conv := range conversations {
			dbConv := DBConversation{
				ID:            conv.ID,
				Peer:          conv.Peer,
				LastMessage:   conv.LastMessage,
				LastSender:    conv.LastSender,
				LastMessageAt: conv.LastMessageAt.UnixNano(),
				UnreadCount:   conv.UnreadCount,
			}
			data, err := dbConv.MarshalBinary()
			if err != nil {
				return err
			}
			if err := b.Put(dbConv.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListConversations returns the cached previews.
func (s *BboltStorage) ListConversations() ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		return b.ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conversations = append(conversations, models.Conversation{
				ID:            dbConv.ID,
				Peer:          dbConv.Peer,
				LastMessage:   dbConv.LastMessage,
				LastSender:    dbConv.LastSender,
				LastMessageAt: time.Unix(0, dbConv.LastMessageAt).UTC(),
				UnreadCount:   dbConv.UnreadCount,
			})
			return nil
		})
	})
	return conversations, err
}

// ReplaceMessages swaps the cached backlog of one conversation.
func (s *BboltStorage) ReplaceMessages(conversationID string, messages []models.Message) error {
	if conversationID == "" {
		return errors.New("missing conversation id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		main := tx.Bucket(bucketMessages)
		if main.Bucket([]byte(conversationID)) != nil {
			if err := main.DeleteBucket([]byte(conversationID)); err != nil {
				return err
			}
		}
		convBucket, err := main.CreateBucket([]byte(conversationID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		for _, msg := range messages {
			dbMsg := DBMessage{
				ID:             msg.ID,
				ConversationID: msg.ConversationID,
				Content:        msg.Content,
				Sender:         msg.Sender,
				Recipient:      msg.Recipient,
				CreatedAt:      msg.CreatedAt.UnixNano(),
				Status:         string(msg.Status),
			}
			data, err := dbMsg.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if err := convBucket.Put(dbMsg.Key(), data); err != nil {
				return fmt.Errorf("failed to put message: %w", err)
			}
		}
		return nil
	})
}

// ListMessages returns the cached backlog in creation order.
func (s *BboltStorage) ListMessages(conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if convBucket == nil {
			return nil // no backlog cached
		}
		return convBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ID:             dbMsg.ID,
				ConversationID: dbMsg.ConversationID,
				Content:        dbMsg.Content,
				Sender:         dbMsg.Sender,
				Recipient:      dbMsg.Recipient,
				CreatedAt:      time.Unix(0, dbMsg.CreatedAt).UTC(),
				Status:         models.MessageStatus(dbMsg.Status),
			})
			return nil
		})
	})
	return messages, err
}

// SaveSession stores the session token obtained at login.
func (s *BboltStorage) SaveSession(username, token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		dbSession := &DBSession{
			Username: username,
			Token:    token,
			SavedAt:  time.Now().Unix(),
		}
		data, err := dbSession.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbSession.Key(), data)
	})
}

// GetSession returns the stored token for a user, models.ErrNotFound if
// the user never logged in on this machine.
func (s *BboltStorage) GetSession(username string) (string, error) {
	var token string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get([]byte(username))
		if data == nil {
			return models.ErrNotFound
		}
		var dbSession DBSession
		if err := dbSession.UnmarshalBinary(data); err != nil {
			return err
		}
		token = dbSession.Token
		return nil
	})
	return token, err
}

// DeleteSession drops the stored token.
func (s *BboltStorage) DeleteSession(username string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete([]byte(username))
	})
}
