package store

import (
	"context"
	"fmt"
	"time"

	"github.com/alterecho/alterecho/pkg/db"
)

// ========== Message History ==========

// ListMessages returns a session's messages in append order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]db.Message, error) {
	var messages []db.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// AppendMessage appends one message to the session's history. An id and
// display timestamp are assigned when absent.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg *db.Message) (*db.Message, error) {
	msg.SessionID = sessionID
	if msg.ID == "" {
		msg.ID = NewID(8)
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format("3:04 PM")
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// ReplaceMessages swaps the session's entire history for the given list,
// preserving the list's order.
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, messages []db.Message) error {
	if err := s.ClearMessages(ctx, sessionID); err != nil {
		return err
	}
	for i := range messages {
		m := messages[i]
		m.Seq = 0 // let the store assign fresh insert order
		if _, err := s.AppendMessage(ctx, sessionID, &m); err != nil {
			return err
		}
	}
	return nil
}

// ClearMessages removes all of the session's messages.
func (s *Store) ClearMessages(ctx context.Context, sessionID string) error {
	if err := s.db.WithContext(ctx).Delete(&db.Message{}, "session_id = ?", sessionID).Error; err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}
