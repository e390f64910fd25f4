// Database models for chat messages
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Message represents one chat bubble. Messages form an append-only list per
// session; Seq records insert order and is the only ordering authority.
type Message struct {
	Seq       uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	ID        string `json:"id" gorm:"uniqueIndex;size:36;not null"`
	SessionID string `json:"session_id" gorm:"index;size:36;not null"`

	Role    string `json:"role" gorm:"size:20;not null"` // user, assistant
	Content string `json:"content" gorm:"type:text"`

	// Images holds backend-assigned image ids, not display handles.
	Images StringArray `json:"images,omitempty" gorm:"type:text"`

	// Timestamp is the display string shown next to the bubble ("3:04 PM").
	Timestamp string `json:"timestamp" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StringArray is a slice of strings stored as JSON in the database
type StringArray []string

// Value implements driver.Valuer for database storage
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("unsupported type for StringArray")
	}
}
