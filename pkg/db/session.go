// Database models for persona sessions
package db

import "time"

// Session represents one persona/conversation context. Messages, uploads,
// images and the preprocessed artifact all hang off its ID and are removed
// together with it.
type Session struct {
	ID      string `json:"id" gorm:"primaryKey;size:36"`
	Name    string `json:"name" gorm:"size:200;default:'New Echo'"`
	Preview string `json:"preview" gorm:"size:200;default:'No messages yet.'"`

	// Subject is the chat participant whose style is modeled. Nil until
	// the user assigns one from the extracted participants.
	Subject *string `json:"subject,omitempty" gorm:"size:200"`

	// Voice clone state. The clone expires backend-side after
	// VoiceCloneTTLDays of inactivity.
	VoiceID          *string    `json:"voice_id,omitempty" gorm:"size:100"`
	VoiceCreatedAt   *time.Time `json:"voice_created_at,omitempty"`
	VoiceLastUsedAt  *time.Time `json:"voice_last_used_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// DefaultPreview is the preview text of a session with no messages.
const DefaultPreview = "No messages yet."

// VoiceCloneTTLDays is how long an unused voice clone stays valid.
const VoiceCloneTTLDays = 7
