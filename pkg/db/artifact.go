// Database models for preprocessed AI artifacts and cached images
package db

import (
	"encoding/json"
	"time"
)

// Preprocessed holds the backend-computed style summary and embeddings
// payload for a session. At most one row per session; SavePreprocessed
// overwrites (last write wins, no version history).
type Preprocessed struct {
	SessionID string `json:"session_id" gorm:"primaryKey;size:36"`

	StyleSummary string `json:"style_summary" gorm:"type:text"`

	// Embeddings is an opaque JSON blob. The client never inspects it; it
	// only decides whether to re-send it to the stateless backend.
	Embeddings json.RawMessage `json:"embeddings,omitempty" gorm:"type:text"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (Preprocessed) TableName() string {
	return "preprocessed"
}

// Image provenance
const (
	ImageSourceUser = "user"
	ImageSourceAI   = "ai"
)

// Image caches a message image blob under its backend-assigned id.
// Rows are immutable once written and die with their session.
type Image struct {
	SessionID string `json:"session_id" gorm:"primaryKey;size:36"`
	ImageID   string `json:"image_id" gorm:"primaryKey;size:64"`

	Data     []byte `json:"-" gorm:"type:blob"`
	MimeType string `json:"mime_type" gorm:"size:100"`
	Source   string `json:"source" gorm:"size:10"` // user, ai

	CreatedAt time.Time `json:"created_at"`
}

func (Image) TableName() string {
	return "images"
}
