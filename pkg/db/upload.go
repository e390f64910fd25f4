// Database models for per-session file uploads
package db

import "time"

// Upload categories
const (
	UploadCategoryText  = "text"
	UploadCategoryVoice = "voice"
)

// Detected conversation-platform types for text uploads
const (
	PlatformWhatsApp      = "WhatsApp"
	PlatformInstagram     = "Instagram"
	PlatformInstagramHTML = "InstagramHTML"
	PlatformLINE          = "LINE"
	PlatformUnknown       = "NULL"
)

// Upload represents a file the user ingested into a session, raw payload
// included. Text uploads carry detection metadata (platform, participants)
// and a user-assigned subject; voice uploads are cloning material.
type Upload struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	SessionID string `json:"session_id" gorm:"index;size:36;not null"`
	Category  string `json:"category" gorm:"size:10;not null"` // text, voice

	OriginalName string `json:"original_name" gorm:"size:255"`
	SavedAs      string `json:"saved_as" gorm:"size:64"` // id + original extension

	DetectedType string      `json:"detected_type,omitempty" gorm:"size:20"`
	Participants StringArray `json:"participants,omitempty" gorm:"type:text"`
	Subject      *string     `json:"subject,omitempty" gorm:"size:200"`

	Data     []byte `json:"-" gorm:"type:blob"`
	MimeType string `json:"mime_type,omitempty" gorm:"size:100"`
	Size     int64  `json:"size"`

	CreatedAt time.Time `json:"created_at"`
}

func (Upload) TableName() string {
	return "uploads"
}

// PendingZip tracks a ZIP import awaiting conversation selection. Rows are
// transient: removed once the selection is submitted or abandoned.
type PendingZip struct {
	ZipID         string      `json:"zip_id" gorm:"primaryKey;size:36"`
	SessionID     string      `json:"session_id" gorm:"index;size:36;not null"`
	OriginalName  string      `json:"original_name" gorm:"size:255"`
	ZipType       string      `json:"zip_type" gorm:"size:20"` // discord, instagram
	Conversations StringArray `json:"conversations" gorm:"type:text"`
	CreatedAt     time.Time   `json:"created_at"`
}

func (PendingZip) TableName() string {
	return "pending_zips"
}
