// Database models for secrets and settings
package db

import "time"

// Secret is a named credential (e.g. a provider API key). Global, at most
// one row per name. Values are stored in the clear: the store lives in the
// user's own profile on a single-user machine, and that trust boundary is
// deliberate.
type Secret struct {
	Name      string    `json:"name" gorm:"primaryKey;size:100"`
	Value     string    `json:"-" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Secret) TableName() string {
	return "secrets"
}

// Setting is one named configuration value. Settings are read as a merged
// map over documented defaults; partial saves leave other keys untouched.
type Setting struct {
	Name      string    `json:"name" gorm:"primaryKey;size:100"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Default model settings, matching the backend's documented defaults.
var DefaultSettings = map[string]string{
	"chatbot_model":   "gemini-2.0-flash",
	"training_model":  "gemini-2.0-flash",
	"embedding_model": "text-embedding-004",
	"image_model":     "gemini-2.0-flash",
}
