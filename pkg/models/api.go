// Wire shapes for the backend /api contract
package models

import "encoding/json"

// Session is the backend's session object. The client mirrors it into the
// local store after mutations.
type Session struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	CreatedAt       string  `json:"created_at"`
	Preview         string  `json:"preview"`
	Subject         *string `json:"subject"`
	VoiceID         *string `json:"wavespeed_voice_id"`
	VoiceCreatedAt  *string `json:"voice_created_at,omitempty"`
	VoiceLastUsedAt *string `json:"voice_last_used_at,omitempty"`
}

// Message is one chat bubble on the wire. Images holds image ids (or, after
// local rewriting, display handles).
type Message struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	Images    []string `json:"images,omitempty"`
}

// ChatRequest is the chat-send payload. The backend is stateless: style
// summary, trimmed history and (once per session) the embeddings payload
// travel with every request.
type ChatRequest struct {
	SessionID    string            `json:"session_id"`
	Content      string            `json:"content"`
	History      []Message         `json:"history,omitempty"`
	StyleSummary string            `json:"style_summary,omitempty"`
	Embeddings   json.RawMessage   `json:"embeddings"`
	Settings     map[string]string `json:"settings,omitempty"`
	Secrets      map[string]string `json:"secrets,omitempty"`
}

// ImagePayload carries a newly generated or newly uploaded image back from
// the backend for local caching.
type ImagePayload struct {
	ID       string `json:"id"`
	Data     string `json:"data"` // base64
	MimeType string `json:"mime_type"`
	Source   string `json:"source"` // user, ai
}

// ChatResponse is the chat-send result. AIMessages carries the reply split
// into one bubble per line; AIMessage duplicates its first entry.
type ChatResponse struct {
	UserMessage *Message       `json:"user_message"`
	AIMessage   *Message       `json:"ai_message"`
	AIMessages  []Message      `json:"ai_messages"`
	Images      []ImagePayload `json:"images,omitempty"`
}

// UploadedFile describes one accepted upload.
type UploadedFile struct {
	ID           string   `json:"id"`
	OriginalName string   `json:"original_name"`
	SavedAs      string   `json:"saved_as"`
	FileType     string   `json:"file_type"`
	DetectedType string   `json:"detected_type,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// RejectedFile describes one upload the backend refused (bad extension,
// duplicate content) without failing the batch.
type RejectedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Upload batch response types for ZIP archives awaiting selection.
const (
	UploadTypeInstagramZip = "zip_upload"
	UploadTypeDiscordZip   = "discord_zip_upload"
)

// UploadResponse is the file-upload result. For ZIP archives the batch is
// deferred: ZipID and Conversations come back and the caller must select
// which threads to import.
type UploadResponse struct {
	Success       bool           `json:"success"`
	Type          string         `json:"type,omitempty"`
	ZipID         string         `json:"zip_id,omitempty"`
	Conversations []string       `json:"conversations,omitempty"`
	Uploaded      []UploadedFile `json:"uploaded"`
	Rejected      []RejectedFile `json:"rejected"`
	UploadedCount int            `json:"uploaded_count"`
}

// RefreshReady reports whether a session can run memory refresh.
type RefreshReady struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// VoiceStatus reports the session's voice-clone state and expiry countdown.
type VoiceStatus struct {
	HasVoice      bool   `json:"has_voice"`
	VoiceID       string `json:"voice_id,omitempty"`
	VoiceStatus   string `json:"voice_status"` // none, active, warning, expired
	DaysRemaining int    `json:"days_remaining,omitempty"`
	Message       string `json:"message"`
}

// Voice is one synthetic voice offered by the backend.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// KeyStatus reports whether a provider key is configured backend-side.
type KeyStatus struct {
	Configured bool `json:"configured"`
}

// KeyTestResult reports a key-validity probe.
type KeyTestResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// WarmupStatus is the best-effort warmup result. OK=false is degraded, not
// fatal.
type WarmupStatus struct {
	OK      bool
	Message string
}

// ========== Streaming wire records ==========

// CallStreamRecord is one voice-call stream event, discriminated by Type.
type CallStreamRecord struct {
	Type     string `json:"type"` // text, audio, status, done, error
	Content  string `json:"content,omitempty"`
	Index    int    `json:"index,omitempty"`
	FullText string `json:"full_text,omitempty"`
}

// RefreshStreamRecord is one memory-refresh stream event, discriminated by
// Step. The terminal complete record carries the artifact.
type RefreshStreamRecord struct {
	Step         string          `json:"step"` // starting, cleaning, ..., complete, error
	Progress     int             `json:"progress,omitempty"`
	Message      string          `json:"message,omitempty"`
	StyleSummary string          `json:"style_summary,omitempty"`
	Embeddings   json.RawMessage `json:"embeddings,omitempty"`
	VoiceID      string          `json:"voice_id,omitempty"`
}
