package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/alterecho/alterecho/pkg/db"
	"github.com/alterecho/alterecho/pkg/detect"
	"github.com/alterecho/alterecho/pkg/models"
	"github.com/alterecho/alterecho/pkg/store"
)

// ========== Sessions ==========

// ListSessions returns the backend's session list.
func (c *Client) ListSessions(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession creates a session on the backend and mirrors it locally.
func (c *Client) CreateSession(ctx context.Context, name string) (*db.Session, error) {
	var wire models.Session
	in := map[string]string{"name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions", in, &wire); err != nil {
		return nil, err
	}
	local, err := c.store.CreateSessionWithID(ctx, wire.ID, wire.Name)
	if err != nil {
		return nil, fmt.Errorf("mirror session: %w", err)
	}
	return local, nil
}

// DeleteSessionRemote deletes the session on the backend and cascades the
// local copy. The local delete runs even if the backend call fails with a
// 404: the session is gone either way.
func (c *Client) DeleteSessionRemote(ctx context.Context, sessionID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil)
	if err != nil {
		if se, ok := err.(*ServerError); !ok || se.Status != http.StatusNotFound {
			return err
		}
	}
	if err := c.store.DeleteSession(ctx, sessionID); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("delete local session: %w", err)
	}
	c.resetContextCached(sessionID)
	return nil
}

// ========== Files ==========

// FileUpload is one file handed to UploadFiles.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// UploadFiles posts a batch of files for the session. Accepted files are
// mirrored into the local store with the backend's ids and detection
// metadata; a ZIP archive instead comes back as a pending selection, saved
// for SelectZipConversations.
func (c *Client) UploadFiles(ctx context.Context, sessionID, category string, files []FileUpload) (*models.UploadResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("file", f.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/chats/"+sessionID+"/files/"+category), &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.UploadResponse
	if err := decodeJSONBody(resp.Body, &out); err != nil {
		return nil, err
	}

	switch out.Type {
	case models.UploadTypeInstagramZip, models.UploadTypeDiscordZip:
		zipType := "instagram"
		if out.Type == models.UploadTypeDiscordZip {
			zipType = "discord"
		}
		name := ""
		if len(files) > 0 {
			name = files[0].Name
		}
		pending := &db.PendingZip{
			ZipID:         out.ZipID,
			SessionID:     sessionID,
			OriginalName:  name,
			ZipType:       zipType,
			Conversations: out.Conversations,
		}
		if err := c.store.PutPendingZip(ctx, pending); err != nil {
			return nil, fmt.Errorf("save pending zip: %w", err)
		}
		return &out, nil
	}

	byName := make(map[string]*FileUpload, len(files))
	for i := range files {
		byName[files[i].Name] = &files[i]
	}
	for _, up := range out.Uploaded {
		src, ok := byName[up.OriginalName]
		if !ok {
			c.logger.Warn("backend accepted a file not in the batch", "name", up.OriginalName)
			continue
		}
		meta := store.FileMeta{ID: up.ID, OriginalName: src.Name, MimeType: src.MimeType}
		det := store.Detection{DetectedType: up.DetectedType, Participants: up.Participants}
		// Older backends omit detection metadata; classify locally so
		// the subject picker still has participants to offer.
		if category == db.UploadCategoryText && det.DetectedType == "" {
			det.DetectedType = detect.Classify(src.Data)
			det.Participants = detect.Participants(src.Data, det.DetectedType)
		}
		if _, err := c.store.AddUpload(ctx, sessionID, category, src.Data, meta, det); err != nil {
			c.logger.Warn("failed to mirror upload", "session_id", sessionID, "file_id", up.ID, "error", err)
		}
	}
	return &out, nil
}

// SelectZipConversations asks the backend to import the chosen threads from
// a previously uploaded archive, mirrors the resulting uploads, and drops
// the pending-zip record.
func (c *Client) SelectZipConversations(ctx context.Context, zipID string, conversations []string) (*models.UploadResponse, error) {
	pending, err := c.store.GetPendingZip(ctx, zipID)
	if err != nil {
		return nil, fmt.Errorf("pending zip: %w", err)
	}
	in := map[string]interface{}{
		"zip_id":        zipID,
		"session_id":    pending.SessionID,
		"conversations": conversations,
	}
	var out models.UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chats/zip/select", in, &out); err != nil {
		return nil, err
	}
	for _, up := range out.Uploaded {
		meta := store.FileMeta{ID: up.ID, OriginalName: up.OriginalName, MimeType: "text/plain"}
		det := store.Detection{DetectedType: up.DetectedType, Participants: up.Participants}
		if _, err := c.store.AddUpload(ctx, pending.SessionID, db.UploadCategoryText, nil, meta, det); err != nil {
			c.logger.Warn("failed to mirror zip upload", "file_id", up.ID, "error", err)
		}
	}
	if err := c.store.DeletePendingZip(ctx, zipID); err != nil {
		c.logger.Warn("failed to drop pending zip", "zip_id", zipID, "error", err)
	}
	return &out, nil
}

// ListFiles returns the backend's view of the session's uploads.
func (c *Client) ListFiles(ctx context.Context, sessionID, category string) ([]models.UploadedFile, error) {
	var out struct {
		Files []models.UploadedFile `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+sessionID+"/files/"+category, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// DeleteFile removes one upload on both sides.
func (c *Client) DeleteFile(ctx context.Context, sessionID, category, fileID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/chats/"+sessionID+"/files/"+category+"/"+fileID, nil, nil); err != nil {
		return err
	}
	if err := c.store.DeleteUpload(ctx, sessionID, category, fileID); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("delete local upload: %w", err)
	}
	return nil
}

// SetFileSubject assigns the modeled participant for an upload.
func (c *Client) SetFileSubject(ctx context.Context, sessionID, fileID, subject string) error {
	in := map[string]string{"subject": subject}
	if err := c.doJSON(ctx, http.MethodPost, "/api/chats/"+sessionID+"/files/"+fileID+"/subject", in, nil); err != nil {
		return err
	}
	if _, err := c.store.UpdateUpload(ctx, sessionID, fileID, store.UploadPatch{Subject: &subject}); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("update local upload: %w", err)
	}
	if _, err := c.store.UpdateSession(ctx, sessionID, store.SessionPatch{Subject: &subject}); err != nil && err != store.ErrNotFound {
		return fmt.Errorf("update local session: %w", err)
	}
	return nil
}

// CheckRefreshReady asks whether the session can run a memory refresh.
func (c *Client) CheckRefreshReady(ctx context.Context, sessionID string) (*models.RefreshReady, error) {
	var out models.RefreshReady
	if err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+sessionID+"/refresh/ready", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ========== Voice ==========

// VoiceStatus reports the session's voice-clone state, including the
// expiry countdown the backend derives from last use.
func (c *Client) VoiceStatus(ctx context.Context, sessionID string) (*models.VoiceStatus, error) {
	var out models.VoiceStatus
	if err := c.doJSON(ctx, http.MethodPost, "/api/voice/clone/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListVoices returns the synthetic voices the backend offers.
func (c *Client) ListVoices(ctx context.Context) ([]models.Voice, error) {
	var out struct {
		Voices []models.Voice `json:"voices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/voices", nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// ========== Settings and keys ==========

// GetRemoteSettings fetches the backend's stored settings.
func (c *Client) GetRemoteSettings(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRemoteSettings merges partial settings on the backend and mirrors
// the merge locally.
func (c *Client) UpdateRemoteSettings(ctx context.Context, partial map[string]string) error {
	if err := c.doJSON(ctx, http.MethodPut, "/api/settings", partial, nil); err != nil {
		return err
	}
	if err := c.store.SaveSettings(ctx, partial); err != nil {
		return fmt.Errorf("save local settings: %w", err)
	}
	return nil
}

// CheckKey reports whether the provider's API key is configured.
func (c *Client) CheckKey(ctx context.Context, provider string) (bool, error) {
	var out models.KeyStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings/"+provider+"-key", nil, &out); err != nil {
		return false, err
	}
	return out.Configured, nil
}

// SetKey stores the provider's API key on both sides.
func (c *Client) SetKey(ctx context.Context, provider, key string) error {
	in := map[string]string{"key": key}
	if err := c.doJSON(ctx, http.MethodPost, "/api/settings/"+provider+"-key", in, nil); err != nil {
		return err
	}
	if err := c.store.SaveSecret(ctx, provider, key); err != nil {
		return fmt.Errorf("save local key: %w", err)
	}
	return nil
}

// DeleteKey removes the provider's API key on both sides.
func (c *Client) DeleteKey(ctx context.Context, provider string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/settings/"+provider+"-key", nil, nil); err != nil {
		return err
	}
	if err := c.store.DeleteSecret(ctx, provider); err != nil {
		return fmt.Errorf("delete local key: %w", err)
	}
	return nil
}

// TestKey probes a key's validity without storing it.
func (c *Client) TestKey(ctx context.Context, provider, key string) (*models.KeyTestResult, error) {
	in := map[string]string{"key": key}
	var out models.KeyTestResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/settings/"+provider+"-key/test", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Warmup nudges the backend to load its models. Failures are swallowed:
// warmup is a background optimization, not a user action.
func (c *Client) Warmup(ctx context.Context) models.WarmupStatus {
	err := c.doJSON(ctx, http.MethodPost, "/api/warmup", nil, nil)
	if err != nil {
		c.logger.Debug("warmup failed", "error", err)
		return models.WarmupStatus{OK: false, Message: err.Error()}
	}
	return models.WarmupStatus{OK: true}
}
