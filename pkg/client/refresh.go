package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/alterecho/alterecho/pkg/db"
	"github.com/alterecho/alterecho/pkg/models"
	"github.com/alterecho/alterecho/pkg/store"
	"github.com/alterecho/alterecho/pkg/stream"
)

// RefreshMemory rebuilds the session's persona artifact from its uploads.
// It never returns an error: everything, including transport failures,
// arrives as events on the returned channel, which always closes.
func (c *Client) RefreshMemory(ctx context.Context, sessionID, additionalContext string) <-chan RefreshEvent {
	events := make(chan RefreshEvent, 8)
	go func() {
		defer close(events)
		if err := c.runRefresh(ctx, sessionID, additionalContext, events); err != nil {
			events <- RefreshEvent{Kind: RefreshError, Err: err}
		}
	}()
	return events
}

func (c *Client) runRefresh(ctx context.Context, sessionID, additionalContext string, events chan<- RefreshEvent) error {
	body, contentType, err := c.buildRefreshForm(ctx, sessionID, additionalContext)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/chats/"+sessionID+"/refresh"), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var terminal bool
	err = stream.Pump(ctx, resp.Body, func(rec stream.Record) error {
		var sr models.RefreshStreamRecord
		if err := json.Unmarshal(rec.Raw, &sr); err != nil {
			c.logger.Warn("skipping undecodable refresh record", "error", err)
			return nil
		}
		switch sr.Step {
		case "complete":
			terminal = true
			return c.finishRefresh(ctx, sessionID, &sr, events)
		case "error":
			terminal = true
			events <- RefreshEvent{Kind: RefreshError, Err: &ServerError{Status: http.StatusOK, Message: sr.Message}}
			return nil
		default:
			events <- RefreshEvent{
				Kind:     RefreshProgress,
				Stage:    sr.Step,
				Progress: sr.Progress,
				Message:  sr.Message,
			}
			return nil
		}
	})
	if err != nil {
		// A terminal record was seen, so the failure came from persisting
		// it, not from the transport.
		if terminal {
			return err
		}
		return &NetworkError{Err: err}
	}
	if !terminal {
		return &MalformedResponseError{Err: fmt.Errorf("stream ended without a terminal record")}
	}
	return nil
}

// finishRefresh persists the artifact, then reports completion. The order
// matters: a complete event promises the artifact is queryable.
func (c *Client) finishRefresh(ctx context.Context, sessionID string, sr *models.RefreshStreamRecord, events chan<- RefreshEvent) error {
	if err := c.store.SavePreprocessed(ctx, sessionID, sr.StyleSummary, sr.Embeddings); err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}
	if sr.VoiceID != "" {
		now := time.Now()
		patch := store.SessionPatch{VoiceID: &sr.VoiceID, VoiceCreatedAt: &now, VoiceLastUsedAt: &now}
		if _, err := c.store.UpdateSession(ctx, sessionID, patch); err != nil {
			c.logger.Warn("failed to record voice id", "session_id", sessionID, "error", err)
		}
	}
	// The embeddings payload just changed; the backend's cached copy is
	// stale, so the next send must carry the fresh one.
	c.resetContextCached(sessionID)
	events <- RefreshEvent{Kind: RefreshComplete, Progress: 100, Message: sr.Message}
	return nil
}

// buildRefreshForm packs the session's text uploads, its most recent voice
// sample, optional extra context, and the settings/keys block into one
// multipart request.
func (c *Client) buildRefreshForm(ctx context.Context, sessionID, additionalContext string) (*bytes.Buffer, string, error) {
	texts, err := c.store.ListUploads(ctx, sessionID, db.UploadCategoryText)
	if err != nil {
		return nil, "", fmt.Errorf("load uploads: %w", err)
	}
	voices, err := c.store.ListUploads(ctx, sessionID, db.UploadCategoryVoice)
	if err != nil {
		return nil, "", fmt.Errorf("load voice uploads: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i := range texts {
		part, err := w.CreateFormFile("files", texts[i].OriginalName)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(texts[i].Data); err != nil {
			return nil, "", fmt.Errorf("write form file: %w", err)
		}
	}
	if len(voices) > 0 {
		latest := voices[len(voices)-1]
		part, err := w.CreateFormFile("voice", latest.OriginalName)
		if err != nil {
			return nil, "", fmt.Errorf("create voice part: %w", err)
		}
		if _, err := part.Write(latest.Data); err != nil {
			return nil, "", fmt.Errorf("write voice part: %w", err)
		}
	}
	if additionalContext != "" {
		_ = w.WriteField("additional_context", additionalContext)
	}

	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load settings: %w", err)
	}
	secrets := make(map[string]string)
	for _, name := range []string{SecretGemini, SecretWavespeed} {
		if v, err := c.store.GetSecret(ctx, name); err == nil {
			secrets[name] = v
		}
	}
	ctxBlock, err := json.Marshal(map[string]interface{}{"settings": settings, "secrets": secrets})
	if err != nil {
		return nil, "", fmt.Errorf("marshal context: %w", err)
	}
	_ = w.WriteField("context", string(ctxBlock))

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finish form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
