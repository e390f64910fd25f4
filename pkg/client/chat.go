package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/alterecho/alterecho/pkg/db"
	"github.com/alterecho/alterecho/pkg/models"
	"github.com/alterecho/alterecho/pkg/store"
)

// historyWindow limits how much chat history travels with each request.
const historyWindow = 20

// previewLimit bounds the session-list preview text.
const previewLimit = 50

// emptyEmbeddings is the placeholder sent once the backend has cached the
// session's real payload.
var emptyEmbeddings = json.RawMessage("{}")

// ImageAttachment is a picture the user attached to a chat message.
type ImageAttachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// buildContext assembles the stateless-backend context block: trimmed
// history, style summary, embeddings (full payload on the session's first
// send, placeholder afterwards), settings and provider keys.
func (c *Client) buildContext(ctx context.Context, sessionID string) (*models.ChatRequest, error) {
	req := &models.ChatRequest{SessionID: sessionID, Embeddings: emptyEmbeddings}

	history, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, m := range history {
		req.History = append(req.History, models.Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	pre, err := c.store.GetPreprocessed(ctx, sessionID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if pre != nil {
		req.StyleSummary = pre.StyleSummary
		if !c.contextCached(sessionID) && len(pre.Embeddings) > 0 {
			req.Embeddings = pre.Embeddings
		}
	}

	req.Settings, err = c.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	req.Secrets = make(map[string]string)
	for _, name := range []string{SecretGemini, SecretWavespeed} {
		if v, err := c.store.GetSecret(ctx, name); err == nil {
			req.Secrets[name] = v
		}
	}
	return req, nil
}

// SendChatMessage sends one user turn and persists the resulting exchange.
// With an attachment the request goes out as multipart form data, the
// context block riding along as a JSON "payload" field.
func (c *Client) SendChatMessage(ctx context.Context, sessionID, content string, image *ImageAttachment) ([]db.Message, error) {
	reqBody, err := c.buildContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reqBody.Content = content

	var chatResp models.ChatResponse
	if image == nil {
		if err := c.doJSON(ctx, http.MethodPost, "/api/chat", reqBody, &chatResp); err != nil {
			return nil, err
		}
	} else {
		if err := c.postChatMultipart(ctx, reqBody, image, &chatResp); err != nil {
			return nil, err
		}
	}

	// Cache response images locally before touching messages so that
	// rewriting image references can resolve them.
	for _, img := range chatResp.Images {
		blob, err := store.ImageFromBase64(img.Data, img.MimeType)
		if err != nil {
			c.logger.Warn("skipping undecodable image", "session_id", sessionID, "image_id", img.ID, "error", err)
			continue
		}
		source := img.Source
		if source == "" {
			source = db.ImageSourceAI
		}
		if err := c.store.SaveImage(ctx, sessionID, img.ID, blob, source); err != nil {
			c.logger.Warn("failed to cache image", "session_id", sessionID, "image_id", img.ID, "error", err)
		}
	}

	// History keeps the backend-assigned image ids; only the copies
	// returned to the caller carry display handles, which die with the
	// temp dir and must never be persisted.
	var saved []db.Message
	persist := func(wire *models.Message, role string) error {
		msg := &db.Message{
			ID:        wire.ID,
			Role:      role,
			Content:   wire.Content,
			Timestamp: wire.Timestamp,
			Images:    wire.Images,
		}
		stored, err := c.store.AppendMessage(ctx, sessionID, msg)
		if err != nil {
			return fmt.Errorf("persist %s message: %w", role, err)
		}
		display := *stored
		display.Images = c.localizeImages(ctx, sessionID, wire.Images)
		saved = append(saved, display)
		return nil
	}

	if chatResp.UserMessage != nil {
		if err := persist(chatResp.UserMessage, db.RoleUser); err != nil {
			return saved, err
		}
	}
	replies := chatResp.AIMessages
	if len(replies) == 0 && chatResp.AIMessage != nil {
		replies = []models.Message{*chatResp.AIMessage}
	}
	for i := range replies {
		if err := persist(&replies[i], db.RoleAssistant); err != nil {
			return saved, err
		}
	}

	if len(replies) > 0 {
		preview := truncatePreview(replies[len(replies)-1].Content)
		if _, err := c.store.UpdateSession(ctx, sessionID, store.SessionPatch{Preview: &preview}); err != nil {
			c.logger.Warn("failed to update preview", "session_id", sessionID, "error", err)
		}
	}

	// The backend now holds this session's embeddings; only a success
	// proves that, so the flag flips here and nowhere earlier.
	c.markContextCached(sessionID)
	return saved, nil
}

func (c *Client) postChatMultipart(ctx context.Context, reqBody *models.ChatRequest, image *ImageAttachment, out *models.ChatResponse) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("session_id", reqBody.SessionID)
	_ = w.WriteField("content", reqBody.Content)
	_ = w.WriteField("payload", string(payload))

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(image.Filename)))
	hdr.Set("Content-Type", image.MimeType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return fmt.Errorf("write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/chat"), &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedResponseError{Err: err}
	}
	return nil
}

// localizeImages swaps backend image ids for file:// URLs the UI can show.
// Unresolvable ids keep their original value.
func (c *Client) localizeImages(ctx context.Context, sessionID string, imageIDs []string) []string {
	if len(imageIDs) == 0 {
		return nil
	}
	out := make([]string, 0, len(imageIDs))
	for _, id := range imageIDs {
		url, err := c.store.GetImageLocalURL(ctx, sessionID, id)
		if err != nil {
			c.logger.Warn("image not cached locally", "session_id", sessionID, "image_id", id, "error", err)
			out = append(out, id)
			continue
		}
		out = append(out, url)
	}
	return out
}

func truncatePreview(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "..."
	}
	return s
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}

// uploadResponseDecode is shared by the multipart helpers in ops.go.
func decodeJSONBody(body io.Reader, out interface{}) error {
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return &MalformedResponseError{Err: err}
	}
	return nil
}
