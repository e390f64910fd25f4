package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alterecho/alterecho/pkg/db"
)

// ========== Preprocessed Artifacts ==========

// GetPreprocessed returns the session's style summary + embeddings, or
// ErrNotFound when the session was never refreshed.
func (s *Store) GetPreprocessed(ctx context.Context, sessionID string) (*db.Preprocessed, error) {
	var pp db.Preprocessed
	err := s.db.WithContext(ctx).First(&pp, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get preprocessed: %w", err)
	}
	return &pp, nil
}

// SavePreprocessed upserts the session's artifact (last write wins).
func (s *Store) SavePreprocessed(ctx context.Context, sessionID, styleSummary string, embeddings json.RawMessage) error {
	pp := db.Preprocessed{
		SessionID:    sessionID,
		StyleSummary: styleSummary,
		Embeddings:   embeddings,
		UpdatedAt:    time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&pp).Error
	if err != nil {
		return fmt.Errorf("save preprocessed: %w", err)
	}
	return nil
}

// ========== Image Cache ==========

// ImageBlob is the single internal representation every image input
// converges on, whatever its origin (file upload, backend payload,
// clipboard paste).
type ImageBlob struct {
	Data     []byte
	MimeType string
}

// ImageFromBytes wraps raw bytes.
func ImageFromBytes(data []byte, mimeType string) ImageBlob {
	return ImageBlob{Data: data, MimeType: mimeType}
}

// ImageFromBase64 decodes a base64 payload, tolerating a data-URL prefix
// ("data:image/png;base64,...."). A mime type embedded in the prefix wins
// over the argument.
func ImageFromBase64(encoded, mimeType string) (ImageBlob, error) {
	if strings.HasPrefix(encoded, "data:") {
		header, rest, ok := strings.Cut(encoded, ",")
		if !ok {
			return ImageBlob{}, errors.New("malformed data url")
		}
		if mt := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"); mt != "" {
			mimeType = mt
		}
		encoded = rest
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ImageBlob{}, fmt.Errorf("decode image base64: %w", err)
	}
	return ImageBlob{Data: data, MimeType: mimeType}, nil
}

// ImageFromReader drains the reader.
func ImageFromReader(r io.Reader, mimeType string) (ImageBlob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImageBlob{}, fmt.Errorf("read image: %w", err)
	}
	return ImageBlob{Data: data, MimeType: mimeType}, nil
}

// GetImage returns one cached image.
func (s *Store) GetImage(ctx context.Context, sessionID, imageID string) (*db.Image, error) {
	var img db.Image
	err := s.db.WithContext(ctx).First(&img, "session_id = ? AND image_id = ?", sessionID, imageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &img, nil
}

// SaveImage upserts the image under its backend-assigned id.
func (s *Store) SaveImage(ctx context.Context, sessionID, imageID string, blob ImageBlob, source string) error {
	img := db.Image{
		SessionID: sessionID,
		ImageID:   imageID,
		Data:      blob.Data,
		MimeType:  blob.MimeType,
		Source:    source,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "image_id"}},
		UpdateAll: true,
	}).Create(&img).Error
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// GetImageLocalURL materializes a cached image as a temporary file and
// returns a file:// URL for display. The caller owns the file and must
// revoke the URL when done with it.
func (s *Store) GetImageLocalURL(ctx context.Context, sessionID, imageID string) (string, error) {
	img, err := s.GetImage(ctx, sessionID, imageID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(os.TempDir(), "alterecho-images")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create image temp dir: %w", err)
	}
	name := sessionID + "_" + imageID + extForMime(img.MimeType)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, img.Data, 0o600); err != nil {
		return "", fmt.Errorf("materialize image: %w", err)
	}
	return "file://" + path, nil
}

// RevokeImageLocalURL removes the temporary file behind a URL handed out by
// GetImageLocalURL.
func (s *Store) RevokeImageLocalURL(localURL string) error {
	u, err := url.Parse(localURL)
	if err != nil || u.Scheme != "file" {
		return fmt.Errorf("not a local image url: %s", localURL)
	}
	path := u.Path
	if !strings.HasPrefix(filepath.Dir(path), filepath.Join(os.TempDir(), "alterecho-images")) {
		return fmt.Errorf("refusing to remove %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("revoke image url: %w", err)
	}
	return nil
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
