package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/alterecho/alterecho/pkg/db"
)

// ========== File Uploads ==========

// FileMeta describes the uploaded file itself. ID is normally left empty
// and generated; a mirror of a backend-assigned upload sets it so that
// both sides address the file by the same id.
type FileMeta struct {
	ID           string
	OriginalName string
	MimeType     string
}

// Detection carries the conversation-platform metadata attached to a text
// upload (by the backend's response or by local classification).
type Detection struct {
	DetectedType string
	Participants []string
}

// ListUploads returns a session's uploads, optionally filtered by category.
func (s *Store) ListUploads(ctx context.Context, sessionID, category string) ([]db.Upload, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var uploads []db.Upload
	if err := q.Order("created_at ASC").Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return uploads, nil
}

// AddUpload stores a new upload with a generated id; the saved-as name is
// derived from the id plus the original extension.
func (s *Store) AddUpload(ctx context.Context, sessionID, category string, data []byte, meta FileMeta, det Detection) (*db.Upload, error) {
	if category != db.UploadCategoryText && category != db.UploadCategoryVoice {
		return nil, fmt.Errorf("invalid upload category %q", category)
	}
	id := meta.ID
	if id == "" {
		id = NewID(12)
	}
	ext := strings.ToLower(filepath.Ext(meta.OriginalName))
	upload := &db.Upload{
		ID:           id,
		SessionID:    sessionID,
		Category:     category,
		OriginalName: meta.OriginalName,
		SavedAs:      id + ext,
		DetectedType: det.DetectedType,
		Participants: det.Participants,
		Data:         data,
		MimeType:     meta.MimeType,
		Size:         int64(len(data)),
	}
	if err := s.db.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, fmt.Errorf("add upload: %w", err)
	}
	return upload, nil
}

// UploadPatch holds the fields UpdateUpload may change.
type UploadPatch struct {
	Subject      *string
	DetectedType *string
	Participants []string
}

// UpdateUpload merges the patch into the upload and returns the result.
func (s *Store) UpdateUpload(ctx context.Context, sessionID, fileID string, patch UploadPatch) (*db.Upload, error) {
	updates := map[string]interface{}{}
	if patch.Subject != nil {
		updates["subject"] = *patch.Subject
	}
	if patch.DetectedType != nil {
		updates["detected_type"] = *patch.DetectedType
	}
	if patch.Participants != nil {
		updates["participants"] = db.StringArray(patch.Participants)
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&db.Upload{}).
			Where("session_id = ? AND id = ?", sessionID, fileID).
			Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("update upload: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}

	var upload db.Upload
	err := s.db.WithContext(ctx).First(&upload, "session_id = ? AND id = ?", sessionID, fileID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return &upload, nil
}

// DeleteUpload removes one upload.
func (s *Store) DeleteUpload(ctx context.Context, sessionID, category, fileID string) error {
	res := s.db.WithContext(ctx).
		Delete(&db.Upload{}, "session_id = ? AND category = ? AND id = ?", sessionID, category, fileID)
	if res.Error != nil {
		return fmt.Errorf("delete upload: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ========== Pending ZIP Imports ==========

// PutPendingZip records a ZIP import awaiting conversation selection.
func (s *Store) PutPendingZip(ctx context.Context, zip *db.PendingZip) error {
	if err := s.db.WithContext(ctx).Create(zip).Error; err != nil {
		return fmt.Errorf("put pending zip: %w", err)
	}
	return nil
}

// GetPendingZip returns the pending import for zipID.
func (s *Store) GetPendingZip(ctx context.Context, zipID string) (*db.PendingZip, error) {
	var zip db.PendingZip
	err := s.db.WithContext(ctx).First(&zip, "zip_id = ?", zipID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending zip: %w", err)
	}
	return &zip, nil
}

// DeletePendingZip drops the transient import state for zipID.
func (s *Store) DeletePendingZip(ctx context.Context, zipID string) error {
	if err := s.db.WithContext(ctx).Delete(&db.PendingZip{}, "zip_id = ?", zipID).Error; err != nil {
		return fmt.Errorf("delete pending zip: %w", err)
	}
	return nil
}
