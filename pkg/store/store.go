// Local session cache backed by sqlite. This is the client-side analog of
// the browser's per-profile storage: sessions, messages, uploads, images,
// preprocessed artifacts, secrets and settings all live here so the UI can
// render without the backend and survive restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alterecho/alterecho/pkg/db"
	"github.com/alterecho/alterecho/pkg/utils"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Store provides durable local persistence for all session-scoped entities.
// Every operation is a single read or single atomic put; concurrent writers
// to the same key get last-write-wins, which matches the single-user model.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (or creates) the sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	s := New(gdb)
	if err := s.AutoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an already-open gorm DB. Callers must run AutoMigrate themselves.
func New(gdb *gorm.DB) *Store {
	return &Store{
		db:     gdb,
		logger: utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&db.Session{},
		&db.Message{},
		&db.Upload{},
		&db.Preprocessed{},
		&db.Image{},
		&db.Secret{},
		&db.Setting{},
		&db.PendingZip{},
	)
}

// ========== Session Management ==========

// ListSessions returns all sessions, newest-created first.
func (s *Store) ListSessions(ctx context.Context) ([]db.Session, error) {
	var sessions []db.Session
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession creates a new session with a generated id and an empty
// message list.
func (s *Store) CreateSession(ctx context.Context, name string) (*db.Session, error) {
	return s.CreateSessionWithID(ctx, NewID(8), name)
}

// CreateSessionWithID creates a session under a caller-supplied id, used
// when mirroring a backend-created session so both sides agree on it.
func (s *Store) CreateSessionWithID(ctx context.Context, id, name string) (*db.Session, error) {
	if strings.TrimSpace(name) == "" {
		name = "New Echo"
	}
	if id == "" {
		id = NewID(8)
	}
	session := &db.Session{
		ID:      id,
		Name:    name,
		Preview: db.DefaultPreview,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*db.Session, error) {
	var session db.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// SessionPatch holds the fields UpdateSession may change. Nil pointers are
// left untouched.
type SessionPatch struct {
	Name            *string
	Preview         *string
	Subject         *string
	VoiceID         *string
	VoiceCreatedAt  *time.Time
	VoiceLastUsedAt *time.Time
}

// UpdateSession merges the patch into the session and returns the result.
func (s *Store) UpdateSession(ctx context.Context, id string, patch SessionPatch) (*db.Session, error) {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Preview != nil {
		updates["preview"] = *patch.Preview
	}
	if patch.Subject != nil {
		updates["subject"] = *patch.Subject
	}
	if patch.VoiceID != nil {
		updates["voice_id"] = *patch.VoiceID
	}
	if patch.VoiceCreatedAt != nil {
		updates["voice_created_at"] = *patch.VoiceCreatedAt
	}
	if patch.VoiceLastUsedAt != nil {
		updates["voice_last_used_at"] = *patch.VoiceLastUsedAt
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&db.Session{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("update session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetSession(ctx, id)
}

// DeleteSession removes the session and, as separate deletes issued in this
// order, its messages, uploads, preprocessed artifact, images and pending
// zip imports. No cross-delete atomicity is promised.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	d := s.db.WithContext(ctx)
	if err := d.Delete(&db.Message{}, "session_id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if err := d.Delete(&db.Upload{}, "session_id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session uploads: %w", err)
	}
	if err := d.Delete(&db.Preprocessed{}, "session_id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session artifact: %w", err)
	}
	if err := d.Delete(&db.Image{}, "session_id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session images: %w", err)
	}
	if err := d.Delete(&db.PendingZip{}, "session_id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session pending zips: %w", err)
	}
	if err := d.Delete(&db.Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// NewID returns a short hex id in the backend's style (uuid4 hex, truncated).
func NewID(n int) string {
	h := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}
