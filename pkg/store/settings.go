package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alterecho/alterecho/pkg/db"
)

// ========== Secrets ==========

// GetSecret returns the named credential value, or ErrNotFound.
func (s *Store) GetSecret(ctx context.Context, name string) (string, error) {
	var secret db.Secret
	err := s.db.WithContext(ctx).First(&secret, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get secret: %w", err)
	}
	return secret.Value, nil
}

// SaveSecret upserts the named credential.
func (s *Store) SaveSecret(ctx context.Context, name, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&db.Secret{Name: name, Value: value}).Error
	if err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

// DeleteSecret removes the named credential. Deleting an absent secret is
// not an error.
func (s *Store) DeleteSecret(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Delete(&db.Secret{}, "name = ?", name).Error; err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// HasSecret reports whether the named credential exists.
func (s *Store) HasSecret(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Secret{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("has secret: %w", err)
	}
	return count > 0, nil
}

// ========== Settings ==========

// GetSettings returns the merged settings map: documented defaults overlaid
// with whatever was saved.
func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	merged := make(map[string]string, len(db.DefaultSettings))
	for k, v := range db.DefaultSettings {
		merged[k] = v
	}
	var rows []db.Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	for _, row := range rows {
		merged[row.Name] = row.Value
	}
	return merged, nil
}

// SaveSettings merges the partial map into stored settings. Keys absent
// from the argument keep their previous value.
func (s *Store) SaveSettings(ctx context.Context, partial map[string]string) error {
	for name, value := range partial {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).Create(&db.Setting{Name: name, Value: value}).Error
		if err != nil {
			return fmt.Errorf("save setting %s: %w", name, err)
		}
	}
	return nil
}
