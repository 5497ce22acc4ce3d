// Package repo implements the persistent tier for the diary sync engine,
// backed by GORM. This file provides repository functions for the Character
// reference data and the per-owner relationship sub-records.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// UpsertCharacters inserts or replaces the given characters keyed by id.
func UpsertCharacters(ctx context.Context, db *gorm.DB, chars []domain.Character) error {
	if len(chars) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&chars).Error
}

// ListCharacters returns the full persisted character set ordered by name.
// The reference-data set is small enough to load eagerly.
func ListCharacters(ctx context.Context, db *gorm.DB) ([]domain.Character, error) {
	var out []domain.Character
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// GetRelation fetches the relationship sub-record for (ownerID, characterID),
// or ErrNotFound when the owner never toggled a relationship for that
// character. The compound lookup enforces the at-most-one-record invariant
// before any insert.
func GetRelation(ctx context.Context, db *gorm.DB, ownerID string, characterID int64) (*domain.CharacterRelation, error) {
	var rel domain.CharacterRelation
	err := db.WithContext(ctx).
		Where("owner_id = ? AND character_id = ?", ownerID, characterID).
		First(&rel).Error
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ListRelations returns all relationship sub-records for an owner.
func ListRelations(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.CharacterRelation, error) {
	var out []domain.CharacterRelation
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&out).Error
	return out, err
}

// UpsertRelation inserts or replaces a relationship sub-record keyed by id.
// The unique (owner_id, character_id) index rejects a duplicate record for
// the same pair under a different id.
func UpsertRelation(ctx context.Context, db *gorm.DB, rel *domain.CharacterRelation) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rel).Error
}
