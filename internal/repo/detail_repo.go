// Package repo implements the persistent tier for the diary sync engine,
// backed by GORM. This file provides repository functions for the PostDetail
// model. Pending details are never written here: persistence of a detail
// asserts that its server-side computation has completed.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// ErrPendingDetail is returned when a caller attempts to persist a detail
// whose status is still pending.
var ErrPendingDetail = errors.New("repo: refusing to persist pending detail")

// UpsertDetail inserts or replaces a resolved post detail keyed by post id.
// It returns ErrPendingDetail when the detail is still pending.
func UpsertDetail(ctx context.Context, db *gorm.DB, d *domain.PostDetail) error {
	if d.Pending() {
		return ErrPendingDetail
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}},
			UpdateAll: true,
		}).
		Create(d).Error
}

// GetDetail fetches the persisted detail for a post, or ErrNotFound when the
// detail has never been resolved and persisted.
func GetDetail(ctx context.Context, db *gorm.DB, ownerID string, postID int64) (*domain.PostDetail, error) {
	var d domain.PostDetail
	err := db.WithContext(ctx).
		Where("post_id = ? AND owner_id = ?", postID, ownerID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDetail removes the persisted detail for a post. Deleting a missing
// detail is not an error; the sync layer calls this unconditionally when the
// underlying post is updated or deleted.
func DeleteDetail(ctx context.Context, db *gorm.DB, ownerID string, postID int64) error {
	return db.WithContext(ctx).
		Where("post_id = ? AND owner_id = ?", postID, ownerID).
		Delete(&domain.PostDetail{}).Error
}
