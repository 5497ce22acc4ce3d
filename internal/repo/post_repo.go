// Package repo implements the persistent tier for the diary sync engine,
// backed by GORM. This file provides repository functions for the Post model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no sync logic, only keyed
// upserts, range queries by month key, and deletes.
//
// Error semantics:
//   - When a post is not found, functions return gorm.ErrRecordNotFound
//     (exported from this package as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// UpsertPosts inserts or replaces the given posts keyed by id. MonthKey is
// (re)derived from EntryDate before writing so the persisted partition key
// can never drift from the date.
func UpsertPosts(ctx context.Context, db *gorm.DB, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	for i := range posts {
		posts[i].MonthKey = domain.MonthOf(posts[i].EntryDate)
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&posts).Error
}

// DeletePosts removes the posts with the given ids belonging to ownerID.
// Missing ids are not an error; the delete is idempotent.
func DeletePosts(ctx context.Context, db *gorm.DB, ownerID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&domain.Post{}).Error
}

// ListPostsByMonth returns all posts of ownerID whose month key equals
// monthKey, ordered by entry date then creation time ascending. It returns
// an empty slice when the month holds no posts.
func ListPostsByMonth(ctx context.Context, db *gorm.DB, ownerID, monthKey string) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Where("owner_id = ? AND month_key = ?", ownerID, monthKey).
		Order("entry_date asc, created_at asc").
		Find(&out).Error
	return out, err
}

