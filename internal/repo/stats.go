// Package repo implements the persistent tier for the diary sync engine,
// backed by GORM. This file provides small aggregate/statistics queries over
// a single month partition. Each function is context-aware and safe to call
// from the stats cache or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// MonthAggregate is the per-month summary computed from the posts table.
type MonthAggregate struct {
	MonthKey   string         `json:"month_key"`
	PostCount  int64          `json:"post_count"`
	ActiveDays int64          `json:"active_days"`
	MoodCounts map[string]int `json:"mood_counts"`
}

// MonthStats returns aggregate metadata for one owner's month: total posts,
// number of distinct entry dates, and the per-mood post counts.
//
// It executes three lightweight queries against the posts table scoped to the
// provided ownerID and monthKey. When the month has no posts, the returned
// aggregate carries zero counts and an empty mood map.
func MonthStats(ctx context.Context, db *gorm.DB, ownerID, monthKey string) (*MonthAggregate, error) {
	q := db.WithContext(ctx).Model(&domain.Post{}).
		Where("owner_id = ? AND month_key = ?", ownerID, monthKey)

	agg := &MonthAggregate{MonthKey: monthKey, MoodCounts: map[string]int{}}

	// Count
	if err := q.Count(&agg.PostCount).Error; err != nil {
		return nil, err
	}
	if agg.PostCount == 0 {
		return agg, nil
	}

	// Distinct active days
	if err := q.Distinct("entry_date").Count(&agg.ActiveDays).Error; err != nil {
		return nil, err
	}

	// Mood breakdown
	var rows []struct {
		Mood string
		N    int
	}
	if err := db.WithContext(ctx).Model(&domain.Post{}).
		Select("mood, count(*) as n").
		Where("owner_id = ? AND month_key = ? AND mood <> ''", ownerID, monthKey).
		Group("mood").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		agg.MoodCounts[r.Mood] = r.N
	}
	return agg, nil
}
