package repo

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

func seedMoodPost(t *testing.T, db *gorm.DB, id int64, date, mood string) {
	t.Helper()
	p := domain.Post{
		ID:        id,
		OwnerID:   "u1",
		EntryDate: date,
		Content:   "x",
		Mood:      mood,
		CreatedAt: time.Now().UTC(),
	}
	if err := UpsertPosts(context.Background(), db, []domain.Post{p}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMonthStats_EmptyMonth(t *testing.T) {
	db := newRepoDB(t)
	agg, err := MonthStats(context.Background(), db, "u1", "2025-06")
	if err != nil {
		t.Fatalf("MonthStats: %v", err)
	}
	if agg.PostCount != 0 || agg.ActiveDays != 0 || len(agg.MoodCounts) != 0 {
		t.Fatalf("expected zero aggregate, got %+v", agg)
	}
}

func TestMonthStats_CountsDaysAndMoods(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	seedMoodPost(t, db, 1, "2025-06-01", "happy")
	seedMoodPost(t, db, 2, "2025-06-01", "sad")
	seedMoodPost(t, db, 3, "2025-06-15", "happy")
	seedMoodPost(t, db, 4, "2025-06-20", "")        // blank mood excluded from breakdown
	seedMoodPost(t, db, 5, "2025-07-01", "excited") // other month

	agg, err := MonthStats(ctx, db, "u1", "2025-06")
	if err != nil {
		t.Fatalf("MonthStats: %v", err)
	}
	if agg.PostCount != 4 {
		t.Fatalf("post count = %d, want 4", agg.PostCount)
	}
	if agg.ActiveDays != 3 {
		t.Fatalf("active days = %d, want 3", agg.ActiveDays)
	}
	if agg.MoodCounts["happy"] != 2 || agg.MoodCounts["sad"] != 1 {
		t.Fatalf("unexpected mood counts: %v", agg.MoodCounts)
	}
	if _, ok := agg.MoodCounts[""]; ok {
		t.Fatal("blank mood must not appear in breakdown")
	}
}
