// Package domain defines the persistence models for diary posts, post
// details, and characters, plus the calendar-key helpers shared by the
// sync layer. These types are mapped with GORM and form the core data
// layer of the diary sync engine.
package domain

import (
	"time"
)

// DateLayout is the canonical entry-date key: timezone-naive calendar day.
const DateLayout = "2006-01-02"

// MonthLayout is the canonical month partition key derived from an entry date.
const MonthLayout = "2006-01"

// Post is the lightweight diary entry held by the windowed store. The ID is
// assigned by the remote backend and is globally unique; a post belongs to
// exactly one EntryDate, and several posts may share a date.
//
// MonthKey is always derived from EntryDate (not CreatedAt) and is stored
// denormalized so the persistent tier can range-query by month.
type Post struct {
	ID          int64     `json:"id"           gorm:"primaryKey;autoIncrement:false"`
	OwnerID     string    `json:"owner_id"     gorm:"type:varchar(64);not null;index:idx_owner_month,priority:1"`
	EntryDate   string    `json:"entry_date"   gorm:"type:char(10);not null;index"`
	MonthKey    string    `json:"month_key"    gorm:"type:char(7);not null;index:idx_owner_month,priority:2"`
	Content     string    `json:"content"      gorm:"type:text;not null"`
	Mood        string    `json:"mood"         gorm:"type:varchar(32)"`
	AIGenerated bool      `json:"ai_generated"`
	CharacterID *int64    `json:"character_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// DetailStatus tags a PostDetail as provisional or final. While a detail is
// pending it must be re-fetched until the backend resolves it, and it is
// never written to the persistent tier.
type DetailStatus string

const (
	// DetailPending marks a detail whose server-side computation has not finished.
	DetailPending DetailStatus = "pending"
	// DetailCompleted marks a fully resolved detail.
	DetailCompleted DetailStatus = "completed"
)

// Comment is a single comment nested inside a PostDetail.
type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// PostImage is an image reference nested inside a PostDetail.
type PostImage struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// PostDetail is the expensive projection of a post: the full entry plus its
// nested collections. It is owned exclusively by the detail cache and never
// mixed into the windowed store's lightweight collection. Nested collections
// are persisted as JSON columns.
type PostDetail struct {
	PostID    int64        `json:"post_id"    gorm:"primaryKey;autoIncrement:false"`
	OwnerID   string       `json:"owner_id"   gorm:"type:varchar(64);not null;index"`
	EntryDate string       `json:"entry_date" gorm:"type:char(10);not null"`
	Content   string       `json:"content"    gorm:"type:text;not null"`
	Mood      string       `json:"mood"       gorm:"type:varchar(32)"`
	Status    DetailStatus `json:"status"     gorm:"type:varchar(16);not null"`
	Comments  []Comment    `json:"comments"   gorm:"serializer:json"`
	Images    []PostImage  `json:"images"     gorm:"serializer:json"`
	Hashtags  []string     `json:"hashtags"   gorm:"serializer:json"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName returns the database table name for PostDetail.
func (PostDetail) TableName() string { return "post_details" }

// Pending reports whether the detail is still provisional.
func (d *PostDetail) Pending() bool { return d.Status == DetailPending }

// Character is a reference entity: an AI companion persona the user can
// follow. The per-user relationship sub-record is optional until the first
// follow toggle and lives in CharacterRelation.
type Character struct {
	ID        int64     `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	AvatarURL string    `json:"avatar_url" gorm:"type:text"`
	Persona   string    `json:"persona"    gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`

	// Relation is the caller's relationship sub-record, when one exists.
	// Populated from the relations table, never mapped as a column.
	Relation *CharacterRelation `json:"relation,omitempty" gorm:"-"`
}

// TableName returns the database table name for Character.
func (Character) TableName() string { return "characters" }

// CharacterRelation is the per-(owner, character) relationship sub-record.
// At most one row may exist per pair; the unique index mirrors the backend
// constraint client-side.
type CharacterRelation struct {
	ID          int64     `json:"id"           gorm:"primaryKey;autoIncrement:false"`
	OwnerID     string    `json:"owner_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_relation_owner_character"`
	CharacterID int64     `json:"character_id" gorm:"not null;uniqueIndex:ux_relation_owner_character"`
	Following   bool      `json:"following"`
	Affinity    int       `json:"affinity"     gorm:"check:affinity BETWEEN 0 AND 100"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for CharacterRelation.
func (CharacterRelation) TableName() string { return "character_relations" }

// MonthOf derives the YYYY-MM partition key from a YYYY-MM-DD entry date.
// Malformed dates yield an empty key, which no stored post carries.
func MonthOf(entryDate string) string {
	if len(entryDate) < 7 {
		return ""
	}
	return entryDate[:7]
}

// MonthKeyOf formats a time as a YYYY-MM partition key.
func MonthKeyOf(t time.Time) string { return t.Format(MonthLayout) }

// DateKeyOf formats a time as a YYYY-MM-DD entry-date key.
func DateKeyOf(t time.Time) string { return t.Format(DateLayout) }

// MonthWindow returns the contiguous month keys center-radius .. center+radius
// in ascending order. The sliding window the post store keeps resident uses
// radius 2 (five months).
func MonthWindow(center time.Time, radius int) []string {
	first := time.Date(center.Year(), center.Month(), 1, 0, 0, 0, 0, time.UTC)
	keys := make([]string, 0, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		keys = append(keys, first.AddDate(0, i, 0).Format(MonthLayout))
	}
	return keys
}

// MonthBounds returns the first and last calendar day of a YYYY-MM month key,
// as YYYY-MM-DD strings. It returns ok=false for malformed keys.
func MonthBounds(monthKey string) (first, last string, ok bool) {
	t, err := time.Parse(MonthLayout, monthKey)
	if err != nil {
		return "", "", false
	}
	firstDay := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstDay.AddDate(0, 1, -1)
	return firstDay.Format(DateLayout), lastDay.Format(DateLayout), true
}
