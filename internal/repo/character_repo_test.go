package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

func TestUpsertCharacters_ListOrderedByName(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	chars := []domain.Character{
		{ID: 2, Name: "Zoe"},
		{ID: 1, Name: "Aiko"},
	}
	if err := UpsertCharacters(ctx, db, chars); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ListCharacters(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Aiko" || got[1].Name != "Zoe" {
		t.Fatalf("unexpected list: %+v", got)
	}

	// Re-upserting replaces rather than duplicating.
	chars[0].Name = "Zoe II"
	if err := UpsertCharacters(ctx, db, chars[:1]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _ = ListCharacters(ctx, db)
	if len(got) != 2 {
		t.Fatalf("expected 2 characters after re-upsert, got %d", len(got))
	}
}

func TestGetRelation_NotFoundThenFound(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := GetRelation(ctx, db, "u1", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rel := &domain.CharacterRelation{ID: 9, OwnerID: "u1", CharacterID: 5, Following: true, Affinity: 50}
	if err := UpsertRelation(ctx, db, rel); err != nil {
		t.Fatalf("upsert relation: %v", err)
	}

	got, err := GetRelation(ctx, db, "u1", 5)
	if err != nil {
		t.Fatalf("get relation: %v", err)
	}
	if !got.Following || got.Affinity != 50 || got.ID != 9 {
		t.Fatalf("unexpected relation: %+v", got)
	}

	// Another owner sees nothing.
	if _, err := GetRelation(ctx, db, "u2", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other owner, got %v", err)
	}
}

func TestUpsertRelation_UpdatesInPlace(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	rel := &domain.CharacterRelation{ID: 9, OwnerID: "u1", CharacterID: 5, Following: true, Affinity: 50}
	if err := UpsertRelation(ctx, db, rel); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rel.Following = false
	rel.Affinity = 60
	if err := UpsertRelation(ctx, db, rel); err != nil {
		t.Fatalf("update: %v", err)
	}

	rels, err := ListRelations(ctx, db, "u1")
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected exactly one relation row, got %d", len(rels))
	}
	if rels[0].Following || rels[0].Affinity != 60 {
		t.Fatalf("relation not updated: %+v", rels[0])
	}
}
