package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/domain"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/repo"
)

// defaultAffinity seeds a freshly created relation.
const defaultAffinity = 50

// CharacterStore holds the full character roster in memory (the set is
// small and browsed as a whole, so no windowing) together with the owner's
// per-character relation records.
type CharacterStore struct {
	db     *gorm.DB
	remote remote.DataSource
	log    zerolog.Logger

	mu         sync.Mutex
	ownerID    string
	characters map[int64]*domain.Character
	loaded     bool
}

// NewCharacterStore wires a CharacterStore for the given owner.
func NewCharacterStore(db *gorm.DB, rds remote.DataSource, ownerID string, log zerolog.Logger) *CharacterStore {
	return &CharacterStore{
		db:         db,
		remote:     rds,
		log:        log.With().Str("component", "characterstore").Logger(),
		ownerID:    ownerID,
		characters: make(map[int64]*domain.Character),
	}
}

// LoadAll loads the roster eagerly: persistent tier first, remote on miss
// (with write-through), then attaches the owner's relations. Idempotent.
func (s *CharacterStore) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return nil
	}
	owner := s.ownerID
	s.mu.Unlock()

	chars, err := repo.ListCharacters(ctx, s.db)
	if err != nil {
		s.log.Warn().Err(err).Msg("persistent roster read failed, falling back to remote")
		chars = nil
	}
	if len(chars) == 0 {
		chars, err = s.remote.ListCharacters(ctx, owner)
		if err != nil {
			return err
		}
		if err := repo.UpsertCharacters(ctx, s.db, chars); err != nil {
			s.log.Warn().Err(err).Msg("roster write-through failed")
		}
	}

	rels, err := repo.ListRelations(ctx, s.db, owner)
	if err != nil {
		s.log.Warn().Err(err).Msg("relation load failed, roster served without relations")
		rels = nil
	}
	relByChar := make(map[int64]domain.CharacterRelation, len(rels))
	for _, r := range rels {
		relByChar[r.CharacterID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID != owner {
		return nil
	}
	for i := range chars {
		c := chars[i]
		if r, ok := relByChar[c.ID]; ok {
			rel := r
			c.Relation = &rel
		}
		s.characters[c.ID] = &c
	}
	s.loaded = true
	return nil
}

// All returns the roster sorted by name.
func (s *CharacterStore) All() []domain.Character {
	s.mu.Lock()
	out := make([]domain.Character, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, *c)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns one character by id, or ErrCharacterNotFound.
func (s *CharacterStore) Get(characterID int64) (*domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[characterID]
	if !ok {
		return nil, ErrCharacterNotFound
	}
	cp := *c
	return &cp, nil
}

// ToggleFollow flips the follow state for one character, creating the
// relation on first touch. The relation is resolved through the tiers
// (memory, persistent, remote) before deciding between the create and
// update paths; exactly one relation record exists per (owner, character)
// pair. The remote mutation happens first, then the persistent write, then
// memory. Returns the new follow state.
func (s *CharacterStore) ToggleFollow(ctx context.Context, characterID int64) (bool, error) {
	s.mu.Lock()
	owner := s.ownerID
	var known *domain.CharacterRelation
	if c, ok := s.characters[characterID]; ok && c.Relation != nil {
		rel := *c.Relation
		known = &rel
	}
	s.mu.Unlock()

	if known == nil {
		if r, err := repo.GetRelation(ctx, s.db, owner, characterID); err == nil {
			known = r
		} else if !errors.Is(err, repo.ErrNotFound) {
			s.log.Warn().Err(err).Int64("character_id", characterID).Msg("persistent relation read failed")
		}
	}
	if known == nil {
		r, err := s.remote.GetRelation(ctx, owner, characterID)
		switch {
		case err == nil:
			known = r
		case errors.Is(err, remote.ErrNotFound):
		default:
			return false, err
		}
	}

	var updated *domain.CharacterRelation
	if known == nil {
		r, err := s.remote.CreateRelation(ctx, owner, characterID, true, defaultAffinity)
		if err != nil {
			return false, err
		}
		updated = r
	} else {
		r, err := s.remote.UpdateRelation(ctx, known.ID, !known.Following)
		if err != nil {
			return false, err
		}
		updated = r
	}
	updated.OwnerID = owner
	updated.CharacterID = characterID

	if err := repo.UpsertRelation(ctx, s.db, updated); err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.ownerID == owner {
		if c, ok := s.characters[characterID]; ok {
			rel := *updated
			c.Relation = &rel
		}
	}
	s.mu.Unlock()
	return updated.Following, nil
}

// reset rebinds the store to a new owner, dropping all memory state.
func (s *CharacterStore) reset(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerID = ownerID
	s.characters = make(map[int64]*domain.Character)
	s.loaded = false
}
