package store

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/events"
	"github.com/tbourn/go-diary-sync/internal/imgcache"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/repo"
)

// Engine is the composition root of the sync layer: it owns the stores,
// caches, and event buses, and carries cross-cutting operations such as
// user switching.
type Engine struct {
	DB         *gorm.DB
	Remote     remote.DataSource
	PostBus    *events.Bus[events.PostChange]
	DetailBus  *events.Bus[events.DetailChange]
	Posts      *PostStore
	Details    *DetailCache
	Characters *CharacterStore
	Stats      *StatsCache
	Images     *imgcache.Cache

	log zerolog.Logger
}

// EngineOptions carries per-store tuning; zero values use each store's
// defaults.
type EngineOptions struct {
	OwnerID string
	Details DetailCacheOptions
}

// NewEngine wires all stores against one database handle and one remote
// data source. images may be nil.
func NewEngine(db *gorm.DB, rds remote.DataSource, images *imgcache.Cache, opts EngineOptions, log zerolog.Logger) *Engine {
	postBus := events.NewBus[events.PostChange]()
	detailBus := events.NewBus[events.DetailChange]()

	details := NewDetailCache(db, rds, detailBus, opts.OwnerID, opts.Details, log)
	posts := NewPostStore(db, rds, postBus, details, images, opts.OwnerID, log)
	characters := NewCharacterStore(db, rds, opts.OwnerID, log)
	stats := NewStatsCache(db, rds, postBus, opts.OwnerID, log)

	return &Engine{
		DB:         db,
		Remote:     rds,
		PostBus:    postBus,
		DetailBus:  detailBus,
		Posts:      posts,
		Details:    details,
		Characters: characters,
		Stats:      stats,
		Images:     images,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Start performs the initial loads: the post window and the character
// roster. Partial failures are returned but leave the engine usable.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Posts.LoadInitial(ctx); err != nil {
		e.log.Warn().Err(err).Msg("initial post load incomplete")
		return err
	}
	if err := e.Characters.LoadAll(ctx); err != nil {
		e.log.Warn().Err(err).Msg("character roster load failed")
		return err
	}
	return nil
}

// SwitchUser rebinds every store to a new owner: all memory tiers are
// dropped, the persistent tier is cleared (it is scoped to a single owner),
// and the image memory tier is emptied. The disk image tier survives since
// its content is keyed by URL, not by owner.
func (e *Engine) SwitchUser(ctx context.Context, ownerID string) error {
	e.Posts.reset(ownerID)
	e.Details.reset(ownerID)
	e.Characters.reset(ownerID)
	e.Stats.reset(ownerID)
	if e.Images != nil {
		e.Images.DropMemory()
	}
	if err := repo.ClearAll(ctx, e.DB); err != nil {
		return err
	}
	e.log.Info().Str("owner", ownerID).Msg("switched user")
	return nil
}

// Close releases bus subscriptions held by the engine's caches.
func (e *Engine) Close() {
	e.Stats.Close()
}
