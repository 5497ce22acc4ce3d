// Package store implements the sync engine's business layer. This file
// contains the PostStore: the authoritative in-memory view of diary posts
// within a sliding five-month window, kept consistent with the remote
// backend and the persistent tier.
//
// Tier order on reads is memory → persistent → remote; mutations go to the
// remote first (it assigns ids and is the source of truth), then memory and
// the persistent tier, and finally publish exactly one change event per
// touched post on the bus.
//
// Concurrency: the in-memory collection is guarded by a single mutex and
// only mutated through PostStore methods. Network and database calls happen
// outside the lock; background fills re-check window membership before
// merging so an abandoned fill cannot resurrect an evicted month.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/domain"
	"github.com/tbourn/go-diary-sync/internal/events"
	"github.com/tbourn/go-diary-sync/internal/imgcache"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/repo"
)

// WindowRadius is the number of months kept resident on each side of the
// window center: a five-month window in total.
const WindowRadius = 2

// PostStore is the windowed entity store for diary posts.
type PostStore struct {
	db      *gorm.DB
	remote  remote.DataSource
	bus     *events.Bus[events.PostChange]
	details *DetailCache
	images  *imgcache.Cache // may be nil; used for fire-and-forget warms
	log     zerolog.Logger
	now     func() time.Time

	mu           sync.Mutex
	ownerID      string
	posts        map[int64]domain.Post
	loadedMonths map[string]struct{}
	initialized  bool
}

// NewPostStore wires a PostStore. images may be nil when image warming is
// not wanted (tests, headless use).
func NewPostStore(db *gorm.DB, rds remote.DataSource, bus *events.Bus[events.PostChange], details *DetailCache, images *imgcache.Cache, ownerID string, log zerolog.Logger) *PostStore {
	return &PostStore{
		db:           db,
		remote:       rds,
		bus:          bus,
		details:      details,
		images:       images,
		log:          log.With().Str("component", "poststore").Logger(),
		now:          time.Now,
		ownerID:      ownerID,
		posts:        make(map[int64]domain.Post),
		loadedMonths: make(map[string]struct{}),
	}
}

// LoadInitial loads the five-month window centered on "now", month by month,
// preferring the persistent tier and falling back to the remote on a
// per-month miss. It is idempotent: every call after the first is a no-op.
func (s *PostStore) LoadInitial(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	var errs []error
	for _, month := range domain.MonthWindow(s.now(), WindowRadius) {
		if err := s.loadMonth(ctx, month); err != nil {
			errs = append(errs, err)
			s.log.Warn().Err(err).Str("month", month).Msg("initial load failed for month")
		}
	}
	return errors.Join(errs...)
}

// EnsureWindow recenters the resident window on center. Posts outside the
// new window are evicted from memory synchronously (never from the
// persistent tier); months inside the window that are not yet loaded are
// filled in the background, best-effort.
func (s *PostStore) EnsureWindow(ctx context.Context, center time.Time) {
	window := domain.MonthWindow(center, WindowRadius)
	inWindow := make(map[string]struct{}, len(window))
	for _, m := range window {
		inWindow[m] = struct{}{}
	}

	s.mu.Lock()
	for id, p := range s.posts {
		if _, ok := inWindow[p.MonthKey]; !ok {
			delete(s.posts, id)
		}
	}
	for m := range s.loadedMonths {
		if _, ok := inWindow[m]; !ok {
			delete(s.loadedMonths, m)
		}
	}
	var missing []string
	for _, m := range window {
		if _, ok := s.loadedMonths[m]; !ok {
			missing = append(missing, m)
		}
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return
	}
	go func() {
		// Detached from the caller: a recenter must not be cancelled by the
		// triggering request going away.
		bg := context.WithoutCancel(ctx)
		for _, m := range missing {
			if err := s.loadMonth(bg, m); err != nil {
				s.log.Debug().Err(err).Str("month", m).Msg("background window fill failed")
			}
		}
	}()
}

// loadMonth brings one month into memory: persistent tier first, remote on
// miss. Persistent-tier read errors degrade silently to the remote.
func (s *PostStore) loadMonth(ctx context.Context, month string) error {
	s.mu.Lock()
	if _, ok := s.loadedMonths[month]; ok {
		s.mu.Unlock()
		return nil
	}
	owner := s.ownerID
	s.mu.Unlock()

	persisted, err := repo.ListPostsByMonth(ctx, s.db, owner, month)
	if err != nil {
		s.log.Warn().Err(err).Str("month", month).Msg("persistent tier read failed, falling back to remote")
		persisted = nil
	}
	if len(persisted) > 0 {
		s.mergeMonth(owner, month, persisted)
		return nil
	}

	first, last, ok := domain.MonthBounds(month)
	if !ok {
		return ErrBadDate
	}
	fetched, err := s.remote.ListPosts(ctx, owner, first, last)
	if err != nil {
		return err
	}
	if err := repo.UpsertPosts(ctx, s.db, fetched); err != nil {
		s.log.Warn().Err(err).Str("month", month).Msg("backfill of persistent tier failed")
	}
	s.mergeMonth(owner, month, fetched)
	return nil
}

// mergeMonth folds a month's posts into memory and marks the month loaded.
// It re-checks ownership so an abandoned fill from before a user switch
// cannot pollute the new owner's view.
func (s *PostStore) mergeMonth(owner, month string, posts []domain.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID != owner {
		return
	}
	for _, p := range posts {
		p.MonthKey = domain.MonthOf(p.EntryDate)
		s.posts[p.ID] = p
	}
	s.loadedMonths[month] = struct{}{}
}

// Refresh reconciles the five-month window around center against the remote
// source of truth. Each month is processed independently: the remote list is
// diffed against the persisted list, deletes then upserts are applied to the
// persistent tier and mirrored into memory, and one event is published per
// touched post. A failed month is recovered from whatever the persistent
// tier already holds and reported in the aggregate RefreshError; succeeded
// months keep their results.
func (s *PostStore) Refresh(ctx context.Context, center time.Time) error {
	var failed []string
	var causes []error
	for _, month := range domain.MonthWindow(center, WindowRadius) {
		if err := s.refreshMonth(ctx, month); err != nil {
			s.log.Error().Err(err).Str("month", month).Msg("month refresh failed")
			failed = append(failed, month)
			causes = append(causes, err)
			s.recoverMonth(ctx, month)
		}
	}
	if len(failed) > 0 {
		return &RefreshError{Months: failed, Err: errors.Join(causes...)}
	}
	return nil
}

func (s *PostStore) refreshMonth(ctx context.Context, month string) error {
	first, last, ok := domain.MonthBounds(month)
	if !ok {
		return ErrBadDate
	}
	s.mu.Lock()
	owner := s.ownerID
	s.mu.Unlock()

	fetched, err := s.remote.ListPosts(ctx, owner, first, last)
	if err != nil {
		return err
	}
	persisted, err := repo.ListPostsByMonth(ctx, s.db, owner, month)
	if err != nil {
		return err
	}

	persistedByID := make(map[int64]domain.Post, len(persisted))
	for _, p := range persisted {
		persistedByID[p.ID] = p
	}
	remoteIDs := lo.Map(fetched, func(p domain.Post, _ int) int64 { return p.ID })
	persistedIDs := lo.Map(persisted, func(p domain.Post, _ int) int64 { return p.ID })

	toDelete, toAdd := lo.Difference(persistedIDs, remoteIDs)
	addSet := make(map[int64]struct{}, len(toAdd))
	for _, id := range toAdd {
		addSet[id] = struct{}{}
	}

	if err := repo.DeletePosts(ctx, s.db, owner, toDelete); err != nil {
		return err
	}
	if err := repo.UpsertPosts(ctx, s.db, fetched); err != nil {
		return err
	}

	s.mu.Lock()
	if s.ownerID == owner {
		for _, id := range toDelete {
			delete(s.posts, id)
		}
		for _, p := range fetched {
			p.MonthKey = domain.MonthOf(p.EntryDate)
			s.posts[p.ID] = p
		}
		s.loadedMonths[month] = struct{}{}
	}
	s.mu.Unlock()

	// One event per touched id: Deleted for persisted-only, Created for
	// remote-only, Updated for the intersection.
	for _, id := range toDelete {
		s.bus.Publish(events.PostChange{Kind: events.Deleted, PostID: id, DateKey: persistedByID[id].EntryDate})
	}
	for _, p := range fetched {
		kind := events.Updated
		if _, ok := addSet[p.ID]; ok {
			kind = events.Created
		}
		s.bus.Publish(events.PostChange{Kind: kind, PostID: p.ID, DateKey: p.EntryDate})
	}
	return nil
}

// recoverMonth restores a failed month's in-memory view from the persistent
// tier. Deliberate availability-over-consistency tradeoff: the month may be
// stale with respect to the remote until the next successful refresh.
func (s *PostStore) recoverMonth(ctx context.Context, month string) {
	s.mu.Lock()
	owner := s.ownerID
	s.mu.Unlock()

	persisted, err := repo.ListPostsByMonth(ctx, s.db, owner, month)
	if err != nil {
		s.log.Warn().Err(err).Str("month", month).Msg("month recovery failed, dropping month from memory")
		s.mu.Lock()
		if s.ownerID == owner {
			for id, p := range s.posts {
				if p.MonthKey == month {
					delete(s.posts, id)
				}
			}
			delete(s.loadedMonths, month)
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID != owner {
		return
	}
	for id, p := range s.posts {
		if p.MonthKey == month {
			delete(s.posts, id)
		}
	}
	for _, p := range persisted {
		s.posts[p.ID] = p
	}
	s.loadedMonths[month] = struct{}{}
}

// Create creates a post canonically at the remote, inserts it into memory,
// writes it through to the persistent tier, and publishes Created. Image
// warming is a fire-and-forget side effect that never blocks the return.
// Remote failures are surfaced to the caller; a write-through failure is
// logged and healed by the next refresh.
func (s *PostStore) Create(ctx context.Context, in remote.CreatePostInput) (*domain.Post, error) {
	if in.Content == "" {
		return nil, ErrEmptyContent
	}
	if _, err := time.Parse(domain.DateLayout, in.EntryDate); err != nil {
		return nil, ErrBadDate
	}
	s.mu.Lock()
	in.OwnerID = s.ownerID
	s.mu.Unlock()

	p, err := s.remote.CreatePost(ctx, in)
	if err != nil {
		return nil, err
	}
	p.MonthKey = domain.MonthOf(p.EntryDate)

	s.mu.Lock()
	if s.ownerID == in.OwnerID {
		s.posts[p.ID] = *p
		s.loadedMonths[p.MonthKey] = struct{}{}
	}
	s.mu.Unlock()

	if err := repo.UpsertPosts(ctx, s.db, []domain.Post{*p}); err != nil {
		s.log.Warn().Err(err).Int64("post_id", p.ID).Msg("write-through after create failed")
	}
	if s.images != nil && len(in.ImageURLs) > 0 {
		s.images.Prefetch(context.WithoutCancel(ctx), in.ImageURLs)
	}

	s.bus.Publish(events.PostChange{Kind: events.Created, PostID: p.ID, DateKey: p.EntryDate})
	return p, nil
}

// Update applies a partial update at the remote, replaces the in-memory
// post, and invalidates the detail record in both the persistent tier and
// the detail cache so the next detail view re-fetches cleanly. The
// invalidation is synchronous with the mutation.
func (s *PostStore) Update(ctx context.Context, postID int64, in remote.UpdatePostInput) (*domain.Post, error) {
	p, err := s.remote.UpdatePost(ctx, postID, in)
	if err != nil {
		return nil, err
	}
	p.MonthKey = domain.MonthOf(p.EntryDate)

	s.mu.Lock()
	owner := s.ownerID
	s.posts[p.ID] = *p
	s.mu.Unlock()

	if err := repo.UpsertPosts(ctx, s.db, []domain.Post{*p}); err != nil {
		s.log.Warn().Err(err).Int64("post_id", p.ID).Msg("write-through after update failed")
	}
	if err := repo.DeleteDetail(ctx, s.db, owner, postID); err != nil {
		s.log.Warn().Err(err).Int64("post_id", postID).Msg("detail invalidation failed")
	}
	if s.details != nil {
		s.details.Remove(postID)
	}

	s.bus.Publish(events.PostChange{Kind: events.Updated, PostID: p.ID, DateKey: p.EntryDate})
	return p, nil
}

// Delete removes a post from the remote, memory, the persistent tier, and
// the detail cache, then publishes Deleted.
func (s *PostStore) Delete(ctx context.Context, postID int64, dateKey string) error {
	if err := s.remote.DeletePost(ctx, postID); err != nil {
		return err
	}

	s.mu.Lock()
	owner := s.ownerID
	delete(s.posts, postID)
	s.mu.Unlock()

	if err := repo.DeletePosts(ctx, s.db, owner, []int64{postID}); err != nil {
		s.log.Warn().Err(err).Int64("post_id", postID).Msg("persistent delete failed")
	}
	if err := repo.DeleteDetail(ctx, s.db, owner, postID); err != nil {
		s.log.Warn().Err(err).Int64("post_id", postID).Msg("detail delete failed")
	}
	if s.details != nil {
		s.details.Remove(postID)
	}

	s.bus.Publish(events.PostChange{Kind: events.Deleted, PostID: postID, DateKey: dateKey})
	return nil
}

//
// Derived read views — computed over memory only, never touching the
// persistent or remote tiers.
//

// PostsOn returns the resident posts for one entry date, oldest first.
func (s *PostStore) PostsOn(dateKey string) []domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Post
	for _, p := range s.posts {
		if p.EntryDate == dateKey {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PostsInMonth returns the resident posts for one YYYY-MM month, ordered by
// entry date then creation time.
func (s *PostStore) PostsInMonth(monthKey string) []domain.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Post
	for _, p := range s.posts {
		if p.MonthKey == monthKey {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryDate != out[j].EntryDate {
			return out[i].EntryDate < out[j].EntryDate
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Recent returns up to n posts, at most one per entry date (the latest by
// creation time wins), newest date first.
func (s *PostStore) Recent(n int) []domain.Post {
	s.mu.Lock()
	latest := make(map[string]domain.Post)
	for _, p := range s.posts {
		if cur, ok := latest[p.EntryDate]; !ok || p.CreatedAt.After(cur.CreatedAt) {
			latest[p.EntryDate] = p
		}
	}
	s.mu.Unlock()

	out := lo.Values(latest)
	sort.Slice(out, func(i, j int) bool { return out[i].EntryDate > out[j].EntryDate })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ActiveDates returns the sorted set of entry dates that hold at least one
// resident post.
func (s *PostStore) ActiveDates() []string {
	s.mu.Lock()
	set := make(map[string]struct{})
	for _, p := range s.posts {
		set[p.EntryDate] = struct{}{}
	}
	s.mu.Unlock()

	out := lo.Keys(set)
	sort.Strings(out)
	return out
}

// Get returns the resident post with the given id, or ErrPostNotFound.
func (s *PostStore) Get(postID int64) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	return &p, nil
}

// LoadedMonths returns the months currently marked resident, sorted.
func (s *PostStore) LoadedMonths() []string {
	s.mu.Lock()
	out := lo.Keys(s.loadedMonths)
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// reset clears memory state and rebinds the store to a new owner. Callers
// clear the persistent tier separately (see Engine.SwitchUser).
func (s *PostStore) reset(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerID = ownerID
	s.posts = make(map[int64]domain.Post)
	s.loadedMonths = make(map[string]struct{})
	s.initialized = false
}
