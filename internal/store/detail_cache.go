package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/cache"
	"github.com/tbourn/go-diary-sync/internal/dedup"
	"github.com/tbourn/go-diary-sync/internal/domain"
	"github.com/tbourn/go-diary-sync/internal/events"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/repo"
)

// errStillPending drives the poller's retry loop: the detail came back but
// its server-side enrichment has not completed yet.
var errStillPending = errors.New("detail still pending")

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 10

	// Per-payload cost weights for the size-bounded cache.
	detailBaseCost     = 256
	detailCommentCost  = 512
	detailImageCost    = 256
	detailHashtagCost  = 64
	defaultDetailCount = 50
	defaultDetailBytes = 2 << 20
)

// DetailCache holds post detail payloads in a cost-bounded LRU backed by the
// persistent tier. Details whose server-side enrichment is still pending are
// cached in memory only and re-polled at a fixed interval until they
// complete or the attempt budget runs out; at most one poller runs per post
// at any time.
type DetailCache struct {
	db     *gorm.DB
	remote remote.DataSource
	bus    *events.Bus[events.DetailChange]
	log    zerolog.Logger

	pollInterval time.Duration
	pollAttempts uint64

	flight dedup.Group[struct{}]

	mu      sync.Mutex
	ownerID string
	lru     *cache.Costed[int64, domain.PostDetail]
	gen     int
}

// DetailCacheOptions tunes cache bounds and polling cadence. Zero values
// fall back to defaults.
type DetailCacheOptions struct {
	MaxEntries   int
	MaxBytes     int64
	PollInterval time.Duration
	PollAttempts int
}

// NewDetailCache wires a DetailCache for the given owner.
func NewDetailCache(db *gorm.DB, rds remote.DataSource, bus *events.Bus[events.DetailChange], ownerID string, opts DetailCacheOptions, log zerolog.Logger) *DetailCache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultDetailCount
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultDetailBytes
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = defaultPollAttempts
	}
	return &DetailCache{
		db:           db,
		remote:       rds,
		bus:          bus,
		log:          log.With().Str("component", "detailcache").Logger(),
		pollInterval: opts.PollInterval,
		pollAttempts: uint64(opts.PollAttempts),
		ownerID:      ownerID,
		lru:          cache.NewCosted[int64, domain.PostDetail](opts.MaxEntries, opts.MaxBytes, nil),
	}
}

func detailCost(d domain.PostDetail) int64 {
	c := int64(detailBaseCost + len(d.Content))
	c += int64(len(d.Comments)) * detailCommentCost
	c += int64(len(d.Images)) * detailImageCost
	c += int64(len(d.Hashtags)) * detailHashtagCost
	return c
}

// Get resolves a post's detail through the tiers: memory, then the
// persistent store, then the remote. Completed details are written through
// to the persistent tier; pending ones stay memory-only and start a
// background poller. Persistent-tier read failures degrade to the remote.
func (c *DetailCache) Get(ctx context.Context, postID int64) (*domain.PostDetail, error) {
	c.mu.Lock()
	owner := c.ownerID
	if d, ok := c.lru.Get(postID); ok {
		c.mu.Unlock()
		if d.Pending() {
			c.maybePoll(postID)
		}
		return &d, nil
	}
	c.mu.Unlock()

	d, err := repo.GetDetail(ctx, c.db, owner, postID)
	switch {
	case err == nil:
		// Persisted details are completed by construction; cache and return.
		c.admit(owner, *d)
		return d, nil
	case errors.Is(err, repo.ErrNotFound):
	default:
		c.log.Warn().Err(err).Int64("post_id", postID).Msg("persistent detail read failed, falling back to remote")
	}

	d, err = c.remote.GetPostDetail(ctx, postID)
	if err != nil {
		return nil, err
	}
	d.OwnerID = owner

	c.admit(owner, *d)
	if d.Pending() {
		c.maybePoll(postID)
		return d, nil
	}
	if err := repo.UpsertDetail(ctx, c.db, d); err != nil {
		c.log.Warn().Err(err).Int64("post_id", postID).Msg("detail write-through failed")
	}
	return d, nil
}

// Peek returns the cached detail without touching other tiers or starting
// a poller.
func (c *DetailCache) Peek(postID int64) (*domain.PostDetail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.lru.Peek(postID)
	if !ok {
		return nil, false
	}
	return &d, true
}

func (c *DetailCache) admit(owner string, d domain.PostDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ownerID != owner {
		return
	}
	c.lru.Add(d.PostID, d, detailCost(d))
}

// maybePoll starts the background poller for postID unless one is already
// in flight for the same post.
func (c *DetailCache) maybePoll(postID int64) {
	c.mu.Lock()
	gen := c.gen
	owner := c.ownerID
	c.mu.Unlock()

	c.flight.DoAsync(strconv.FormatInt(postID, 10), func() (struct{}, error) {
		c.poll(postID, owner, gen)
		return struct{}{}, nil
	})
}

// poll re-fetches a pending detail at a constant interval until it
// completes or the attempt budget is exhausted. Every successful fetch
// refreshes the cache and publishes a change event; completion also writes
// through to the persistent tier. A generation mismatch after Purge or a
// user switch makes the poller exit without touching anything.
func (c *DetailCache) poll(postID int64, owner string, gen int) {
	ctx := context.Background()
	op := func() error {
		d, err := c.remote.GetPostDetail(ctx, postID)
		if err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		d.OwnerID = owner

		c.mu.Lock()
		if c.gen != gen || c.ownerID != owner {
			c.mu.Unlock()
			return backoff.Permanent(errors.New("cache generation changed"))
		}
		c.lru.Add(postID, *d, detailCost(*d))
		c.mu.Unlock()

		c.bus.Publish(events.DetailChange{PostID: postID})

		if d.Pending() {
			return errStillPending
		}
		if err := repo.UpsertDetail(ctx, c.db, d); err != nil {
			c.log.Warn().Err(err).Int64("post_id", postID).Msg("detail write-through failed")
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.pollInterval), c.pollAttempts)
	if err := backoff.Retry(op, bo); err != nil {
		c.log.Debug().Err(err).Int64("post_id", postID).Msg("detail poll gave up")
	}
}

// Remove drops one detail from memory. The persistent tier is handled by
// callers (PostStore.Update / Delete).
func (c *DetailCache) Remove(postID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(postID)
}

// Purge empties memory and invalidates in-flight pollers.
func (c *DetailCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.gen++
}

// Len reports the number of cached details.
func (c *DetailCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// reset rebinds the cache to a new owner, dropping all memory state.
func (c *DetailCache) reset(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerID = ownerID
	c.lru.Purge()
	c.gen++
}
