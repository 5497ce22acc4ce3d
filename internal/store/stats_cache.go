package store

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-diary-sync/internal/domain"
	"github.com/tbourn/go-diary-sync/internal/events"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/repo"
)

// statsCacheSize caps how many month aggregates stay resident; the LRU
// keeps the most recently viewed months.
const statsCacheSize = 12

// StatsCache memoizes per-month aggregates (post count, active days, mood
// histogram) computed over the persistent tier. Post change events evict
// exactly the affected month so the next read recomputes it.
type StatsCache struct {
	db     *gorm.DB
	remote remote.DataSource
	log    zerolog.Logger

	mu      sync.Mutex
	ownerID string
	months  *lru.Cache[string, repo.MonthAggregate]

	unsubscribe func()
}

// NewStatsCache wires a StatsCache and subscribes it to post change events.
func NewStatsCache(db *gorm.DB, rds remote.DataSource, bus *events.Bus[events.PostChange], ownerID string, log zerolog.Logger) *StatsCache {
	months, _ := lru.New[string, repo.MonthAggregate](statsCacheSize)
	c := &StatsCache{
		db:      db,
		remote:  rds,
		log:     log.With().Str("component", "statscache").Logger(),
		ownerID: ownerID,
		months:  months,
	}
	if bus != nil {
		c.unsubscribe = bus.Subscribe(func(ev events.PostChange) {
			c.invalidate(domain.MonthOf(ev.DateKey))
		})
	}
	return c
}

// Month returns the aggregate for one YYYY-MM month, computing it from the
// persistent tier on a cache miss. If the persistent tier is unavailable
// the aggregate is derived from a remote month listing instead (mood
// histogram only over canonical rows; comments and hashtags live in detail
// records and are out of scope here).
func (c *StatsCache) Month(ctx context.Context, monthKey string) (repo.MonthAggregate, error) {
	c.mu.Lock()
	owner := c.ownerID
	if agg, ok := c.months.Get(monthKey); ok {
		c.mu.Unlock()
		return agg, nil
	}
	c.mu.Unlock()

	var agg repo.MonthAggregate
	if computed, err := repo.MonthStats(ctx, c.db, owner, monthKey); err == nil {
		agg = *computed
	} else {
		c.log.Warn().Err(err).Str("month", monthKey).Msg("persistent stats failed, aggregating from remote")
		agg, err = c.aggregateRemote(ctx, owner, monthKey)
		if err != nil {
			return repo.MonthAggregate{}, err
		}
	}

	c.mu.Lock()
	if c.ownerID == owner {
		c.months.Add(monthKey, agg)
	}
	c.mu.Unlock()
	return agg, nil
}

func (c *StatsCache) aggregateRemote(ctx context.Context, owner, monthKey string) (repo.MonthAggregate, error) {
	first, last, ok := domain.MonthBounds(monthKey)
	if !ok {
		return repo.MonthAggregate{}, ErrBadDate
	}
	posts, err := c.remote.ListPosts(ctx, owner, first, last)
	if err != nil {
		return repo.MonthAggregate{}, err
	}
	agg := repo.MonthAggregate{MonthKey: monthKey, MoodCounts: map[string]int{}}
	days := make(map[string]struct{})
	for _, p := range posts {
		agg.PostCount++
		days[p.EntryDate] = struct{}{}
		if p.Mood != "" {
			agg.MoodCounts[p.Mood]++
		}
	}
	agg.ActiveDays = int64(len(days))
	return agg, nil
}

// PrefetchAround warms the aggregates for the months around center in the
// background, best-effort.
func (c *StatsCache) PrefetchAround(ctx context.Context, center time.Time, radius int) {
	months := domain.MonthWindow(center, radius)
	go func() {
		bg := context.WithoutCancel(ctx)
		for _, m := range months {
			if _, err := c.Month(bg, m); err != nil {
				c.log.Debug().Err(err).Str("month", m).Msg("stats prefetch failed")
			}
		}
	}()
}

func (c *StatsCache) invalidate(monthKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.months.Remove(monthKey)
}

// Len reports the number of cached month aggregates.
func (c *StatsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.months.Len()
}

// Close detaches the cache from the event bus.
func (c *StatsCache) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// reset rebinds the cache to a new owner, dropping all cached aggregates.
func (c *StatsCache) reset(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ownerID = ownerID
	c.months.Purge()
}
