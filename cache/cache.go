// Package cache holds time-boxed aggregation snapshots so readers get an
// instant response while refreshes happen in the background.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tokenflow/aggregator"
	"tokenflow/config"
	"tokenflow/logger"
)

// Key identifies one cached aggregation variant.
type Key struct {
	Limit     int
	Timeframe string
	Realtime  bool
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%t", k.Limit, k.Timeframe, k.Realtime)
}

// Entry is one immutable snapshot. CapturedAt increases monotonically for a
// given key; entries are swapped wholesale so readers never observe a
// partially written snapshot.
type Entry struct {
	Result     aggregator.Result
	CapturedAt time.Time
}

// RefreshFunc produces a fresh aggregation for a key. The context carries
// the cache's refresh timeout.
type RefreshFunc func(ctx context.Context, key Key) aggregator.Result

// Cache is a process-wide snapshot store with an explicit lifecycle. It owns
// every background refresh goroutine it spawns; Close cancels them and waits.
type Cache struct {
	ttl            time.Duration
	refreshTimeout time.Duration
	refresh        RefreshFunc
	log            *logger.Log

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Cache. The refresh function is invoked from cache-owned
// goroutines, never from a reader's call stack.
func New(cfg config.CacheConfig, refresh RefreshFunc) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		ttl:            cfg.TTL(),
		refreshTimeout: cfg.RefreshTimeout(),
		refresh:        refresh,
		log:            logger.GetLogger(),
		entries:        make(map[string]Entry),
		inflight:       make(map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Get returns the held snapshot for key immediately, regardless of
// staleness, and reports whether a snapshot existed. When the snapshot is
// missing or older than the TTL, Get schedules one background refresh;
// concurrent stale reads for the same key collapse to a single refresh.
func (c *Cache) Get(key Key) (Entry, bool) {
	k := key.String()

	c.mu.Lock()
	entry, ok := c.entries[k]
	stale := !ok || time.Since(entry.CapturedAt) > c.ttl
	if stale && !c.inflight[k] && c.ctx.Err() == nil {
		c.inflight[k] = true
		c.wg.Add(1)
		go c.doRefresh(key)
	}
	c.mu.Unlock()

	return entry, ok
}

// Refresh synchronously rebuilds the snapshot for key and swaps it in. It
// shares the coalescing bookkeeping with background refreshes, so a
// concurrent Get will not double-fire.
func (c *Cache) Refresh(key Key) Entry {
	k := key.String()

	c.mu.Lock()
	if c.inflight[k] {
		// A background refresh is already running; wait for it by polling
		// the captured timestamp rather than duplicating the upstream call.
		prev := c.entries[k].CapturedAt
		c.mu.Unlock()
		return c.awaitNewer(key, prev)
	}
	c.inflight[k] = true
	c.mu.Unlock()

	return c.runRefresh(key)
}

func (c *Cache) doRefresh(key Key) {
	defer c.wg.Done()
	c.runRefresh(key)
}

func (c *Cache) runRefresh(key Key) Entry {
	ctx, cancel := context.WithTimeout(c.ctx, c.refreshTimeout)
	defer cancel()

	result := c.refresh(ctx, key)
	entry := Entry{Result: result, CapturedAt: time.Now()}

	k := key.String()
	c.mu.Lock()
	// CapturedAt must be monotonic per key even if refreshes race.
	if prev, ok := c.entries[k]; !ok || entry.CapturedAt.After(prev.CapturedAt) {
		c.entries[k] = entry
	} else {
		entry = prev
	}
	delete(c.inflight, k)
	c.mu.Unlock()

	c.log.WithComponent("cache").WithFields(logger.Fields{
		"key":    k,
		"tokens": len(result.Tokens),
	}).Debug("snapshot refreshed")

	return entry
}

// awaitNewer blocks until the entry for key is newer than prev or the cache
// shuts down.
func (c *Cache) awaitNewer(key Key, prev time.Time) Entry {
	k := key.String()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.mu.Lock()
			entry := c.entries[k]
			c.mu.Unlock()
			return entry
		case <-ticker.C:
			c.mu.Lock()
			entry, ok := c.entries[k]
			inflight := c.inflight[k]
			c.mu.Unlock()
			if ok && entry.CapturedAt.After(prev) {
				return entry
			}
			if !inflight {
				// The refresh we were waiting on finished (or failed) and
				// nothing newer landed; return what is held.
				return entry
			}
		}
	}
}

// LastCaptured returns the newest CapturedAt across all held snapshots, or
// the zero time when nothing has been cached yet.
func (c *Cache) LastCaptured() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var newest time.Time
	for _, e := range c.entries {
		if e.CapturedAt.After(newest) {
			newest = e.CapturedAt
		}
	}
	return newest
}

// Close stops all background refreshes and waits for them to finish. The
// cache is unusable afterwards.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
	c.log.WithComponent("cache").Info("cache closed")
}
