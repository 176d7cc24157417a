package scheduler

import (
	"fmt"
	"sync"

	"github.com/DominicWuest/seqgen/pkg/coverage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"
)

type cacheEntry struct {
	future *Future
	score  float64
}

// Cache maps test fingerprints to the futures of their executions. The first submitter of a
// fingerprint installs the future, every later submitter gets the same instance.
//
// Futures are held apart until they are resolved through [Cache.Resolve], so an execution
// in flight is never evicted. Resolved futures live in an LRU bounded by the cache size,
// failed ones are dropped so the test is executed again when it is resubmitted.
// Evicting an entry never affects futures which were already handed out.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[digest.Digest, *cacheEntry]
	inflight map[digest.Digest]*cacheEntry

	Watermark int // UpdateScores only evicts while the cache holds more entries than this

	hits, misses int64
}

// NewCache creates a cache holding at most size resolved entries.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[digest.Digest, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution cache of size %d - %v", size, err)
	}
	return &Cache{
		entries:   entries,
		inflight:  make(map[digest.Digest]*cacheEntry),
		Watermark: size / 2,
	}, nil
}

// LoadOrStore returns the future stored for fp. If there is none, the future returned by
// create is stored and returned with loaded being false.
func (c *Cache) LoadOrStore(fp digest.Digest, create func() *Future) (f *Future, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.inflight[fp]; ok {
		e.score++
		c.hits++
		return e.future, true
	}
	if e, ok := c.entries.Get(fp); ok {
		e.score++
		c.hits++
		return e.future, true
	}

	c.misses++
	f = create()
	e := &cacheEntry{future: f, score: 1}
	switch {
	case !f.Resolved():
		c.inflight[fp] = e
	case !f.failed():
		c.entries.Add(fp, e)
	}
	return f, false
}

// Resolve resolves f and settles its entry: a successful result moves into the LRU, a
// failed one is forgotten. An entry which doesn't hold f is left alone.
// It reports false if f was already resolved.
func (c *Cache) Resolve(fp digest.Digest, f *Future, set coverage.Set, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	resolved := f.Resolve(set, err)
	e, ok := c.inflight[fp]
	if !ok || e.future != f {
		return resolved
	}
	delete(c.inflight, fp)
	if !f.failed() {
		c.entries.Add(fp, e)
	}
	return resolved
}

// UpdateScores multiplies the score of every entry with decay. While the cache holds more
// entries than its watermark, resolved entries whose score fell below threshold are evicted.
// It returns the number of evicted entries.
func (c *Cache) UpdateScores(decay, threshold float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.inflight {
		e.score *= decay
	}

	evicted := 0
	// Keys are ordered from oldest to newest
	for _, fp := range c.entries.Keys() {
		e, ok := c.entries.Peek(fp)
		if !ok {
			continue
		}
		e.score *= decay
		if c.lenLocked() > c.Watermark && e.score < threshold {
			c.entries.Remove(fp)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of cached entries, in flight or resolved.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lenLocked()
}

func (c *Cache) lenLocked() int {
	return c.entries.Len() + len(c.inflight)
}

// Stats returns the number of cache hits and misses.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
