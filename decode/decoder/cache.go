package decoder

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"symex/ga"
)

// cacheKey identifies a decoded block: decoders are pure functions of
// (pc, the bytes at pc), but since the image is immutable for the
// lifetime of an analysis run, pc alone is a sound cache key per
// architecture.
type cacheKey struct {
	arch string
	pc   uint32
}

// Cache memoizes Decode results across the many path states that re-fetch
// the same PC (§4.D "Round-trip": a cached block is exactly what a second
// Decode call would have produced, so this is never observable as
// behavior, purely a speed-up for what is otherwise the executor's hottest
// call). Bounded by an LRU so a pathological analysis with a huge working
// set of distinct PCs doesn't grow memory unboundedly.
type Cache struct {
	inner Decoder
	lru   *lru.Cache[cacheKey, cacheEntry]
}

type cacheEntry struct {
	block ga.Block
	err   error
}

// NewCache wraps inner with an LRU-bounded memoization layer holding up to
// size distinct (pc) entries.
func NewCache(inner Decoder, size int) (*Cache, error) {
	c, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, lru: c}, nil
}

func (c *Cache) Arch() string { return c.inner.Arch() }

func (c *Cache) Decode(img Image, pc uint32) (ga.Block, error) {
	key := cacheKey{arch: c.inner.Arch(), pc: pc}
	if e, ok := c.lru.Get(key); ok {
		return e.block, e.err
	}
	block, err := c.inner.Decode(img, pc)
	c.lru.Add(key, cacheEntry{block: block, err: err})
	return block, err
}
