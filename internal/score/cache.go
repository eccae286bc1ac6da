package score

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"knapsweep/internal/evo"
)

// CachedScorer memoizes an inner scorer. Only valid for scorers whose result
// depends on the genome alone.
type CachedScorer struct {
	inner  evo.Scorer[CliffScore]
	cache  *lru.Cache[string, CliffScore]
	hits   *xsync.Counter
	misses *xsync.Counter
}

func NewCachedScorer(inner evo.Scorer[CliffScore], size int) (*CachedScorer, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner scorer is required")
	}
	cache, err := lru.New[string, CliffScore](size)
	if err != nil {
		return nil, fmt.Errorf("create score cache: %w", err)
	}
	return &CachedScorer{
		inner:  inner,
		cache:  cache,
		hits:   xsync.NewCounter(),
		misses: xsync.NewCounter(),
	}, nil
}

func (c *CachedScorer) Score(genome evo.Bitstring) (CliffScore, error) {
	key := genome.Key()
	if s, ok := c.cache.Get(key); ok {
		c.hits.Inc()
		return s, nil
	}
	c.misses.Inc()
	s, err := c.inner.Score(genome)
	if err != nil {
		return CliffScore{}, err
	}
	c.cache.Add(key, s)
	return s, nil
}

func (c *CachedScorer) Hits() int64 {
	return c.hits.Value()
}

func (c *CachedScorer) Misses() int64 {
	return c.misses.Value()
}
