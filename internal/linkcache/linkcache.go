// Package linkcache keeps resolved short-code destinations in memory.
package linkcache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

type Config struct {
	MaxItems int64
	TTL      time.Duration
}

// Cache implements shortener.Cache on top of ristretto. Every Invalidate
// bumps the generation, and Store drops writes tagged with an older one.
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration
	gen atomic.Uint64
}

func New(cfg Config) (*Cache, error) {
	if cfg.MaxItems <= 0 {
		return nil, fmt.Errorf("linkcache: max items must be positive, got %d", cfg.MaxItems)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxItems * 10,
		MaxCost:     cfg.MaxItems,
		BufferItems: 64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("linkcache: %w", err)
	}
	return &Cache{c: c, ttl: cfg.TTL}, nil
}

func (c *Cache) Get(code string) (string, bool) {
	v, ok := c.c.Get(code)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *Cache) Generation() uint64 { return c.gen.Load() }

func (c *Cache) Store(code, target string, generation uint64) {
	if c.gen.Load() != generation {
		return
	}
	c.c.SetWithTTL(code, target, 1, c.ttl)
	// An invalidation may have landed between the check and the set.
	if c.gen.Load() != generation {
		c.c.Del(code)
	}
}

// Invalidate drops codes from this process only. Other replicas keep their
// entries until the TTL expires.
func (c *Cache) Invalidate(codes ...string) {
	c.gen.Add(1)
	for _, code := range codes {
		if code != "" {
			c.c.Del(code)
		}
	}
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() { c.c.Wait() }

func (c *Cache) Close() { c.c.Close() }
