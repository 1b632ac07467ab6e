package filter

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// DefaultCacheSize ist die Zahl der vorgehaltenen Ergebnisse.
const DefaultCacheSize = 10

type cacheEntry struct {
	key string
	res *Results
}

// Cache hält die Ergebnisse der letzten Abfragen. Optional steht dahinter ein
// gemeinsamer Redis-Cache für mehrere Prozesse.
type Cache struct {
	Size   int
	Remote *RedisCache
	Logger *zap.Logger

	mu      sync.Mutex
	entries []cacheEntry // älteste zuerst
}

func NewCache(size int, remote *RedisCache, logger *zap.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{Size: size, Remote: remote, Logger: logger}
}

// Get sucht lokal und verschiebt einen Treffer ans Ende.
func (c *Cache) Get(key string) (*Results, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			c.entries = append(c.entries, e)
			return e.res, true
		}
	}
	return nil, false
}

// Put speichert lokal und verdrängt den ältesten Eintrag.
func (c *Cache) Put(key string, res *Results) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.key == key {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	c.entries = append(c.entries, cacheEntry{key: key, res: res})
	for len(c.entries) > c.Size {
		c.entries = c.entries[1:]
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run liefert ein zwischengespeichertes Ergebnis oder führt q aus.
// Limitfehler werden nicht gespeichert; auch Treffer werden gegen das Limit geprüft.
func (c *Cache) Run(ctx context.Context, runner Runner, q *Query) (*Results, error) {
	key := q.Key()
	if res, ok := c.Get(key); ok {
		if err := admit(q, res.Rows); err != nil {
			return nil, err
		}
		return res, nil
	}

	if c.Remote != nil {
		res, ok, err := c.Remote.Get(ctx, key)
		if err != nil {
			c.Logger.Warn("Redis-Cache nicht lesbar", zap.Error(err))
		} else if ok {
			if err := admit(q, res.Rows); err != nil {
				return nil, err
			}
			c.Put(key, res)
			return res, nil
		}
	}

	res, err := Execute(ctx, runner, q)
	if err != nil {
		var limitErr *LimitError
		if errors.As(err, &limitErr) {
			c.Logger.Info("Knotenlimit erreicht", zap.Int("rows", limitErr.Rows), zap.Int("limit", limitErr.Limit))
		}
		return nil, err
	}
	c.Put(key, res)

	if c.Remote != nil {
		if err := c.Remote.Set(ctx, key, res); err != nil {
			c.Logger.Warn("Redis-Cache nicht schreibbar", zap.Error(err))
		}
	}
	return res, nil
}
