// Package cache implements the read-through cache behind the aggregation
// services: a small in-process LRU in front of a shared file-backed tier, with
// per-key single-flight population, a factory soft timeout and fail-safe
// serving of stale entries while a refresh runs or after it fails.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// Options fix the durations of one Cache instance. Values that should survive
// longer (the stable id mappings) get their own instance with scaled TTLs
// rather than per-call overrides.
type Options struct {
	MemorySize  int
	MemoryTTL   time.Duration
	SoftTTL     time.Duration
	HardTTL     time.Duration
	SoftTimeout time.Duration
}

// Cache is a two-tier read-through cache. Values are serialized to JSON at the
// tier boundary; only successful factory results are ever stored, so a failed
// fetch can never be replayed to later callers.
type Cache struct {
	name  string
	mem   *expirable.LRU[string, []byte]
	file  *fileTier
	group singleflight.Group

	softTimeout time.Duration
}

// New builds a cache rooted at dir on the given filesystem. Tests pass an
// in-memory afero fs; production uses afero.NewOsFs.
func New(name string, fs afero.Fs, dir string, opts Options) *Cache {
	size := opts.MemorySize
	if size <= 0 {
		size = 1024
	}
	return &Cache{
		name:        name,
		mem:         expirable.NewLRU[string, []byte](size, nil, opts.MemoryTTL),
		file:        newFileTier(fs, dir, opts.SoftTTL, opts.HardTTL),
		softTimeout: opts.SoftTimeout,
	}
}

// Lookup reads a fresh value into v, returning whether one was found. File
// tier hits are promoted into the memory tier.
func (c *Cache) Lookup(key string, v any) bool {
	b, ok := c.lookupFresh(key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// Set writes v to both tiers.
func (c *Cache) Set(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store(key, b)
	return nil
}

// Remove evicts the key from both tiers.
func (c *Cache) Remove(key string) {
	c.mem.Remove(key)
	c.file.remove(key)
}

// Clear drops everything from both tiers.
func (c *Cache) Clear() error {
	c.mem.Purge()
	return c.file.clear()
}

func (c *Cache) lookupFresh(key string) ([]byte, bool) {
	if b, ok := c.mem.Get(key); ok {
		return b, true
	}
	if b, fresh, ok := c.file.get(key); ok && fresh {
		c.mem.Add(key, b)
		return b, true
	}
	return nil, false
}

func (c *Cache) lookupStale(key string) ([]byte, bool) {
	b, _, ok := c.file.get(key)
	return b, ok
}

func (c *Cache) store(key string, b []byte) {
	c.mem.Add(key, b)
	if err := c.file.set(key, b); err != nil {
		log.Printf("[cache:%s] failed to persist %q: %v", c.name, key, err)
	}
}

// GetOrSet returns the cached value for key, or populates it through factory.
// Concurrent callers on a cold key share a single factory invocation. When a
// stale value exists within the fail-safe window, it is served if the factory
// errors or overruns the soft timeout; in the latter case the refresh keeps
// running detached from the calling request.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, factory func(context.Context) (T, error)) (T, error) {
	var zero T

	if b, ok := c.lookupFresh(key); ok {
		return decode[T](b)
	}

	stale, hasStale := c.lookupStale(key)

	ch := c.group.DoChan(key, func() (any, error) {
		fctx := ctx
		if hasStale {
			// The stale value can answer the caller, so the refresh must not
			// die with the request.
			fctx = context.WithoutCancel(ctx)
		}
		v, err := factory(fctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		c.store(key, b)
		return b, nil
	})

	var timeout <-chan time.Time
	if hasStale && c.softTimeout > 0 {
		timer := time.NewTimer(c.softTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			if hasStale {
				log.Printf("[cache:%s] factory failed for %q, serving stale: %v", c.name, key, res.Err)
				return decode[T](stale)
			}
			return zero, res.Err
		}
		return decode[T](res.Val.([]byte))
	case <-timeout:
		log.Printf("[cache:%s] factory soft timeout for %q, serving stale", c.name, key)
		return decode[T](stale)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func decode[T any](b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
