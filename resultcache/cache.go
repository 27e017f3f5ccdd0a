// Package resultcache keeps resolution results across cache epochs and
// drops them when a filesystem event invalidates them.
package resultcache

import (
	"errors"
	"sync"

	"github.com/esm-dev/esm-resolver/resolver"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ije/esbuild-internal/xxhash"
	logx "github.com/ije/gox/log"
	syncx "github.com/ije/gox/sync"
)

// DefaultCapacity is the number of results kept when no capacity is given.
const DefaultCapacity = 10000

var log = &logx.Logger{}

// SetLogger sets the logger of the package.
func SetLogger(l *logx.Logger) {
	log = l
}

type entry struct {
	key    string
	module *resolver.ResolvedModule
	err    error
	inv    *resolver.Invalidations
}

// Cache memoizes the results of a Resolver.
type Cache struct {
	resolver *resolver.Resolver
	entries  *lru.Cache[uint64, *entry]
	lock     syncx.KeyedMutex

	// epoch counts invalidations. A result resolved in an older epoch may
	// depend on facts memoized before the invalidation and is not stored.
	epochLock sync.RWMutex
	epoch     uint64
}

// New creates a cache of the results of r holding up to capacity entries.
func New(r *resolver.Resolver, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[uint64, *entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{resolver: r, entries: entries}, nil
}

// Resolver returns the underlying resolver.
func (c *Cache) Resolver() *resolver.Resolver {
	return c.resolver
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Resolve returns the cached result of the request or resolves it. The
// returned invalidations are shared and must not be modified.
func (c *Cache) Resolve(spec string, from string, mode resolver.Mode) (*resolver.ResolvedModule, *resolver.Invalidations, error) {
	key := requestKey(spec, from, mode)
	h := hashKey(key)

	// check cache first
	if e, ok := c.entries.Get(h); ok && e.key == key {
		return e.module, e.inv, e.err
	}

	unlock := c.lock.Lock(key)
	defer unlock()

	// check cache again after lock
	if e, ok := c.entries.Get(h); ok && e.key == key {
		return e.module, e.inv, e.err
	}

	epoch := c.currentEpoch()
	inv := resolver.NewInvalidations()
	module, err := c.resolver.Resolve(spec, from, mode, inv)

	if err != nil && !cacheable(err) {
		log.Warnf("resolve %q from %s: %v", spec, from, err)
		return nil, inv, err
	}

	c.epochLock.RLock()
	if c.epoch == epoch {
		c.entries.Add(h, &entry{key: key, module: module, err: err, inv: inv})
	}
	c.epochLock.RUnlock()
	return module, inv, err
}

func (c *Cache) currentEpoch() uint64 {
	c.epochLock.RLock()
	defer c.epochLock.RUnlock()
	return c.epoch
}

// Invalidate drops every result made stale by the events and starts a new
// cache epoch of the resolver. It returns the number of dropped results.
func (c *Cache) Invalidate(events ...resolver.FileEvent) int {
	if len(events) == 0 {
		return 0
	}
	// the resolver is reset first, so a resolution that observes the new
	// epoch also runs on the new path cache
	c.resolver.Reset()
	c.epochLock.Lock()
	c.epoch++
	n := c.sweep(func(e *entry) bool {
		for _, event := range events {
			if e.inv.InvalidatedBy(event) {
				return true
			}
		}
		return false
	})
	c.epochLock.Unlock()
	log.Debugf("%d events invalidated %d results", len(events), n)
	return n
}

// InvalidateStartup drops the results that do not survive a restart.
func (c *Cache) InvalidateStartup() int {
	n := c.sweep(func(e *entry) bool {
		return e.inv.Startup()
	})
	log.Debugf("startup invalidated %d results", n)
	return n
}

// Purge drops every result.
func (c *Cache) Purge() {
	c.resolver.Reset()
	c.epochLock.Lock()
	c.epoch++
	c.entries.Purge()
	c.epochLock.Unlock()
}

func (c *Cache) sweep(stale func(e *entry) bool) int {
	n := 0
	for _, h := range c.entries.Keys() {
		e, ok := c.entries.Peek(h)
		if ok && stale(e) {
			c.entries.Remove(h)
			n++
		}
	}
	return n
}

// cacheable reports whether a failure is fully described by the recorded
// invalidations. Unexpected I/O failures and malformed JSON files are not.
func cacheable(err error) bool {
	var ioErr *resolver.IOError
	if errors.As(err, &ioErr) && ioErr.Kind() != resolver.IONotFound {
		return false
	}
	var jsonErr *resolver.JSONError
	return !errors.As(err, &jsonErr)
}

func requestKey(spec string, from string, mode resolver.Mode) string {
	return mode.String() + "\x00" + from + "\x00" + spec
}

func hashKey(key string) uint64 {
	h := xxhash.New()
	h.Write([]byte(key))
	return h.Sum64()
}
