// Package cache contains the bounded deserialization cache used by document
// schemas. Entries are keyed by serializer kind and the hash of the raw value,
// and are evicted in least recently used order or when they expire.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vinicius-lino-figueiredo/godm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/godm/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// DefaultSize is the number of entries kept when no size is given.
const DefaultSize = 1024

type key struct {
	kind string
	hash uint64
}

type entry struct {
	raw   any
	value any
}

type store interface {
	Get(key) (entry, bool)
	Add(key, entry) bool
	Purge()
	Len() int
}

// Option configures a [Cache].
type Option func(*options)

type options struct {
	size     int
	ttl      time.Duration
	hasher   domain.Hasher
	comparer domain.Comparer
	observer domain.CacheObserver
}

// WithSize sets the maximum number of entries.
func WithSize(size int) Option {
	return func(o *options) { o.size = size }
}

// WithTTL makes entries expire after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithHasher sets the hasher used to build cache keys.
func WithHasher(h domain.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithComparer sets the comparer used to check raw values on hits.
func WithComparer(c domain.Comparer) Option {
	return func(o *options) { o.comparer = c }
}

// WithObserver sets the receiver of hit and miss notifications.
func WithObserver(ob domain.CacheObserver) Option {
	return func(o *options) { o.observer = ob }
}

// Cache implements [domain.Cache]. It is safe for concurrent use.
type Cache struct {
	store    store
	hasher   domain.Hasher
	comparer domain.Comparer
	observer domain.CacheObserver
}

// NewCache returns a new implementation of [domain.Cache].
func NewCache(opts ...Option) (*Cache, error) {
	o := options{
		size:     DefaultSize,
		hasher:   hasher.NewHasher(),
		comparer: comparer.NewComparer(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache{hasher: o.hasher, comparer: o.comparer, observer: o.observer}
	if o.ttl > 0 {
		c.store = expirable.NewLRU[key, entry](o.size, nil, o.ttl)
		return c, nil
	}

	l, err := lru.New[key, entry](o.size)
	if err != nil {
		return nil, err
	}
	c.store = l
	return c, nil
}

// Get implements [domain.Cache]. Values that cannot be hashed are never
// cached.
func (c *Cache) Get(kind string, raw any) (any, bool) {
	h, err := c.hasher.Hash(raw)
	if err != nil {
		c.miss(kind)
		return nil, false
	}
	e, ok := c.store.Get(key{kind: kind, hash: h})
	if !ok || !c.same(e.raw, raw) {
		c.miss(kind)
		return nil, false
	}
	if c.observer != nil {
		c.observer.CacheHit(kind)
	}
	return e.value, true
}

// Put implements [domain.Cache].
func (c *Cache) Put(kind string, raw any, value any) {
	h, err := c.hasher.Hash(raw)
	if err != nil {
		return
	}
	c.store.Add(key{kind: kind, hash: h}, entry{raw: raw, value: value})
}

// Purge removes every entry.
func (c *Cache) Purge() { c.store.Purge() }

// Len returns the number of entries.
func (c *Cache) Len() int { return c.store.Len() }

func (c *Cache) miss(kind string) {
	if c.observer != nil {
		c.observer.CacheMiss(kind)
	}
}

// same guards against hash collisions.
func (c *Cache) same(a, b any) bool {
	cmp, err := c.comparer.Compare(a, b)
	return err == nil && cmp == 0
}
