// Package index contains the index declaration attached to collections.
package index

import (
	"context"
	"slices"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// DefaultCacheTime is how long a backend may skip repeated ensure requests
// for the same index.
const DefaultCacheTime = 300 * time.Second

// Ensurer is implemented by collections.
type Ensurer interface {
	Backend() domain.Backend
}

// Option configures an [Index].
type Option func(*Index)

// WithName sets the index name. Backends generate one otherwise.
func WithName(n string) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexName(n)) }
}

// WithUnique rejects documents sharing the same key.
func WithUnique(u bool) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexUnique(u)) }
}

// WithSparse skips documents missing the indexed fields.
func WithSparse(s bool) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexSparse(s)) }
}

// WithBackground builds the index without blocking the collection.
func WithBackground(b bool) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexBackground(b)) }
}

// WithExpireAfter makes documents expire the given number of seconds after
// the indexed date.
func WithExpireAfter(seconds int32) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexExpireAfter(seconds)) }
}

// WithBucketSize sets the bucket size of geoHaystack indexes.
func WithBucketSize(b float64) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexBucketSize(b)) }
}

// WithMin sets the lower bound of 2d indexes.
func WithMin(m float64) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexMin(m)) }
}

// WithMax sets the upper bound of 2d indexes.
func WithMax(m float64) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithIndexMax(m)) }
}

// WithExtra sets a backend specific option.
func WithExtra(key string, value any) Option {
	return func(i *Index) { i.options = append(i.options, domain.WithExtra(key, value)) }
}

// WithCacheTime sets the window in which the backend may answer repeated
// ensure requests without reaching the store.
func WithCacheTime(d time.Duration) Option {
	return func(i *Index) { i.cacheTime = d }
}

// Index is an immutable index declaration.
type Index struct {
	keys      []domain.IndexKey
	cacheTime time.Duration
	options   []domain.IndexOption
}

// NewIndex declares an index. Keys can be a field name, a list of field names
// (all ascending) or a list of [domain.IndexKey].
func NewIndex(keys any, options ...Option) (*Index, error) {
	i := &Index{cacheTime: DefaultCacheTime}

	switch k := keys.(type) {
	case string:
		i.keys = []domain.IndexKey{{Field: k, Direction: 1}}
	case []string:
		for _, f := range k {
			i.keys = append(i.keys, domain.IndexKey{Field: f, Direction: 1})
		}
	case domain.IndexKey:
		i.keys = []domain.IndexKey{k}
	case []domain.IndexKey:
		i.keys = slices.Clone(k)
	default:
		return nil, domain.ErrType{Want: "index keys", Actual: keys}
	}

	if len(i.keys) == 0 {
		return nil, domain.ErrFieldName{Reason: "index has no keys"}
	}
	for _, k := range i.keys {
		if k.Field == "" {
			return nil, domain.ErrFieldName{Reason: "index key is empty"}
		}
	}

	for _, option := range options {
		option(i)
	}
	return i, nil
}

// Keys returns the key specification.
func (i *Index) Keys() []domain.IndexKey { return slices.Clone(i.keys) }

// CacheTime returns the ensure cache window.
func (i *Index) CacheTime() time.Duration { return i.cacheTime }

// Options returns the declared options.
func (i *Index) Options() domain.IndexOptions {
	return domain.NewIndexOptions(i.options...)
}

// Ensure asks the collection backend to create the index if it is absent and
// returns the backend acknowledgment, usually the index name.
func (i *Index) Ensure(ctx context.Context, c Ensurer) (string, error) {
	return c.Backend().EnsureIndex(ctx, i.Keys(), i.cacheTime, i.options...)
}
