// Package querier orders, pages and projects the documents selected by a
// find.
package querier

import (
	"fmt"
	"slices"

	"github.com/vinicius-lino-figueiredo/godm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/godm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/godm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/godm/adapter/projector"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Option configures querier behavior through the functional options
// pattern.
type Option func(*Querier)

// WithComparer sets the comparer used for sorting.
func WithComparer(c domain.Comparer) Option {
	return func(q *Querier) {
		q.cmpr = c
	}
}

// WithFieldNavigator sets the field navigator used to read sort keys.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(q *Querier) {
		q.fn = f
	}
}

// WithProjector sets the projector applied to the results.
func WithProjector(p domain.Projector) Option {
	return func(q *Querier) {
		q.proj = p
	}
}

// Querier applies the sort, skip, limit and projection of a find to the
// documents that matched its query.
type Querier struct {
	cmpr domain.Comparer
	fn   domain.FieldNavigator
	proj domain.Projector
}

// NewQuerier returns a new Querier.
func NewQuerier(opts ...Option) *Querier {
	var q Querier
	for _, opt := range opts {
		opt(&q)
	}
	if q.cmpr == nil {
		q.cmpr = comparer.NewComparer()
	}
	if q.fn == nil {
		q.fn = fieldnavigator.NewFieldNavigator()
	}
	if q.proj == nil {
		q.proj = projector.NewProjector(projector.WithFieldNavigator(q.fn))
	}
	return &q
}

// Query returns the documents of data selected by options, projected through
// proj. Results never share memory with data. A negative limit is read as
// its absolute value.
func (q *Querier) Query(data []map[string]any, options domain.FindOptions, proj map[string]uint8) ([]map[string]any, error) {
	res := data
	if len(options.Sort) > 0 {
		var err error
		if res, err = q.sort(data, options.Sort); err != nil {
			return nil, fmt.Errorf("sorting: %w", err)
		}
	}
	res = q.skipAndLimit(res, options.Skip, options.Limit)

	out := make([]map[string]any, len(res))
	for n, doc := range res {
		if len(proj) == 0 {
			out[n] = modifier.CopyDoc(doc)
			continue
		}
		projected, err := q.proj.Project(doc, proj)
		if err != nil {
			return nil, fmt.Errorf("projecting: %w", err)
		}
		out[n] = projected
	}
	return out, nil
}

func (q *Querier) sort(data []map[string]any, sort domain.Sort) ([]map[string]any, error) {
	addrs := make([][]string, len(sort))
	for n, crit := range sort {
		addr, err := q.fn.GetAddress(crit.Key)
		if err != nil {
			return nil, fmt.Errorf("getting address: %w", err)
		}
		addrs[n] = addr
	}

	res := slices.Clone(data)
	var err error
	slices.SortStableFunc(res, func(a, b map[string]any) int {
		if err != nil {
			return 0
		}
		for n, crit := range sort {
			comp, cErr := q.compareByCriterion(a, b, addrs[n])
			if cErr != nil {
				err = cErr
				return 0
			}
			if comp != 0 {
				if crit.Order < 0 {
					return -comp
				}
				return comp
			}
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *Querier) compareByCriterion(a, b map[string]any, addr []string) (int, error) {
	critA, err := q.sortKey(a, addr)
	if err != nil {
		return 0, err
	}
	critB, err := q.sortKey(b, addr)
	if err != nil {
		return 0, err
	}
	comp, err := q.cmpr.Compare(critA, critB)
	if err != nil {
		return 0, fmt.Errorf("comparing: %w", err)
	}
	return comp, nil
}

// sortKey returns the first defined value at addr. Missing fields sort as
// nil.
func (q *Querier) sortKey(doc map[string]any, addr []string) (any, error) {
	fields, _, err := q.fn.GetField(doc, addr...)
	if err != nil {
		return nil, fmt.Errorf("getting field: %w", err)
	}
	for _, f := range fields {
		if v, ok := f.Get(); ok {
			return v, nil
		}
	}
	return nil, nil
}

func (q *Querier) skipAndLimit(data []map[string]any, skip, limit int64) []map[string]any {
	length := int64(len(data))

	skip = min(max(skip, 0), length)
	data = data[skip:]

	if limit < 0 {
		limit = -limit
	}
	if limit == 0 {
		return data
	}
	return data[:min(limit, length-skip)]
}
