package memory

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

const idIndexName = "_id_"

// entry holds a stored document. Index trees keep pointers to entries, so a
// document is identified by its entry and not by its content.
type entry struct {
	doc map[string]any
}

type entryComparer struct {
	comparer domain.Comparer
}

// CompareKeys implements [bst.Comparer].
func (c *entryComparer) CompareKeys(a any, b any) (int, error) {
	return c.comparer.Compare(a, b)
}

// CompareValues implements [bst.Comparer].
func (c *entryComparer) CompareValues(a *entry, b *entry) (bool, error) {
	return a == b, nil
}

type index struct {
	record    domain.IndexRecord
	addrs     [][]string
	tree      bst.BST[any, *entry]
	comparer  domain.Comparer
	navigator domain.FieldNavigator
}

func newIndex(rec domain.IndexRecord, comparer domain.Comparer, navigator domain.FieldNavigator) (*index, error) {
	if len(rec.Keys) == 0 {
		return nil, domain.ErrType{Want: "at least one index key", Actual: rec.Keys}
	}
	addrs := make([][]string, len(rec.Keys))
	for n, k := range rec.Keys {
		if err := checkDirection(k.Direction); err != nil {
			return nil, err
		}
		addr, err := navigator.GetAddress(k.Field)
		if err != nil {
			return nil, err
		}
		addrs[n] = addr
	}
	return &index{
		record:    rec,
		addrs:     addrs,
		tree:      avl.NewBST(rec.Unique, 8, &entryComparer{comparer: comparer}),
		comparer:  comparer,
		navigator: navigator,
	}, nil
}

func checkDirection(d any) error {
	switch v := d.(type) {
	case int:
		if v == 1 || v == -1 {
			return nil
		}
	case int32:
		if v == 1 || v == -1 {
			return nil
		}
	case int64:
		if v == 1 || v == -1 {
			return nil
		}
	case float64:
		if v == 1 || v == -1 {
			return nil
		}
	}
	return domain.ErrType{Want: "index direction 1 or -1", Actual: d}
}

// keys returns the keys of doc in this index. A nil result with no error
// means a sparse index skips the document.
func (i *index) keys(doc map[string]any) ([]any, error) {
	if len(i.addrs) == 1 {
		return i.singleKeys(doc)
	}

	compound := make([]any, len(i.addrs))
	defined := false
	for n, addr := range i.addrs {
		values, err := i.values(doc, addr)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			compound[n] = values[0]
			defined = true
		}
	}
	if i.record.Sparse && !defined {
		return nil, nil
	}
	return []any{compound}, nil
}

// singleKeys expands arrays, so every element becomes a key of the same
// document.
func (i *index) singleKeys(doc map[string]any) ([]any, error) {
	values, err := i.values(doc, i.addrs[0])
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		if i.record.Sparse {
			return nil, nil
		}
		return []any{nil}, nil
	}

	var keys []any
	for _, v := range values {
		if l, ok := v.([]any); ok {
			keys = append(keys, l...)
			continue
		}
		keys = append(keys, v)
	}
	if len(keys) == 0 {
		return []any{nil}, nil
	}

	var err2 error
	slices.SortFunc(keys, func(a, b any) int {
		c, err := i.comparer.Compare(a, b)
		if err != nil && err2 == nil {
			err2 = err
		}
		return c
	})
	if err2 != nil {
		return nil, err2
	}
	return slices.CompactFunc(keys, func(a, b any) bool {
		c, _ := i.comparer.Compare(a, b)
		return c == 0
	}), nil
}

func (i *index) values(doc map[string]any, addr []string) ([]any, error) {
	fields, _, err := i.navigator.GetField(doc, addr...)
	if err != nil {
		return nil, err
	}
	var res []any
	for _, f := range fields {
		if v, ok := f.Get(); ok {
			res = append(res, v)
		}
	}
	return res, nil
}

// insert adds every entry, rolling back the whole batch on failure.
func (i *index) insert(entries ...*entry) error {
	type kv struct {
		key   any
		entry *entry
	}
	done := make([]kv, 0, len(entries))

	var err error
Loop:
	for _, e := range entries {
		var keys []any
		if keys, err = i.keys(e.doc); err != nil {
			break
		}
		for _, k := range keys {
			if err = i.tree.Insert(k, e); err != nil {
				if errors.As(err, new(bst.ErrUniqueViolated)) {
					err = fmt.Errorf("%w: index %s: %w", domain.ErrConstraintViolated, i.record.Name, err)
				}
				break Loop
			}
			done = append(done, kv{key: k, entry: e})
		}
	}
	if err == nil {
		return nil
	}

	errs := []error{err}
	for _, v := range done {
		if dErr := i.tree.Delete(v.key, &v.entry); dErr != nil {
			errs = append(errs, dErr)
		}
	}
	return errors.Join(errs...)
}

func (i *index) remove(entries ...*entry) error {
	var errs []error
	for _, e := range entries {
		keys, err := i.keys(e.doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, k := range keys {
			if err := i.tree.Delete(k, &e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// replace swaps old for updated, restoring old if updated cannot be indexed.
func (i *index) replace(old *entry, updated *entry) error {
	if err := i.remove(old); err != nil {
		return err
	}
	if err := i.insert(updated); err != nil {
		return errors.Join(err, i.insert(old))
	}
	return nil
}

func (i *index) lookup(key any) ([]*entry, error) {
	found, err := i.tree.Search(key)
	if err != nil || found == nil {
		return nil, err
	}
	return slices.Clone(found.Values()), nil
}

func (i *index) reset() {
	i.tree = avl.NewBST(i.record.Unique, 8, &entryComparer{comparer: i.comparer})
}
