package persistence

import (
	"slices"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// docSet keeps the last state of each document, keyed by _id. Insertion
// order is preserved so a compacted file lists documents in the order they
// were first written.
type docSet struct {
	hasher   domain.Hasher
	comparer domain.Comparer
	buckets  map[uint64][]int
	docs     []map[string]any
}

func newDocSet(h domain.Hasher, c domain.Comparer) *docSet {
	return &docSet{hasher: h, comparer: c, buckets: make(map[uint64][]int)}
}

func (s *docSet) find(id any) (uint64, int, error) {
	h, err := s.hasher.Hash(id)
	if err != nil {
		return 0, -1, err
	}
	for _, pos := range s.buckets[h] {
		if s.docs[pos] == nil {
			continue
		}
		c, err := s.comparer.Compare(s.docs[pos]["_id"], id)
		if err != nil {
			return 0, -1, err
		}
		if c == 0 {
			return h, pos, nil
		}
	}
	return h, -1, nil
}

func (s *docSet) set(doc map[string]any) error {
	h, pos, err := s.find(doc["_id"])
	if err != nil {
		return err
	}
	if pos >= 0 {
		s.docs[pos] = doc
		return nil
	}
	s.buckets[h] = append(s.buckets[h], len(s.docs))
	s.docs = append(s.docs, doc)
	return nil
}

func (s *docSet) remove(id any) error {
	_, pos, err := s.find(id)
	if err != nil || pos < 0 {
		return err
	}
	s.docs[pos] = nil
	return nil
}

func (s *docSet) values() []map[string]any {
	res := make([]map[string]any, 0, len(s.docs))
	for _, doc := range s.docs {
		if doc != nil {
			res = append(res, doc)
		}
	}
	return res
}

type indexSet struct {
	order []string
	byKey map[string]domain.IndexRecord
}

func newIndexSet() *indexSet {
	return &indexSet{byKey: make(map[string]domain.IndexRecord)}
}

func (s *indexSet) set(idx domain.IndexRecord) {
	if _, ok := s.byKey[idx.Name]; !ok {
		s.order = append(s.order, idx.Name)
	}
	s.byKey[idx.Name] = idx
}

func (s *indexSet) remove(name string) {
	if _, ok := s.byKey[name]; !ok {
		return
	}
	delete(s.byKey, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
}

func (s *indexSet) values() []domain.IndexRecord {
	res := make([]domain.IndexRecord, 0, len(s.order))
	for _, name := range s.order {
		res = append(res, s.byKey[name])
	}
	return res
}
