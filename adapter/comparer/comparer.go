// Package comparer contains the default [domain.Comparer] implementation. It
// orders storage values the way document databases do: nil, numbers, strings,
// booleans, dates, binary data, arrays and then objects.
package comparer

import (
	"bytes"
	"cmp"
	"maps"
	"math/big"
	"slices"
	"time"

	"github.com/goccy/go-reflect"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

// Comparer implements domain.Comparer.
type Comparer struct{}

// NewComparer returns a new implementation of domain.Comparer.
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements domain.Comparer. It reports whether both values
// belong to the same ordered scalar type, which is what range operators
// ($lt, $gte, ...) require.
func (c *Comparer) Comparable(a, b any) bool {
	if _, ok := c.asNumber(a); ok {
		_, ok = c.asNumber(b)
		return ok
	}

	var ok bool
	switch a.(type) {
	case string:
		_, ok = b.(string)
	case time.Time:
		_, ok = b.(time.Time)
	case []byte:
		_, ok = b.([]byte)
	}
	return ok
}

// Compare implements domain.Comparer.
func (c *Comparer) Compare(a any, b any) (int, error) {
	if c, ok := c.checkNil(a, b); ok {
		return c, nil
	}

	if c, ok := c.checkNumbers(a, b); ok {
		return c, nil
	}

	if c, ok := c.checkStrings(a, b); ok {
		return c, nil
	}

	if c, ok := c.checkBooleans(a, b); ok {
		return c, nil
	}

	if c, ok := c.checkTime(a, b); ok {
		return c, nil
	}

	if c, ok := c.checkBytes(a, b); ok {
		return c, nil
	}

	if c, ok, err := c.checkArrays(a, b); err != nil || ok {
		return c, err
	}

	if c, ok, err := c.checkDocs(a, b); err != nil || ok {
		return c, err
	}

	if c.sameComparable(a, b) {
		return 0, nil
	}

	return 0, domain.ErrCannotCompare{A: a, B: b}
}

func (c *Comparer) checkNil(a, b any) (int, bool) {
	if a == nil {
		if b == nil {
			return 0, true
		}
		return -1, true
	}
	if b == nil {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkNumbers(a, b any) (int, bool) {
	if a, ok := c.asNumber(a); ok {
		// big.Float compares float64 and int64 without precision loss
		if b, ok := c.asNumber(b); ok {
			return a.Cmp(b), true
		}
		return -1, true
	}
	if _, ok := c.asNumber(b); ok {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkStrings(a, b any) (int, bool) {
	if a, ok := a.(string); ok {
		if b, ok := b.(string); ok {
			return cmp.Compare(a, b), true
		}
		return -1, true
	}
	if _, ok := b.(string); ok {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkBooleans(a, b any) (int, bool) {
	if a, ok := a.(bool); ok {
		if b, ok := b.(bool); ok {
			return c.compareBool(a, b), true
		}
		return -1, true
	}
	if _, ok := b.(bool); ok {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkTime(a, b any) (int, bool) {
	if a, ok := a.(time.Time); ok {
		if b, ok := b.(time.Time); ok {
			return a.Compare(b), true
		}
		return -1, true
	}
	if _, ok := b.(time.Time); ok {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkBytes(a, b any) (int, bool) {
	if a, ok := a.([]byte); ok {
		if b, ok := b.([]byte); ok {
			return bytes.Compare(a, b), true
		}
		return -1, true
	}
	if _, ok := b.([]byte); ok {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkArrays(a, b any) (int, bool, error) {
	if structure.IsList(a) {
		if structure.IsList(b) {
			comp, err := c.compareArray(c.toSlice(a), c.toSlice(b))
			return comp, true, err
		}
		return -1, true, nil
	}
	if structure.IsList(b) {
		return 1, true, nil
	}
	return 0, false, nil
}

func (c *Comparer) checkDocs(a, b any) (int, bool, error) {
	if structure.IsObject(a) {
		if structure.IsObject(b) {
			comp, err := c.compareDoc(c.toMap(a), c.toMap(b))
			return comp, true, err
		}
		return -1, true, nil
	}
	if structure.IsObject(b) {
		return 1, true, nil
	}
	return 0, false, nil
}

func (c *Comparer) compareArray(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		comp, err := c.Compare(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}

	// Common section was identical, longest one wins
	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return 1
	}
	return -1
}

func (c *Comparer) compareDoc(a, b map[string]any) (int, error) {
	aKeys := slices.Sorted(maps.Keys(a))
	bKeys := slices.Sorted(maps.Keys(b))

	for i := range min(len(aKeys), len(bKeys)) {
		if comp := cmp.Compare(aKeys[i], bKeys[i]); comp != 0 {
			return comp, nil
		}
		comp, err := c.Compare(a[aKeys[i]], b[bKeys[i]])
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}

	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) toSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	seq, l, err := structure.Seq(v)
	if err != nil {
		return nil
	}
	res := make([]any, 0, l)
	for item := range seq {
		res = append(res, item)
	}
	return res
}

func (c *Comparer) toMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	seq, l, err := structure.Seq2(v)
	if err != nil {
		return nil
	}
	res := make(map[string]any, l)
	for k, item := range seq {
		res[k] = item
	}
	return res
}

// sameComparable reports whether a and b are equal values of the same
// comparable Go type, such as backend identifiers.
func (c *Comparer) sameComparable(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func (c *Comparer) asNumber(v any) (*big.Float, bool) {
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		r.SetFloat64(float64(n))
	case float64:
		if n != n {
			return nil, false
		}
		r.SetFloat64(n)
	default:
		return nil, false
	}
	return r, true
}
