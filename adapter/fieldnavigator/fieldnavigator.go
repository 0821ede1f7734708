// Package fieldnavigator contains the default [domain.FieldNavigator]
// implementation for storage documents.
package fieldnavigator

import (
	"strconv"
	"strings"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// FieldNavigator implements [domain.FieldNavigator].
type FieldNavigator struct{}

// NewFieldNavigator returns a new implementation of [domain.FieldNavigator].
func NewFieldNavigator() domain.FieldNavigator {
	return &FieldNavigator{}
}

// GetAddress implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetAddress(field string) ([]string, error) {
	return strings.Split(field, "."), nil
}

// SplitFields implements [domain.FieldNavigator].
func (fn *FieldNavigator) SplitFields(fields string) ([]string, error) {
	return strings.Split(fields, ","), nil
}

// GetField implements [domain.FieldNavigator]. A list found in the middle of
// the address is expanded once, unless the next part is an index. Lists inside
// an expanded list are not expanded again.
func (fn *FieldNavigator) GetField(obj any, addr ...string) ([]domain.GetSetter, bool, error) {
	if len(addr) == 0 {
		return []domain.GetSetter{NewReadOnlyGetSetter(obj)}, false, nil
	}
	return fn.getField(obj, addr, false)
}

func (fn *FieldNavigator) getField(obj any, addr []string, expanded bool) ([]domain.GetSetter, bool, error) {
	key, rest := addr[0], addr[1:]

	switch t := obj.(type) {
	case map[string]any:
		if len(rest) == 0 {
			return []domain.GetSetter{NewGetSetterWithMap(t, key)}, expanded, nil
		}
		next, ok := t[key]
		if !ok {
			return []domain.GetSetter{NewGetSetterEmpty()}, expanded, nil
		}
		return fn.getField(next, rest, expanded)
	case []any:
		if i, err := strconv.Atoi(key); err == nil {
			if len(rest) == 0 {
				return []domain.GetSetter{NewGetSetterWithArrayIndex(t, i)}, expanded, nil
			}
			if i < 0 || i >= len(t) {
				return []domain.GetSetter{NewGetSetterEmpty()}, expanded, nil
			}
			return fn.getField(t[i], rest, expanded)
		}
		if expanded {
			return []domain.GetSetter{NewGetSetterEmpty()}, true, nil
		}
		res := make([]domain.GetSetter, 0, len(t))
		for _, item := range t {
			fields, _, err := fn.getField(item, addr, true)
			if err != nil {
				return nil, false, err
			}
			res = append(res, fields...)
		}
		return res, true, nil
	default:
		return []domain.GetSetter{NewGetSetterEmpty()}, expanded, nil
	}
}

// EnsureField implements [domain.FieldNavigator]. Missing objects are created
// along the address and lists grow to fit the requested index.
func (fn *FieldNavigator) EnsureField(obj any, addr ...string) ([]domain.GetSetter, error) {
	root := NewReadOnlyGetSetter(obj)
	if len(addr) == 0 {
		return []domain.GetSetter{root}, nil
	}
	return fn.ensureField(root, addr)
}

func (fn *FieldNavigator) ensureField(parent domain.GetSetter, addr []string) ([]domain.GetSetter, error) {
	value, _ := parent.Get()
	key, rest := addr[0], addr[1:]

	var field domain.GetSetter
	switch t := value.(type) {
	case map[string]any:
		if _, ok := t[key]; !ok {
			t[key] = nil
		}
		field = NewGetSetterWithMap(t, key)
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil {
			res := make([]domain.GetSetter, 0, len(t))
			for n := range t {
				fields, err := fn.ensureField(NewGetSetterWithArrayIndex(t, n), addr)
				if err != nil {
					return nil, err
				}
				res = append(res, fields...)
			}
			return res, nil
		}
		if i < 0 {
			return nil, domain.ErrFieldName{Field: key, Reason: "negative list index"}
		}
		if i >= len(t) {
			t = append(t, make([]any, i-len(t)+1)...)
			parent.Set(t)
		}
		field = NewGetSetterWithArrayIndex(t, i)
	default:
		return nil, domain.ErrType{Want: "object or list", Actual: value}
	}

	if len(rest) == 0 {
		return []domain.GetSetter{field}, nil
	}
	if v, _ := field.Get(); v == nil {
		field.Set(map[string]any{})
	}
	return fn.ensureField(field, rest)
}
