package serializer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

// List is the serializer for array fields. Elements are converted through an
// optional inner serializer.
type List struct {
	Base
	inner domain.Serializer
}

// NewList returns a new list serializer. A nil inner serializer stores
// elements unchanged.
func NewList(inner domain.Serializer, options ...Option) *List {
	kind := "List"
	if inner != nil {
		kind = fmt.Sprintf("List[%s]", inner.Kind())
	}
	l := &List{Base: Base{kind: kind}, inner: inner}
	for _, option := range options {
		option(&l.Base)
	}
	return l
}

// Inner returns the element serializer, if any.
func (l *List) Inner() domain.Serializer { return l.inner }

// Validate implements [domain.Serializer].
func (l *List) Validate(ctx context.Context, field string, value any) error {
	if err := l.Base.Validate(ctx, field, value); err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	seq, _, err := structure.Seq(value)
	if err != nil {
		return domain.ErrValidation{Field: field, Reason: "value is not a list"}
	}
	if l.inner == nil {
		return nil
	}

	var n int
	for item := range seq {
		if err := l.inner.Validate(ctx, field+"."+strconv.Itoa(n), item); err != nil {
			return err
		}
		n++
	}
	return nil
}

// Serialize implements [domain.Serializer]. A value that is not a list is
// serialized as a single element, which is what query and update operators
// such as $push or element matching send. If path addresses an element by its
// index, the index is dropped before reaching the inner serializer.
func (l *List) Serialize(ctx context.Context, value any, path ...string) (any, error) {
	if l.inner == nil || value == nil {
		return value, nil
	}

	innerPath := path
	if len(path) > 1 {
		if _, err := strconv.Atoi(path[1]); err == nil {
			innerPath = append([]string{path[0]}, path[2:]...)
		}
	}

	if !structure.IsList(value) {
		return l.inner.Serialize(ctx, value, innerPath...)
	}
	return l.mapItems(value, func(item any) (any, error) {
		return l.inner.Serialize(ctx, item, innerPath...)
	})
}

// Deserialize implements [domain.Serializer].
func (l *List) Deserialize(ctx context.Context, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if !structure.IsList(value) {
		return nil, domain.ErrType{Want: "list", Actual: value}
	}
	if l.inner == nil {
		return l.mapItems(value, func(item any) (any, error) { return item, nil })
	}
	return l.mapItems(value, func(item any) (any, error) {
		if l.inner.IsValidValue(item) {
			return item, nil
		}
		return l.inner.Deserialize(ctx, item)
	})
}

// IsValidValue implements [domain.Serializer]. Without an inner serializer
// any list is valid, otherwise every element must be valid for it.
func (l *List) IsValidValue(value any) bool {
	seq, _, err := structure.Seq(value)
	if err != nil {
		return false
	}
	if l.inner == nil {
		return true
	}
	for item := range seq {
		if !l.inner.IsValidValue(item) {
			return false
		}
	}
	return true
}

func (l *List) mapItems(value any, fn func(any) (any, error)) ([]any, error) {
	seq, length, err := structure.Seq(value)
	if err != nil {
		return nil, err
	}
	res := make([]any, 0, length)
	for item := range seq {
		v, err := fn(item)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}
