package document

import (
	"context"
	"fmt"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Accessor is the named accessor of a declared field. Accessors are created
// once by [NewSchema].
type Accessor struct {
	name   string
	schema *Schema
}

// Name returns the field name.
func (a *Accessor) Name() string { return a.name }

// Get reads the field from d.
func (a *Accessor) Get(ctx context.Context, d *Document) (any, error) {
	return d.Get(ctx, a.name)
}

// Set writes the field to d.
func (a *Accessor) Set(ctx context.Context, d *Document, value any) error {
	return d.Set(ctx, a.name, value)
}

// Delete removes the field from d.
func (a *Accessor) Delete(d *Document) error {
	return d.Delete(a.name)
}

// Has reports whether d has the field set.
func (a *Accessor) Has(d *Document) bool {
	return d.Has(a.name)
}

// ValueOf reads key from d and asserts its application form is a T.
func ValueOf[T any](ctx context.Context, d *Document, key string) (T, error) {
	var zero T
	v, err := d.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, domain.ErrType{Want: fmt.Sprintf("%T", zero), Actual: v}
	}
	return t, nil
}
