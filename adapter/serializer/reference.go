package serializer

import (
	"context"
	"fmt"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// ReferenceOption configures a [Reference] serializer.
type ReferenceOption interface{ applyReference(*refConfig) }

type referenceOption func(*refConfig)

func (f referenceOption) applyReference(r *refConfig) { f(r) }

// WithKeyField sets the entity field stored in place of the entity. Defaults
// to "_id".
func WithKeyField(field string) ReferenceOption {
	return referenceOption(func(r *refConfig) { r.keyField = field })
}

type refConfig struct {
	Base
	keyField string
}

// Reference is the serializer for fields that hold another entity. Only the
// entity key is stored, and reading the field resolves the key through an
// identity store.
type Reference[T any] struct {
	refConfig
	store domain.IdentityStore[T]
}

// NewReference returns a serializer that stores entities of type T by key.
func NewReference[T any](store domain.IdentityStore[T], options ...ReferenceOption) *Reference[T] {
	var zero T
	r := &Reference[T]{
		refConfig: refConfig{
			Base:     Base{kind: fmt.Sprintf("Reference[%T]", zero)},
			keyField: "_id",
		},
		store: store,
	}
	for _, option := range options {
		option.applyReference(&r.refConfig)
	}
	return r
}

// KeyField returns the entity field used as key.
func (r *Reference[T]) KeyField() string { return r.keyField }

// Validate implements [domain.Serializer]. Both entities and bare keys are
// accepted.
func (r *Reference[T]) Validate(ctx context.Context, field string, value any) error {
	if err := r.Base.Validate(ctx, field, value); err != nil {
		return err
	}
	if value == nil || r.IsValidValue(value) || isScalarKey(value) {
		return nil
	}
	var zero T
	return domain.ErrValidation{
		Field:  field,
		Reason: fmt.Sprintf("value should be a %T or its key", zero),
	}
}

// Serialize implements [domain.Serializer].
func (r *Reference[T]) Serialize(_ context.Context, value any, _ ...string) (any, error) {
	entity, ok := value.(T)
	if !ok {
		var zero T
		return nil, domain.ErrType{Want: fmt.Sprintf("%T", zero), Actual: value}
	}
	return r.store.Key(entity, r.keyField)
}

// Deserialize implements [domain.Serializer]. Lookup errors are returned
// unchanged.
func (r *Reference[T]) Deserialize(ctx context.Context, value any) (any, error) {
	return r.store.FindBy(ctx, r.keyField, value)
}

// IsValidValue implements [domain.Serializer].
func (r *Reference[T]) IsValidValue(value any) bool {
	_, ok := value.(T)
	return ok
}

func isScalarKey(value any) bool {
	switch value.(type) {
	case string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, fmt.Stringer:
		return true
	}
	return false
}
