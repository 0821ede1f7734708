package serializer

import (
	"context"
	"errors"

	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Embedded is the serializer for nested documents.
type Embedded struct {
	Base
	schema *document.Schema
}

// NewEmbedded returns a serializer that stores values as documents of the
// given schema.
func NewEmbedded(schema *document.Schema, options ...Option) *Embedded {
	e := &Embedded{Base: Base{kind: "Embedded[" + schema.Name() + "]"}, schema: schema}
	for _, option := range options {
		option(&e.Base)
	}
	return e
}

// Schema returns the nested schema.
func (e *Embedded) Schema() *document.Schema { return e.schema }

// Validate implements [domain.Serializer]. The nested document is validated
// too, and its errors are reported with the field prefix.
func (e *Embedded) Validate(ctx context.Context, field string, value any) error {
	if err := e.Base.Validate(ctx, field, value); err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	doc, err := e.document(value)
	if err != nil {
		return domain.ErrValidation{
			Field:  field,
			Reason: "value is not convertible to " + e.schema.Name(),
		}
	}

	if err := doc.Validate(ctx); err != nil {
		var ve domain.ErrValidation
		if errors.As(err, &ve) {
			return domain.ErrValidation{Field: field + "." + ve.Field, Reason: ve.Reason}
		}
		return err
	}
	return nil
}

// Serialize implements [domain.Serializer]. When path is longer than the
// field itself, value belongs to the nested field path[1] and is serialized
// by it.
func (e *Embedded) Serialize(ctx context.Context, value any, path ...string) (any, error) {
	if len(path) > 1 {
		item, err := e.schema.SerializeItem(ctx, path[1], value, path[1:]...)
		if err != nil {
			return nil, err
		}
		return item[path[1]], nil
	}
	if value == nil {
		return nil, nil
	}

	doc, err := e.document(value)
	if err != nil {
		return nil, err
	}
	return doc.Serialize(ctx)
}

// Deserialize implements [domain.Serializer]. The nested document is not
// validated here, [Embedded.Validate] does it with the field prefix.
func (e *Embedded) Deserialize(ctx context.Context, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	doc, err := e.schema.New(nil)
	if err != nil {
		return nil, err
	}
	return doc.Deserialize(ctx, value, document.WithValidate(false))
}

// IsValidValue implements [domain.Serializer].
func (e *Embedded) IsValidValue(value any) bool {
	doc, ok := value.(*document.Document)
	return ok && doc != nil && doc.Schema() == e.schema
}

func (e *Embedded) document(value any) (*document.Document, error) {
	if e.IsValidValue(value) {
		return value.(*document.Document), nil
	}
	return e.schema.New(value)
}
