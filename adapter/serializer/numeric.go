package serializer

import (
	"context"
	"fmt"
	"math"

	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

// IntegerOption configures an [Integer] serializer.
type IntegerOption interface{ applyInteger(*Integer) }

type integerOption func(*Integer)

func (f integerOption) applyInteger(i *Integer) { f(i) }

// WithMin sets the inclusive lower bound.
func WithMin(m int64) IntegerOption {
	return integerOption(func(i *Integer) { i.min = m })
}

// WithMax sets the inclusive upper bound.
func WithMax(m int64) IntegerOption {
	return integerOption(func(i *Integer) { i.max = m })
}

// Integer is the serializer for integer fields. Values are stored as int64.
type Integer struct {
	Base
	min int64
	max int64
}

// NewInteger returns a new integer serializer. Bounds default to the int64
// range.
func NewInteger(options ...IntegerOption) *Integer {
	i := &Integer{
		Base: Base{kind: "Integer"},
		min:  math.MinInt64,
		max:  math.MaxInt64,
	}
	for _, option := range options {
		option.applyInteger(i)
	}
	return i
}

// Validate implements [domain.Serializer].
func (i *Integer) Validate(ctx context.Context, field string, value any) error {
	if err := i.Base.Validate(ctx, field, value); err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	if !structure.IsInteger(value) {
		return domain.ErrValidation{Field: field, Reason: "value is not an integer"}
	}
	n, ok := structure.AsInteger(value)
	if !ok {
		return domain.ErrValidation{Field: field, Reason: "value overflows int64"}
	}

	if n < i.min {
		return domain.ErrValidation{
			Field:  field,
			Reason: fmt.Sprintf("value should be greater than or equal to %d", i.min),
		}
	}
	if n > i.max {
		return domain.ErrValidation{
			Field:  field,
			Reason: fmt.Sprintf("value should be less than or equal to %d", i.max),
		}
	}
	return nil
}

// Serialize implements [domain.Serializer].
func (i *Integer) Serialize(_ context.Context, value any, _ ...string) (any, error) {
	if value == nil {
		return nil, nil
	}
	n, ok := structure.AsInteger(value)
	if !ok {
		return nil, domain.ErrType{Want: "integer", Actual: value}
	}
	return n, nil
}

// Deserialize implements [domain.Serializer]. Wire formats that only carry
// floating point numbers are accepted when the value has no fractional part.
func (i *Integer) Deserialize(ctx context.Context, value any) (any, error) {
	return i.Serialize(ctx, value)
}

// IsValidValue implements [domain.Serializer].
func (i *Integer) IsValidValue(value any) bool {
	_, ok := value.(int64)
	return ok
}

// FloatOption configures a [Float] serializer.
type FloatOption interface{ applyFloat(*Float) }

type floatOption func(*Float)

func (f floatOption) applyFloat(fl *Float) { f(fl) }

// WithFloatMin sets the inclusive lower bound.
func WithFloatMin(m float64) FloatOption {
	return floatOption(func(f *Float) { f.min = math.Max(m, -math.MaxFloat64) })
}

// WithFloatMax sets the inclusive upper bound.
func WithFloatMax(m float64) FloatOption {
	return floatOption(func(f *Float) { f.max = math.Min(m, math.MaxFloat64) })
}

// Float is the serializer for floating point fields. Values are stored as
// float64.
type Float struct {
	Base
	min float64
	max float64
}

// NewFloat returns a new float serializer. Bounds default to the finite
// float64 range.
func NewFloat(options ...FloatOption) *Float {
	f := &Float{
		Base: Base{kind: "Float"},
		min:  -math.MaxFloat64,
		max:  math.MaxFloat64,
	}
	for _, option := range options {
		option.applyFloat(f)
	}
	return f
}

// Validate implements [domain.Serializer].
func (f *Float) Validate(ctx context.Context, field string, value any) error {
	if err := f.Base.Validate(ctx, field, value); err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	n, ok := structure.AsFloat(value)
	if !ok {
		return domain.ErrValidation{Field: field, Reason: "value is not a number"}
	}
	if math.IsNaN(n) {
		return domain.ErrValidation{Field: field, Reason: "value is not a number"}
	}

	if n < f.min {
		return domain.ErrValidation{
			Field:  field,
			Reason: fmt.Sprintf("value should be greater than or equal to %g", f.min),
		}
	}
	if n > f.max {
		return domain.ErrValidation{
			Field:  field,
			Reason: fmt.Sprintf("value should be less than or equal to %g", f.max),
		}
	}
	return nil
}

// Serialize implements [domain.Serializer].
func (f *Float) Serialize(_ context.Context, value any, _ ...string) (any, error) {
	if value == nil {
		return nil, nil
	}
	n, ok := structure.AsFloat(value)
	if !ok {
		return nil, domain.ErrType{Want: "number", Actual: value}
	}
	return n, nil
}

// Deserialize implements [domain.Serializer].
func (f *Float) Deserialize(ctx context.Context, value any) (any, error) {
	return f.Serialize(ctx, value)
}

// IsValidValue implements [domain.Serializer].
func (f *Float) IsValidValue(value any) bool {
	_, ok := value.(float64)
	return ok
}
