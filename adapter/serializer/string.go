package serializer

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// StringOption configures a [String] serializer.
type StringOption interface{ applyString(*String) }

type stringOption func(*String)

func (f stringOption) applyString(s *String) { f(s) }

// WithMinLength sets the minimum number of characters.
func WithMinLength(n int) StringOption {
	return stringOption(func(s *String) {
		s.minLength = n
		s.hasMin = true
	})
}

// WithMaxLength sets the maximum number of characters.
func WithMaxLength(n int) StringOption {
	return stringOption(func(s *String) {
		s.maxLength = n
		s.hasMax = true
	})
}

// String is the serializer for text fields. Lengths are counted in
// characters, not bytes.
type String struct {
	Base
	minLength int
	maxLength int
	hasMin    bool
	hasMax    bool
}

// NewString returns a new text serializer.
func NewString(options ...StringOption) *String {
	s := &String{Base: Base{kind: "String"}}
	for _, option := range options {
		option.applyString(s)
	}
	return s
}

// Validate implements [domain.Serializer].
func (s *String) Validate(ctx context.Context, field string, value any) error {
	if err := s.Base.Validate(ctx, field, value); err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	str, ok := asText(value)
	if !ok {
		return domain.ErrValidation{Field: field, Reason: "value is not a string"}
	}

	length := utf8.RuneCountInString(str)
	if s.hasMin && length < s.minLength {
		return domain.ErrValidation{
			Field:  field,
			Reason: fmt.Sprintf("length should be at least %d characters", s.minLength),
		}
	}
	if s.hasMax && length > s.maxLength {
		return domain.ErrValidation{
			Field:  field,
			Reason: fmt.Sprintf("length should be at most %d characters", s.maxLength),
		}
	}
	return nil
}

// Serialize implements [domain.Serializer].
func (s *String) Serialize(_ context.Context, value any, _ ...string) (any, error) {
	if value == nil {
		return nil, nil
	}
	str, ok := asText(value)
	if !ok {
		return nil, domain.ErrType{Want: "string", Actual: value}
	}
	return str, nil
}

// Deserialize implements [domain.Serializer].
func (s *String) Deserialize(ctx context.Context, value any) (any, error) {
	return s.Serialize(ctx, value)
}

// IsValidValue implements [domain.Serializer].
func (s *String) IsValidValue(value any) bool {
	_, ok := value.(string)
	return ok
}

func asText(value any) (string, bool) {
	switch t := value.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}
