// Package serializer contains the field policies attached to a document
// schema. Each serializer validates values and converts them between their
// application form and the form stored by a backend.
//
// Every variant embeds [Base], which carries the shared configuration. Base
// does not implement IsValidValue, so a variant that forgets it does not
// satisfy [domain.Serializer].
package serializer

import (
	"context"

	"github.com/goccy/go-reflect"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Base holds the configuration shared by all serializers.
type Base struct {
	kind       string
	required   bool
	def        any
	hasDefault bool
	verbose    string
	helpText   string
}

// Option configures the shared attributes of any serializer. It can be passed
// to every constructor in this package.
type Option func(*Base)

func (o Option) applyString(s *String)       { o(&s.Base) }
func (o Option) applyInteger(i *Integer)     { o(&i.Base) }
func (o Option) applyFloat(f *Float)         { o(&f.Base) }
func (o Option) applyReference(r *refConfig) { o(&r.Base) }

// WithRequired marks the field as required. Required fields must be present
// and non-empty.
func WithRequired(r bool) Option {
	return func(b *Base) { b.required = r }
}

// WithDefault sets the value assigned to the field when a document is created
// without it.
func WithDefault(v any) Option {
	return func(b *Base) {
		b.def = v
		b.hasDefault = true
	}
}

// WithVerbose sets the human readable name of the field.
func WithVerbose(v string) Option {
	return func(b *Base) { b.verbose = v }
}

// WithHelpText sets a description shown by presentation layers.
func WithHelpText(h string) Option {
	return func(b *Base) { b.helpText = h }
}

// Kind implements [domain.Serializer].
func (b *Base) Kind() string { return b.kind }

// Required implements [domain.Serializer].
func (b *Base) Required() bool { return b.required }

// Default implements [domain.Serializer].
func (b *Base) Default() (any, bool) { return b.def, b.hasDefault }

// Validate runs the checks shared by every serializer. It fails if the field
// is required and value is empty.
func (b *Base) Validate(_ context.Context, field string, value any) error {
	if b.required && isEmpty(value) {
		return domain.ErrValidation{Field: field, Reason: "field is required"}
	}
	return nil
}

// Serialize must be overridden by variants.
func (b *Base) Serialize(context.Context, any, ...string) (any, error) {
	return nil, domain.ErrNotImplemented{Kind: b.kind, Method: "Serialize"}
}

// Deserialize must be overridden by variants.
func (b *Base) Deserialize(context.Context, any) (any, error) {
	return nil, domain.ErrNotImplemented{Kind: b.kind, Method: "Deserialize"}
}

// FormField implements [domain.FormFielder].
func (b *Base) FormField(overrides ...domain.FormOption) domain.FieldDescriptor {
	fd := domain.FieldDescriptor{
		Kind:     b.kind,
		Verbose:  b.verbose,
		Required: b.required,
		HelpText: b.helpText,
	}
	if b.hasDefault {
		fd.Default = b.def
	}
	for _, o := range overrides {
		o(&fd)
	}
	return fd
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch t := value.(type) {
	case string:
		return t == ""
	case []byte:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	}
	return false
}
