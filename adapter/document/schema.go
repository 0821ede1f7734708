// Package document contains the schema registry and the [Document] type, an
// ordered mapping whose declared fields are converted by serializers.
package document

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/godm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Fields maps field names to their serializers.
type Fields map[string]domain.Serializer

// Hook is a per-field validation function, run by [Document.Validate] after
// the field serializer accepted the value.
type Hook func(ctx context.Context, d *Document, value any) error

// BeforeSave runs before a document is written by a collection.
type BeforeSave func(ctx context.Context, d *Document) error

// Option configures a [Schema].
type Option func(*Schema)

// WithCache sets the cache used to memoize deserialized field values.
func WithCache(c domain.Cache) Option {
	return func(s *Schema) { s.cache = c }
}

// WithHook adds a validation hook for field. Fields not declared in the schema
// can have hooks too.
func WithHook(field string, h Hook) Option {
	return func(s *Schema) { s.hooks[field] = h }
}

// WithBeforeSave sets the function called before the document is persisted.
func WithBeforeSave(fn BeforeSave) Option {
	return func(s *Schema) { s.beforeSave = fn }
}

// WithDecoder sets the decoder used by [Document.Decode].
func WithDecoder(d domain.Decoder) Option {
	return func(s *Schema) { s.decoder = d }
}

// Schema is the immutable field registry shared by all documents of a kind.
type Schema struct {
	name       string
	fields     Fields
	names      []string
	accessors  map[string]*Accessor
	hooks      map[string]Hook
	beforeSave BeforeSave
	cache      domain.Cache
	decoder    domain.Decoder
}

// NewSchema registers a document kind. Field names cannot be empty, start with
// '$' or contain '.'.
func NewSchema(name string, fields Fields, options ...Option) (*Schema, error) {
	s := &Schema{
		name:      name,
		fields:    maps.Clone(fields),
		hooks:     make(map[string]Hook),
		accessors: make(map[string]*Accessor, len(fields)),
		decoder:   decoder.NewDecoder(),
	}
	if s.fields == nil {
		s.fields = make(Fields)
	}

	for field, serializer := range s.fields {
		if err := checkFieldName(field); err != nil {
			return nil, err
		}
		if serializer == nil {
			return nil, domain.ErrFieldName{Field: field, Reason: "field has no serializer"}
		}
		s.accessors[field] = &Accessor{name: field, schema: s}
	}
	s.names = slices.Sorted(maps.Keys(s.fields))

	for _, option := range options {
		option(s)
	}
	return s, nil
}

func checkFieldName(name string) error {
	switch {
	case name == "":
		return domain.ErrFieldName{Field: name, Reason: "field name is empty"}
	case strings.HasPrefix(name, "$"):
		return domain.ErrFieldName{Field: name, Reason: "field names cannot begin with '$'"}
	case strings.Contains(name, "."):
		return domain.ErrFieldName{Field: name, Reason: "field names cannot contain '.'"}
	}
	return nil
}

// Name returns the document kind name.
func (s *Schema) Name() string { return s.name }

// Field returns the serializer of the named field.
func (s *Schema) Field(name string) (domain.Serializer, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// FieldNames returns the declared field names in sorted order.
func (s *Schema) FieldNames() []string { return slices.Clone(s.names) }

// Accessor returns the named accessor generated for a declared field.
func (s *Schema) Accessor(name string) (*Accessor, bool) {
	a, ok := s.accessors[name]
	return a, ok
}

// Cache returns the deserialization cache, which may be nil.
func (s *Schema) Cache() domain.Cache { return s.cache }

// New creates a document from data, which can be nil, a mapping with string
// keys, another *Document or a struct. Mapping keys are stored sorted and
// struct fields in declaration order. Values are stored as given. Declared
// fields missing from data receive their default, if any.
func (s *Schema) New(data any) (*Document, error) {
	d := &Document{schema: s, values: make(map[string]any)}
	if err := d.load(data); err != nil {
		return nil, err
	}
	d.applyDefaults()
	return d, nil
}

// SerializeItem serializes a single key/value pair, as found in queries.
// Path is the dotted key split on '.', starting with key itself. Keys that are
// not declared fields are returned unchanged.
func (s *Schema) SerializeItem(ctx context.Context, key string, value any, path ...string) (map[string]any, error) {
	field, ok := s.fields[key]
	if !ok {
		return map[string]any{key: value}, nil
	}
	if len(path) == 0 {
		path = []string{key}
	}
	v, err := field.Serialize(ctx, value, path...)
	if err != nil {
		return nil, fmt.Errorf("serializing %q: %w", strings.Join(path, "."), err)
	}
	return map[string]any{key: v}, nil
}

// DeserializeItem is the inverse of [Schema.SerializeItem].
func (s *Schema) DeserializeItem(ctx context.Context, key string, value any) (map[string]any, error) {
	field, ok := s.fields[key]
	if !ok {
		return map[string]any{key: value}, nil
	}
	v, err := field.Deserialize(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("deserializing %q: %w", key, err)
	}
	return map[string]any{key: v}, nil
}

// FormFields describes every declared field that supports it, in name order.
func (s *Schema) FormFields(overrides ...domain.FormOption) []domain.FieldDescriptor {
	res := make([]domain.FieldDescriptor, 0, len(s.names))
	for _, name := range s.names {
		ff, ok := s.fields[name].(domain.FormFielder)
		if !ok {
			continue
		}
		fd := ff.FormField(overrides...)
		fd.Name = name
		if fd.Verbose == "" {
			fd.Verbose = strings.ReplaceAll(name, "_", " ")
		}
		res = append(res, fd)
	}
	return res
}
