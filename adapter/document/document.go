package document

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/goccy/go-reflect"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

// Document is an ordered mapping bound to a [Schema]. Keys declared by the
// schema are read in their application form and written through their
// serializer. Other keys are stored unchanged.
//
// Documents are not safe for concurrent mutation.
type Document struct {
	schema *Schema
	keys   []string
	values map[string]any
}

// DeserializeOption configures [Document.Deserialize].
type DeserializeOption func(*deserializeOptions)

type deserializeOptions struct {
	validate bool
	clear    bool
}

// WithValidate sets whether the document is validated after deserializing.
// Defaults to true.
func WithValidate(v bool) DeserializeOption {
	return func(o *deserializeOptions) { o.validate = v }
}

// WithClear sets whether current values are dropped before loading new data.
// Defaults to true.
func WithClear(c bool) DeserializeOption {
	return func(o *deserializeOptions) { o.clear = c }
}

// Schema returns the schema the document is bound to.
func (d *Document) Schema() *Schema { return d.schema }

// Get returns the application form of the value stored at key. Declared fields
// whose stored value is not yet in application form are deserialized, and the
// result is memoized in the schema cache. The stored value is left untouched.
//
// Values read from the cache are copies, so documents sharing a raw value
// never share nested documents or lists.
func (d *Document) Get(ctx context.Context, key string) (any, error) {
	raw, ok := d.values[key]
	if !ok {
		return nil, domain.ErrNoSuchKey{Key: key}
	}

	field, ok := d.schema.fields[key]
	if !ok || field.IsValidValue(raw) {
		return raw, nil
	}

	cache := d.schema.cache
	if cache != nil {
		if v, ok := cache.Get(field.Kind(), raw); ok {
			return cloneValue(v), nil
		}
	}

	v, err := field.Deserialize(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("deserializing %q: %w", key, err)
	}

	if cache != nil {
		cache.Put(field.Kind(), raw, cloneValue(v))
	}
	return v, nil
}

// Set stores value at key. Values of declared fields that are not in
// application form are validated and deserialized first.
func (d *Document) Set(ctx context.Context, key string, value any) error {
	field, ok := d.schema.fields[key]
	if ok && !field.IsValidValue(value) {
		if err := field.Validate(ctx, key, value); err != nil {
			return err
		}
		v, err := field.Deserialize(ctx, value)
		if err != nil {
			return fmt.Errorf("deserializing %q: %w", key, err)
		}
		value = v
	}
	d.put(key, value)
	return nil
}

// Delete removes key from the document.
func (d *Document) Delete(key string) error {
	if _, ok := d.values[key]; !ok {
		return domain.ErrNoSuchKey{Key: key}
	}
	delete(d.values, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
	return nil
}

// Has reports whether key is set.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Raw returns the value stored at key without converting it.
func (d *Document) Raw(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// ID returns the stored "_id" value, or nil.
func (d *Document) ID() any {
	return d.values["_id"]
}

// Keys iterates over keys in insertion order.
func (d *Document) Keys() iter.Seq[string] {
	return slices.Values(slices.Clone(d.keys))
}

// Iter iterates over keys and stored values in insertion order.
func (d *Document) Iter() iter.Seq2[string, any] {
	keys := slices.Clone(d.keys)
	return func(yield func(string, any) bool) {
		for _, k := range keys {
			v, ok := d.values[k]
			if !ok {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// Len returns the number of keys.
func (d *Document) Len() int { return len(d.keys) }

// Validate checks that required fields are present, then validates every
// value through its serializer and the field hook, if one exists.
func (d *Document) Validate(ctx context.Context) error {
	for _, name := range d.schema.names {
		if d.schema.fields[name].Required() && !d.Has(name) {
			return domain.ErrValidation{Field: name, Reason: "field is required"}
		}
	}

	for _, key := range d.keys {
		v, err := d.Get(ctx, key)
		if err != nil {
			return err
		}
		if field, ok := d.schema.fields[key]; ok {
			if err := field.Validate(ctx, key, v); err != nil {
				return err
			}
		}
		if hook, ok := d.schema.hooks[key]; ok {
			if err := hook(ctx, d, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Serialize validates the document and returns its storage form.
func (d *Document) Serialize(ctx context.Context) (map[string]any, error) {
	if err := d.Validate(ctx); err != nil {
		return nil, err
	}

	res := make(map[string]any, len(d.keys))
	for _, key := range d.keys {
		v, err := d.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		field, ok := d.schema.fields[key]
		if !ok {
			if res[key], err = plain(ctx, v); err != nil {
				return nil, err
			}
			continue
		}
		if res[key], err = field.Serialize(ctx, v, key); err != nil {
			return nil, fmt.Errorf("serializing %q: %w", key, err)
		}
	}
	return res, nil
}

// Deserialize loads data, converting declared fields to their application
// form. With nil data, the values already stored are converted in place.
// When clearing, declared fields missing from data receive their defaults.
// The document is left unchanged if any value fails to convert.
func (d *Document) Deserialize(ctx context.Context, data any, options ...DeserializeOption) (*Document, error) {
	opts := deserializeOptions{validate: true, clear: true}
	for _, option := range options {
		option(&opts)
	}

	src := d
	if data != nil {
		src = &Document{schema: d.schema, values: make(map[string]any)}
		if err := src.load(data); err != nil {
			return nil, err
		}
	}

	next := &Document{schema: d.schema, values: make(map[string]any)}
	if data == nil || !opts.clear {
		next.keys, next.values = slices.Clone(d.keys), maps.Clone(d.values)
	}

	for key, value := range src.Iter() {
		if field, ok := d.schema.fields[key]; ok && !field.IsValidValue(value) {
			v, err := field.Deserialize(ctx, value)
			if err != nil {
				return nil, fmt.Errorf("deserializing %q: %w", key, err)
			}
			value = v
		}
		next.put(key, value)
	}

	if data != nil && opts.clear {
		next.applyDefaults()
	}
	d.keys, d.values = next.keys, next.values

	if opts.validate {
		if err := d.Validate(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Clone returns a copy of the document. Nested documents, lists and mappings
// are copied too.
func (d *Document) Clone() *Document {
	res := &Document{
		schema: d.schema,
		keys:   slices.Clone(d.keys),
		values: make(map[string]any, len(d.values)),
	}
	for k, v := range d.values {
		res.values[k] = cloneValue(v)
	}
	return res
}

// Decode copies the application form of the document into target, which
// should be a pointer to a struct or map. Struct fields are matched by their
// "odm" tag.
func (d *Document) Decode(ctx context.Context, target any) error {
	m, err := d.toMap(ctx)
	if err != nil {
		return err
	}
	return d.schema.decoder.Decode(m, target)
}

// BeforeSave runs the schema save hook, if any.
func (d *Document) BeforeSave(ctx context.Context) error {
	if d.schema.beforeSave == nil {
		return nil
	}
	return d.schema.beforeSave(ctx, d)
}

func (d *Document) toMap(ctx context.Context) (map[string]any, error) {
	res := make(map[string]any, len(d.keys))
	for _, key := range d.keys {
		v, err := d.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if res[key], err = appValue(ctx, v); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// appValue replaces nested documents, including those inside lists, by maps
// of their application values.
func appValue(ctx context.Context, v any) (any, error) {
	switch t := v.(type) {
	case *Document:
		if t == nil {
			return nil, nil
		}
		return t.toMap(ctx)
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			var err error
			if res[i], err = appValue(ctx, item); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
	return v, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Document:
		if t == nil {
			return t
		}
		return t.Clone()
	case []any:
		if t == nil {
			return t
		}
		res := make([]any, len(t))
		for i, item := range t {
			res[i] = cloneValue(item)
		}
		return res
	case map[string]any:
		if t == nil {
			return t
		}
		res := make(map[string]any, len(t))
		for k, item := range t {
			res[k] = cloneValue(item)
		}
		return res
	}
	return v
}

func (d *Document) put(key string, value any) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

func (d *Document) applyDefaults() {
	for _, name := range d.schema.names {
		if d.Has(name) {
			continue
		}
		if def, ok := d.schema.fields[name].Default(); ok {
			d.put(name, def)
		}
	}
}

func (d *Document) load(data any) error {
	switch t := data.(type) {
	case nil:
		return nil
	case *Document:
		if t == nil {
			return nil
		}
		for key, value := range t.Iter() {
			d.put(key, value)
		}
		return nil
	}

	if structure.IsObject(data) {
		seq, _, err := structure.Seq2(data)
		if err != nil {
			return err
		}
		m := maps.Collect(seq)
		for _, key := range slices.Sorted(maps.Keys(m)) {
			d.put(key, m[key])
		}
		return nil
	}

	if isStruct(data) {
		seq, _, err := structure.Seq2(data)
		if err != nil {
			return err
		}
		for key, value := range seq {
			d.put(key, value)
		}
		return nil
	}

	return domain.ErrType{Want: "mapping, document or struct", Actual: data}
}

func isStruct(data any) bool {
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	return v.Kind() == reflect.Struct
}

// plain converts schemaless nested documents to their storage form.
func plain(ctx context.Context, v any) (any, error) {
	if nested, ok := v.(*Document); ok && nested != nil {
		return nested.Serialize(ctx)
	}
	return v, nil
}
