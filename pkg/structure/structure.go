// Package structure contains type-related operations, such as iterating over a
// value of type any and converting numbers.
package structure

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-reflect"
)

// TagName is the struct tag read when iterating over struct fields.
const TagName = "odm"

var (
	// ErrNilObj may be returned by [Seq] or [Seq2] when a nil value is
	// passed as argument.
	ErrNilObj = errors.New("nil object")
)

// Object is implemented by ordered key-value containers, such as documents.
type Object interface {
	Iter() iter.Seq2[string, any]
	Len() int
}

var objectReflectType = reflect.TypeOf((*Object)(nil)).Elem()

// ErrNonObject is returned by [Seq2] when a value that is neither a struct,
// map nor an [Object] is passed as argument.
type ErrNonObject struct {
	Type string
}

func (e ErrNonObject) Error() string {
	return fmt.Sprintf("type %s is not a valid object", e.Type)
}

// ErrNonList is returned by [Seq] when a value that is neither a slice
// nor a array is passed as argument.
type ErrNonList struct {
	Type string
}

func (e ErrNonList) Error() string {
	return fmt.Sprintf("type %s is not a valid list", e.Type)
}

// Seq2 returns an iterator over the passed type. This method works for maps
// with string keys, structs and implementations of [Object].
func Seq2(obj any) (iter.Seq2[string, any], int, error) {
	if obj == nil {
		return nil, 0, ErrNilObj
	}
	if err := checkPrimitive(obj); err != nil {
		return nil, 0, err
	}
	switch t := obj.(type) {
	case Object:
		return t.Iter(), t.Len(), nil
	case map[string]any:
		return iterMap(t), len(t), nil
	case map[string]string:
		return iterMap(t), len(t), nil
	case map[string]int:
		return iterMap(t), len(t), nil
	case map[string]int64:
		return iterMap(t), len(t), nil
	case map[string]float64:
		return iterMap(t), len(t), nil
	case map[string]bool:
		return iterMap(t), len(t), nil
	}
	return iterReflect(obj)
}

func checkPrimitive(obj any) error {
	switch obj.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time, *regexp.Regexp, []byte:
		return ErrNonObject{Type: reflect.TypeOf(obj).String()}
	default:
		return nil
	}
}

func iterReflect(obj any) (iter.Seq2[string, any], int, error) {
	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		if v.Type().Implements(objectReflectType) {
			o := v.Interface().(Object)
			return o.Iter(), o.Len(), nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, 0, ErrNonObject{Type: v.Type().String()}
		}
		return iterReflectMap(v), v.Len(), nil
	case reflect.Struct:
		i, l := iterReflectStruct(v)
		return i, l, nil
	}
	return nil, 0, ErrNonObject{Type: v.Type().String()}
}

func iterReflectMap(v reflect.Value) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		it := v.MapRange()
		for it.Next() {
			if !yield(it.Key().String(), it.Value().Interface()) {
				return
			}
		}
	}
}

type field struct {
	Key   string
	Value any
}

func iterReflectStruct(v reflect.Value) (iter.Seq2[string, any], int) {
	fields := make([]field, 0, v.NumField())
	for k, v := range listStructFields(v) {
		fields = append(fields, field{Key: k, Value: v})
	}
	return func(yield func(string, any) bool) {
		for _, f := range fields {
			if !yield(f.Key, f.Value) {
				return
			}
		}
	}, len(fields)
}

func listStructFields(v reflect.Value) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		typ := v.Type()
		for n := range typ.NumField() {
			f := typ.Field(n)
			if f.PkgPath != "" {
				continue
			}
			name, omitEmpty, omitZero, skip := parseTag(f)
			if skip {
				continue
			}
			fv := v.Field(n)
			if omitZero && fv.IsZero() {
				continue
			}
			if omitEmpty && isEmpty(fv) {
				continue
			}
			if !yield(name, fv.Interface()) {
				return
			}
		}
	}
}

func parseTag(f reflect.StructField) (name string, omitEmpty, omitZero, skip bool) {
	tag, ok := f.Tag.Lookup(TagName)
	if !ok {
		return f.Name, false, false, false
	}
	if tag == "-" {
		return "", false, false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for sub := range strings.SplitSeq(opts, ",") {
		switch sub {
		case "omitempty":
			omitEmpty = true
		case "omitzero":
			omitZero = true
		}
	}
	return name, omitEmpty, omitZero, false
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String:
		return v.Len() == 0
	case reflect.Chan, reflect.Func, reflect.Ptr,
		reflect.UnsafePointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func iterMap[T any](m map[string]T) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range m {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Seq returns an iterator over a slice or array of any type. Byte slices are
// treated as scalar values and are not iterable.
func Seq(obj any) (iter.Seq[any], int, error) {
	if obj == nil {
		return nil, 0, ErrNilObj
	}
	switch t := obj.(type) {
	case []byte:
		return nil, 0, ErrNonList{Type: reflect.TypeOf(obj).String()}
	case []any:
		return iterSlice(t), len(t), nil
	case []string:
		return iterSlice(t), len(t), nil
	case []int:
		return iterSlice(t), len(t), nil
	case []int64:
		return iterSlice(t), len(t), nil
	case []float64:
		return iterSlice(t), len(t), nil
	case []map[string]any:
		return iterSlice(t), len(t), nil
	}
	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return func(yield func(any) bool) {
			for n := range v.Len() {
				if !yield(v.Index(n).Interface()) {
					return
				}
			}
		}, v.Len(), nil
	}
	return nil, 0, ErrNonList{Type: v.Type().String()}
}

// IsList reports whether obj can be iterated by [Seq].
func IsList(obj any) bool {
	if obj == nil {
		return false
	}
	if _, ok := obj.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(obj).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// IsObject reports whether obj is a mapping with string keys or an [Object].
// Structs are not considered objects.
func IsObject(obj any) bool {
	switch obj.(type) {
	case nil:
		return false
	case map[string]any, Object:
		return true
	}
	t := reflect.TypeOf(obj)
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String
}

func iterSlice[T any](m []T) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range m {
			if !yield(v) {
				return
			}
		}
	}
}

// AsInteger converts any built-in number to int64 and returns a flag that
// informs if the argument is a valid integer. Floats are only accepted when
// they have no fractional part.
func AsInteger(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float32:
		return floatAsInteger(float64(t))
	case float64:
		return floatAsInteger(t)
	default:
		return 0, false
	}
}

func floatAsInteger(f float64) (int64, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) || math.Trunc(f) != f {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// AsFloat converts any built-in number to float64.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	if i, ok := AsInteger(v); ok {
		return float64(i), true
	}
	return 0, false
}

// IsInteger reports whether v holds one of the Go integer kinds.
func IsInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// Contains checks if the given value is present in the slice.
func Contains[T any, S ~[]T](s S, t T, fn func(a T, b T) (bool, error)) (bool, error) {
	var ok bool
	var err error
	for _, i := range s {
		if ok, err = fn(i, t); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
