// Package hasher contains a json based implementation of [domain.Hasher]. It
// is used to key the deserialization cache and the in-memory indexes, so it
// hashes documents, arrays and primitive values in a canonical form: object
// keys are sorted and numbers of any Go kind hash as their JSON text. Values
// that cannot be marshaled, like channels and functions, are hashed by their
// pointer.
package hasher

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

// Hasher implements [domain.Hasher].
type Hasher struct{}

// NewHasher returns a new implementation of [domain.Hasher].
func NewHasher() domain.Hasher {
	return &Hasher{}
}

// Hash implements domain.Hasher.
func (h *Hasher) Hash(value any) (uint64, error) {
	b, err := json.Marshal(h.canonicalize(value))
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}

func (h *Hasher) canonicalize(a any) any {
	if h.straightforward(a) {
		return a
	}

	if f, ok := h.fields(a); ok {
		return f
	}

	if i, ok := h.items(a); ok {
		return i
	}

	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return nil
		}
		return v.Pointer()
	}
	return a
}

func (h *Hasher) fields(a any) (object, bool) {
	if !structure.IsObject(a) {
		return nil, false
	}
	seq, l, err := structure.Seq2(a)
	if err != nil {
		return nil, false
	}
	pairs := make(object, 0, l)
	for k, v := range seq {
		pairs = append(pairs, keyValuePair{key: k, val: h.canonicalize(v)})
	}
	return pairs, true
}

func (h *Hasher) items(a any) ([]any, bool) {
	if !structure.IsList(a) {
		return nil, false
	}
	seq, l, err := structure.Seq(a)
	if err != nil {
		return nil, false
	}
	res := make([]any, 0, l)
	for v := range seq {
		res = append(res, h.canonicalize(v))
	}
	return res, true
}

func (h *Hasher) straightforward(a any) bool {
	switch a.(type) {
	case nil,
		bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time, json.Marshaler:
		return true
	default:
		return false
	}
}

type keyValuePair struct {
	key string
	val any
}

type object []keyValuePair

func (o object) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(append(make([]byte, 0, 256), '{'))

	sorted := slices.Clone(o)
	slices.SortFunc(sorted, func(a, b keyValuePair) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})

	for n, item := range sorted {
		k, _ := json.Marshal(item.key)
		_, _ = buf.Write(k)
		_ = buf.WriteByte(':')
		v, err := json.Marshal(item.val)
		if err != nil {
			return nil, err
		}
		_, _ = buf.Write(v)
		if n < len(sorted)-1 {
			_ = buf.WriteByte(',')
		}
	}
	_ = buf.WriteByte('}')

	return buf.Bytes(), nil
}
