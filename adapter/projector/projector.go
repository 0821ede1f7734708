// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"errors"
	"maps"
	"slices"

	"github.com/vinicius-lino-figueiredo/godm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/godm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

var (
	// ErrMixOmitType is returned when user provides a projection object
	// with mixed "omit" and "show" operators.
	ErrMixOmitType = errors.New("can't both keep and omit fields except for _id")
)

// Projector implements [domain.Projector].
type Projector struct {
	fn domain.FieldNavigator
}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector(opts ...Option) domain.Projector {
	p := Projector{fn: fieldnavigator.NewFieldNavigator()}
	for _, opt := range opts {
		opt(&p)
	}
	return &p
}

// ParseFields converts the fields argument of a find into a projection. It
// accepts nil, a list of field names to keep, or an object whose values are
// numbers or booleans.
func ParseFields(fields any) (map[string]uint8, error) {
	if fields == nil {
		return nil, nil
	}
	if structure.IsList(fields) {
		seq, l, err := structure.Seq(fields)
		if err != nil {
			return nil, err
		}
		proj := make(map[string]uint8, l)
		for item := range seq {
			name, ok := item.(string)
			if !ok {
				return nil, domain.ErrType{Want: "field name", Actual: item}
			}
			proj[name] = 1
		}
		return proj, nil
	}
	seq, l, err := structure.Seq2(fields)
	if err != nil {
		return nil, domain.ErrType{Want: "projection", Actual: fields}
	}
	proj := make(map[string]uint8, l)
	for k, v := range seq {
		switch t := v.(type) {
		case bool:
			if t {
				proj[k] = 1
			} else {
				proj[k] = 0
			}
		default:
			f, ok := structure.AsFloat(v)
			if !ok {
				return nil, domain.ErrType{Want: "0 or 1", Actual: v}
			}
			if f != 0 {
				proj[k] = 1
			} else {
				proj[k] = 0
			}
		}
	}
	return proj, nil
}

// Project implements [domain.Projector]. The _id is kept unless explicitly
// omitted.
func (q *Projector) Project(doc map[string]any, proj map[string]uint8) (map[string]any, error) {
	if len(proj) == 0 {
		return doc, nil
	}

	id, idMentioned := proj["_id"]
	keepID := !idMentioned || id != 0
	projection := make([][]string, 0, len(proj))

	fields := 0
	oneFields := 0
	for _, field := range slices.Sorted(maps.Keys(proj)) {
		if field == "_id" {
			continue
		}
		fields++
		if proj[field] > 0 {
			oneFields++
		}
		if oneFields > 0 && oneFields != fields {
			return nil, ErrMixOmitType
		}
		addr, err := q.fn.GetAddress(field)
		if err != nil {
			return nil, err
		}
		projection = append(projection, addr)
	}

	var projected map[string]any
	var err error
	if oneFields > 0 || fields == 0 && keepID {
		projected, err = q.positiveProject(doc, projection)
	} else {
		projected, err = q.negativeProject(doc, projection)
	}
	if err != nil {
		return nil, err
	}

	if docID, ok := doc["_id"]; ok && keepID {
		projected["_id"] = docID
	} else {
		delete(projected, "_id")
	}
	return projected, nil
}

func (q *Projector) positiveProject(doc map[string]any, p [][]string) (map[string]any, error) {
	res := make(map[string]any)

	for _, field := range p {
		values, expanded, err := q.fn.GetField(doc, field...)
		if err != nil {
			return nil, err
		}
		fieldValues, ok := q.readFields(values, expanded)
		if !ok {
			continue
		}
		created, err := q.fn.EnsureField(res, field...)
		if err != nil {
			return nil, err
		}
		for _, c := range created {
			c.Set(modifier.CopyValue(fieldValues))
		}
	}
	return res, nil
}

func (q *Projector) readFields(f []domain.GetSetter, expanded bool) (any, bool) {
	if !expanded {
		return f[0].Get()
	}
	res := make([]any, 0, len(f))
	for _, field := range f {
		if value, ok := field.Get(); ok {
			res = append(res, value)
		}
	}
	return res, true
}

func (q *Projector) negativeProject(doc map[string]any, p [][]string) (map[string]any, error) {
	res := modifier.CopyDoc(doc)
	for _, field := range p {
		values, _, err := q.fn.GetField(res, field...)
		if err != nil {
			return nil, err
		}
		for _, value := range values {
			value.Unset()
		}
	}
	return res, nil
}
