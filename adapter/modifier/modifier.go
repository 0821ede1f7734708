// Package modifier contains a [domain.Modifier] implementation to apply changes
// to a storage document based on a mongo-like API.
package modifier

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/godm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/godm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/godm/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/godm/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

var (
	// ErrMixedOperators is returned when user provides an update query with
	// mixed use of normal fields and dollar fields.
	ErrMixedOperators = errors.New("cannot mix modifiers and normal fields")
	// ErrNonObject is returned when a modifier value passed by user is not
	// an object.
	ErrNonObject = errors.New("modifier value must be an object")
	// ErrInvalidPushField is returned when user passes some field other
	// than $each, $slice, $position and $sort when using $push modifier, or
	// uses the others without $each.
	ErrInvalidPushField = errors.New("can only use $slice, $position and $sort in conjunction with $each when $push to array")
	// ErrInvalidAddToSetField is returned when user passes some field other
	// than $each when using $addToSet modifier.
	ErrInvalidAddToSetField = errors.New("cannot use another field in conjunction with $each")
)

// ErrModFieldType is returned when a modification function runs on a document
// field of a type that is not accepted.
type ErrModFieldType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModFieldType) Error() string {
	return fmt.Sprintf("%s expects %s field, got %T", e.Mod, e.Want, e.Actual)
}

// ErrModArgType is returned when a modification function is called with an
// argument of a type that is not accepted.
type ErrModArgType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModArgType) Error() string {
	return fmt.Sprintf("%s expects %s arg, got %T", e.Mod, e.Want, e.Actual)
}

// ErrUnknownModifier is returned when the user specifies a modification query
// with a modification procedure that is not known by the current implementation
// of [Modifier].
type ErrUnknownModifier struct {
	Name string
}

// Error implements [error].
func (e ErrUnknownModifier) Error() string {
	return fmt.Sprintf("unknown modifier %q", e.Name)
}

type modFunc func(map[string]any, []string, any) error

type sliceProps struct {
	each        []any
	hasEach     bool
	slice       int
	hasSlice    bool
	position    int
	hasPosition bool
	sort        any
	hasSort     bool
	usedFields  int
}

// Modifier implements [domain.Modifier].
type Modifier struct {
	comp           domain.Comparer
	fieldNavigator domain.FieldNavigator
	matcher        domain.Matcher
	timeGetter     domain.TimeGetter
	mods           map[string]modFunc
}

// NewModifier returns a new implementation of [domain.Modifier].
func NewModifier(options ...Option) domain.Modifier {
	m := &Modifier{
		comp:           comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(),
		timeGetter:     timegetter.NewTimeGetter(),
	}
	for _, option := range options {
		option(m)
	}
	if m.matcher == nil {
		m.matcher = matcher.NewMatcher(
			matcher.WithComparer(m.comp),
			matcher.WithFieldNavigator(m.fieldNavigator),
		)
	}

	m.mods = map[string]modFunc{
		"$set":         m.set,
		"$unset":       m.unset,
		"$inc":         m.inc,
		"$mul":         m.mul,
		"$push":        m.push,
		"$addToSet":    m.addToSet,
		"$pop":         m.pop,
		"$pull":        m.pull,
		"$max":         m.max,
		"$min":         m.min,
		"$bit":         m.bit,
		"$rename":      m.rename,
		"$currentDate": m.currentDate,
	}

	return m
}

// Modify implements [domain.Modifier]. An update made only of fields replaces
// the document, keeping its _id. Otherwise every operator is applied to a copy
// of obj.
func (m *Modifier) Modify(obj map[string]any, mod map[string]any) (map[string]any, error) {
	dollarFields := 0
	for k, v := range mod {
		if strings.HasPrefix(k, "$") {
			dollarFields++
		}
		if err := m.checkMod(obj, k, v); err != nil {
			return nil, err
		}
	}
	if dollarFields != 0 && dollarFields != len(mod) {
		return nil, ErrMixedOperators
	}

	if dollarFields == 0 {
		return m.replaceMod(obj, mod), nil
	}
	return m.dollarMod(obj, mod)
}

func (m *Modifier) checkMod(obj map[string]any, key string, value any) error {
	if key != "_id" {
		return nil
	}
	id, ok := obj["_id"]
	if !ok {
		return nil
	}
	c, err := m.comp.Compare(value, id)
	if err != nil {
		return err
	}
	if c != 0 {
		return domain.ErrCannotModifyID
	}
	return nil
}

func (m *Modifier) replaceMod(obj map[string]any, qry map[string]any) map[string]any {
	res := CopyDoc(qry)
	if id, ok := obj["_id"]; ok {
		res["_id"] = id
	}
	return res
}

func (m *Modifier) dollarMod(obj map[string]any, qry map[string]any) (map[string]any, error) {
	docCopy := CopyDoc(obj)

	for _, modName := range slices.Sorted(maps.Keys(qry)) {
		if modName == "$isolated" {
			continue
		}
		mod, ok := m.mods[modName]
		if !ok {
			return nil, ErrUnknownModifier{Name: modName}
		}
		args, ok := asMap(qry[modName])
		if !ok {
			return nil, ErrNonObject
		}

		for _, key := range slices.Sorted(maps.Keys(args)) {
			addr, err := m.fieldNavigator.GetAddress(key)
			if err != nil {
				return nil, err
			}
			if err := mod(docCopy, addr, args[key]); err != nil {
				return nil, fmt.Errorf("modifying field %q: %w", key, err)
			}
		}
	}

	if c, err := m.comp.Compare(obj["_id"], docCopy["_id"]); err != nil || c != 0 {
		return nil, domain.ErrCannotModifyID
	}

	return docCopy, nil
}

// CopyDoc returns a deep copy of doc. Ordered objects are copied as maps.
func CopyDoc(doc map[string]any) map[string]any {
	res := make(map[string]any, len(doc))
	for k, v := range doc {
		res[k] = CopyValue(v)
	}
	return res
}

// CopyValue returns a deep copy of v if it is an object or a list.
func CopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyDoc(t)
	case []any:
		res := make([]any, len(t))
		for n, item := range t {
			res[n] = CopyValue(item)
		}
		return res
	case structure.Object:
		res := make(map[string]any, t.Len())
		for k, item := range t.Iter() {
			res[k] = CopyValue(item)
		}
		return res
	default:
		return v
	}
}

func (m *Modifier) set(obj map[string]any, addr []string, arg any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		field.Set(CopyValue(arg))
	}
	return nil
}

func (m *Modifier) unset(obj map[string]any, addr []string, _ any) error {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			field.Unset()
		}
	}
	return nil
}

// arith applies op to the numeric value of every addressed field. Integers are
// kept as int64 while both operands are integers.
func (m *Modifier) arith(name string, obj map[string]any, addr []string, v any, zero any, op func(a, b int64) int64, fop func(a, b float64) float64) error {
	if _, ok := structure.AsFloat(v); !ok {
		return ErrModArgType{Mod: name, Want: "number", Actual: v}
	}
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, _ := field.Get()
		if value == nil {
			value = zero
		}
		a, aok := structure.AsFloat(value)
		if !aok {
			return ErrModFieldType{Mod: name, Want: "number", Actual: value}
		}
		if structure.IsInteger(value) && structure.IsInteger(v) {
			ai, _ := structure.AsInteger(value)
			bi, _ := structure.AsInteger(v)
			field.Set(op(ai, bi))
			continue
		}
		b, _ := structure.AsFloat(v)
		field.Set(fop(a, b))
	}
	return nil
}

func (m *Modifier) inc(obj map[string]any, addr []string, v any) error {
	return m.arith("$inc", obj, addr, v, int64(0),
		func(a, b int64) int64 { return a + b },
		func(a, b float64) float64 { return a + b },
	)
}

func (m *Modifier) mul(obj map[string]any, addr []string, v any) error {
	return m.arith("$mul", obj, addr, v, int64(0),
		func(a, b int64) int64 { return a * b },
		func(a, b float64) float64 { return a * b },
	)
}

func (m *Modifier) bit(obj map[string]any, addr []string, v any) error {
	ops, ok := asMap(v)
	if !ok {
		return ErrModArgType{Mod: "$bit", Want: "object", Actual: v}
	}
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, _ := field.Get()
		if value == nil {
			value = int64(0)
		}
		if !structure.IsInteger(value) {
			return ErrModFieldType{Mod: "$bit", Want: "integer", Actual: value}
		}
		res, _ := structure.AsInteger(value)
		for _, op := range slices.Sorted(maps.Keys(ops)) {
			arg, ok := structure.AsInteger(ops[op])
			if !ok || !structure.IsInteger(ops[op]) {
				return ErrModArgType{Mod: "$bit", Want: "integer", Actual: ops[op]}
			}
			switch op {
			case "and":
				res &= arg
			case "or":
				res |= arg
			case "xor":
				res ^= arg
			default:
				return ErrUnknownModifier{Name: "$bit." + op}
			}
		}
		field.Set(res)
	}
	return nil
}

func (m *Modifier) push(obj map[string]any, addr []string, v any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, _ := field.Get()
		if value == nil {
			value = []any{}
		}
		array, ok := value.([]any)
		if !ok {
			return ErrModFieldType{Mod: "$push", Want: "array", Actual: value}
		}

		values := append(array, CopyValue(v))
		if d, ok := asMap(v); ok && hasModifier(d) {
			if values, err = m.getPushItems(d, array); err != nil {
				return err
			}
		}

		field.Set(values)
	}
	return nil
}

func hasModifier(d map[string]any) bool {
	for _, k := range []string{"$each", "$slice", "$position", "$sort"} {
		if _, ok := d[k]; ok {
			return true
		}
	}
	return false
}

func (m *Modifier) getSliceProperties(d map[string]any) (*sliceProps, error) {
	res := &sliceProps{}

	var each any = []any{d}
	if e, ok := d["$each"]; ok {
		res.usedFields++
		res.hasEach = true
		each = e
	}

	seq, l, err := structure.Seq(each)
	if err != nil {
		return nil, ErrModArgType{Mod: "$each", Want: "array", Actual: each}
	}
	res.each = make([]any, 0, l)
	for item := range seq {
		res.each = append(res.each, CopyValue(item))
	}

	if raw, ok := d["$slice"]; ok {
		s, ok := structure.AsInteger(raw)
		if !ok {
			return nil, ErrModArgType{Mod: "$slice", Want: "integer", Actual: raw}
		}
		res.usedFields++
		res.hasSlice = true
		res.slice = int(s)
	}

	if raw, ok := d["$position"]; ok {
		p, ok := structure.AsInteger(raw)
		if !ok {
			return nil, ErrModArgType{Mod: "$position", Want: "integer", Actual: raw}
		}
		res.usedFields++
		res.hasPosition = true
		res.position = int(p)
	}

	if raw, ok := d["$sort"]; ok {
		res.usedFields++
		res.hasSort = true
		res.sort = raw
	}

	return res, nil
}

func (m *Modifier) getPushItems(d map[string]any, array []any) ([]any, error) {
	props, err := m.getSliceProperties(d)
	if err != nil {
		return nil, fmt.Errorf("getting properties for $push: %w", err)
	}

	if len(d) > props.usedFields || !props.hasEach {
		return nil, ErrInvalidPushField
	}

	pos := len(array)
	if props.hasPosition {
		if props.position < 0 {
			pos = max(len(array)+props.position, 0)
		} else {
			pos = min(props.position, len(array))
		}
	}
	res := slices.Insert(slices.Clone(array), pos, props.each...)

	if props.hasSort {
		if err := m.sortItems(res, props.sort); err != nil {
			return nil, err
		}
	}

	if !props.hasSlice {
		return res, nil
	}

	if props.slice >= 0 {
		return res[:min(props.slice, len(res))], nil
	}

	slice := max(props.slice, -len(res))

	return res[len(res)+slice:], nil
}

// sortItems sorts items in place. Spec is either 1 or -1, comparing whole
// items, or a mapping of dotted fields to directions.
func (m *Modifier) sortItems(items []any, spec any) error {
	type key struct {
		addr []string
		dir  int
	}
	var keys []key
	if dir, ok := structure.AsInteger(spec); ok {
		if dir != 1 && dir != -1 {
			return ErrModArgType{Mod: "$sort", Want: "1 or -1", Actual: spec}
		}
		keys = append(keys, key{dir: int(dir)})
	} else if d, ok := asMap(spec); ok && len(d) > 0 {
		for _, name := range slices.Sorted(maps.Keys(d)) {
			dir, ok := structure.AsInteger(d[name])
			if !ok || (dir != 1 && dir != -1) {
				return ErrModArgType{Mod: "$sort", Want: "1 or -1", Actual: d[name]}
			}
			addr, err := m.fieldNavigator.GetAddress(name)
			if err != nil {
				return err
			}
			keys = append(keys, key{addr: addr, dir: int(dir)})
		}
	} else {
		return ErrModArgType{Mod: "$sort", Want: "integer or object", Actual: spec}
	}

	var sortErr error
	slices.SortStableFunc(items, func(a, b any) int {
		for _, k := range keys {
			va, vb := a, b
			if k.addr != nil {
				va, vb = m.sortValue(a, k.addr), m.sortValue(b, k.addr)
			}
			c, err := m.comp.Compare(va, vb)
			if err != nil {
				sortErr = err
				return 0
			}
			if c != 0 {
				return c * k.dir
			}
		}
		return 0
	})
	return sortErr
}

func (m *Modifier) sortValue(item any, addr []string) any {
	if _, ok := asMap(item); !ok {
		return nil
	}
	fields, _, err := m.fieldNavigator.GetField(item, addr...)
	if err != nil || len(fields) != 1 {
		return nil
	}
	v, _ := fields[0].Get()
	return v
}

func (m *Modifier) addToSet(obj map[string]any, addr []string, v any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}

	for _, field := range fields {
		value, _ := field.Get()
		if value == nil {
			value = []any{}
		}
		array, ok := value.([]any)
		if !ok {
			return ErrModFieldType{Mod: "$addToSet", Want: "array", Actual: value}
		}
		values := []any{CopyValue(v)}
		if d, ok := asMap(v); ok {
			if _, hasEach := d["$each"]; hasEach {
				if len(d) > 1 {
					return ErrInvalidAddToSetField
				}
				props, err := m.getSliceProperties(d)
				if err != nil {
					return fmt.Errorf("getting properties for $addToSet: %w", err)
				}
				values = props.each
			}
		}

		for _, value := range values {
			found, err := structure.Contains(array, value, m.equal)
			if err != nil {
				return err
			}
			if !found {
				array = append(array, value)
			}
		}
		field.Set(array)
	}

	return nil
}

func (m *Modifier) equal(a, b any) (bool, error) {
	c, err := m.comp.Compare(a, b)
	return c == 0 && err == nil, err
}

func (m *Modifier) pop(obj map[string]any, addr []string, v any) error {
	num, ok := structure.AsInteger(v)
	if !ok {
		return ErrModArgType{Mod: "$pop", Want: "integer", Actual: v}
	}
	if num == 0 {
		return nil
	}

	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}

	for _, field := range fields {
		value, _ := field.Get()

		l, ok := value.([]any)
		if !ok {
			return ErrModFieldType{Mod: "$pop", Want: "array", Actual: value}
		}

		start, end := 0, max(0, len(l)-1)
		if num < 0 {
			start, end = min(1, len(l)), len(l)
		}

		field.Set(l[start:end])
	}
	return nil
}

func (m *Modifier) pull(obj map[string]any, addr []string, v any) error {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}

	query, isQuery := asMap(v)

	for _, field := range fields {
		value, defined := field.Get()
		if !defined {
			continue
		}
		l, ok := value.([]any)
		if !ok {
			return ErrModFieldType{Mod: "$pull", Want: "array", Actual: value}
		}

		res := make([]any, 0, len(l))
		for _, item := range l {
			var matches bool
			if isQuery && structure.IsObject(item) && !isOperatorQuery(query) {
				matches, err = m.matcher.Match(item, query)
			} else {
				matches, err = m.matcher.Match(map[string]any{"v": item}, map[string]any{"v": v})
			}
			if err != nil {
				return err
			}
			if !matches {
				res = append(res, item)
			}
		}
		field.Set(res)
	}
	return nil
}

func isOperatorQuery(q map[string]any) bool {
	for k := range q {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(q) > 0
}

func (m *Modifier) max(obj map[string]any, addr []string, v any) error {
	return m.extreme(obj, addr, v, func(c int) bool { return c < 0 })
}

func (m *Modifier) min(obj map[string]any, addr []string, v any) error {
	return m.extreme(obj, addr, v, func(c int) bool { return c > 0 })
}

// extreme replaces the field by v when replace returns true for the
// comparison of the current value with v. Missing values are always replaced.
func (m *Modifier) extreme(obj map[string]any, addr []string, v any, replace func(int) bool) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}

	for _, field := range fields {
		value, _ := field.Get()
		if value == nil {
			field.Set(v)
			continue
		}
		c, err := m.comp.Compare(value, v)
		if err != nil {
			return err
		}
		if replace(c) {
			field.Set(v)
		}
	}

	return nil
}

func (m *Modifier) rename(obj map[string]any, addr []string, v any) error {
	target, ok := v.(string)
	if !ok || target == "" {
		return ErrModArgType{Mod: "$rename", Want: "field name", Actual: v}
	}
	fields, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	if expanded {
		return ErrModFieldType{Mod: "$rename", Want: "non-array", Actual: []any{}}
	}
	value, defined := fields[0].Get()
	if !defined {
		return nil
	}
	fields[0].Unset()

	targetAddr, err := m.fieldNavigator.GetAddress(target)
	if err != nil {
		return err
	}
	return m.set(obj, targetAddr, value)
}

func (m *Modifier) currentDate(obj map[string]any, addr []string, v any) error {
	switch t := v.(type) {
	case bool:
		if !t {
			return nil
		}
	default:
		spec, ok := asMap(v)
		if !ok || spec["$type"] != "date" {
			return ErrModArgType{Mod: "$currentDate", Want: "true or {$type: \"date\"}", Actual: v}
		}
	}
	return m.set(obj, addr, m.timeGetter.GetTime())
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	if !structure.IsObject(v) {
		return nil, false
	}
	seq, _, err := structure.Seq2(v)
	if err != nil {
		return nil, false
	}
	return maps.Collect(seq), true
}
