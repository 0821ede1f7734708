// Package matcher contains the default implementation of [domain.Matcher]
// using basic mongo-like match API over storage documents.
package matcher

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/godm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

var (
	// ErrMixedOperators is returned when user provides a query with mixed
	// use of normal fields and operators.
	ErrMixedOperators = errors.New("cannot mix operators and normal fields")
)

// ErrUnknownOperator is returned when user provides an unknown dollar field.
type ErrUnknownOperator struct {
	Operator string
}

// Error implements [error].
func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

// ErrUnknownComparison is returned when an unknown compare field is provided.
type ErrUnknownComparison struct {
	Comparison string
}

// Error implements [error].
func (e ErrUnknownComparison) Error() string {
	return fmt.Sprintf("unknown comparison %q", e.Comparison)
}

// ErrCompArgType is returned when a comparison operator is called with an
// argument of invalid type.
type ErrCompArgType struct {
	Comp   string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrCompArgType) Error() string {
	return fmt.Sprintf(
		"%s value should be of type %s, got %T",
		e.Comp, e.Want, e.Actual,
	)
}

// Matcher implements [domain.Matcher].
type Matcher struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// NewMatcher returns a new implementation of domain.Matcher.
func NewMatcher(options ...Option) domain.Matcher {
	m := &Matcher{
		comparer:       comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Match implements [domain.Matcher]. A nil query matches every document.
func (m *Matcher) Match(obj any, query map[string]any) (bool, error) {
	lo, err := m.makeQuery(query)
	if err != nil {
		return false, err
	}
	return m.matchLogicOp(obj, lo)
}

func (m *Matcher) makeQuery(query map[string]any) (LogicOp, error) {
	lo := LogicOp{Type: And}
	for _, key := range slices.Sorted(maps.Keys(query)) {
		value := query[key]
		switch key {
		case "$and":
			sub, err := m.makeLogicOp(And, key, value)
			if err != nil {
				return lo, err
			}
			lo.Sub = append(lo.Sub, sub)
		case "$or":
			sub, err := m.makeLogicOp(Or, key, value)
			if err != nil {
				return lo, err
			}
			lo.Sub = append(lo.Sub, sub)
		case "$nor":
			sub, err := m.makeLogicOp(Nor, key, value)
			if err != nil {
				return lo, err
			}
			lo.Sub = append(lo.Sub, sub)
		case "$not":
			mapping, ok := asMap(value)
			if !ok {
				return lo, ErrCompArgType{Comp: key, Want: "object", Actual: value}
			}
			sub, err := m.makeQuery(mapping)
			if err != nil {
				return lo, err
			}
			lo.Sub = append(lo.Sub, LogicOp{Type: Not, Sub: []LogicOp{sub}})
		case "$where":
			where, ok := value.(func(any) (bool, error))
			if !ok {
				return lo, ErrCompArgType{Comp: key, Want: "func(any) (bool, error)", Actual: value}
			}
			lo.Sub = append(lo.Sub, LogicOp{Type: Where, Where: where})
		case "$comment", "$isolated":
		default:
			if strings.HasPrefix(key, "$") {
				return lo, ErrUnknownOperator{Operator: key}
			}
			rule, err := m.makeFieldRule(key, value)
			if err != nil {
				return lo, err
			}
			lo.Rules = append(lo.Rules, rule)
		}
	}
	return lo, nil
}

func (m *Matcher) makeLogicOp(typ uint8, name string, v any) (LogicOp, error) {
	lo := LogicOp{Type: typ}
	items, l, err := structure.Seq(v)
	if err != nil {
		return lo, fmt.Errorf("%w: %w", ErrCompArgType{Comp: name, Want: "list", Actual: v}, err)
	}
	lo.Sub = make([]LogicOp, 0, l)
	for item := range items {
		mapping, ok := asMap(item)
		if !ok {
			return lo, ErrCompArgType{Comp: name, Want: "list of objects", Actual: v}
		}
		sub, err := m.makeQuery(mapping)
		if err != nil {
			return lo, err
		}
		lo.Sub = append(lo.Sub, sub)
	}
	return lo, nil
}

func (m *Matcher) makeFieldRule(field string, obj any) (FieldRule, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return FieldRule{}, err
	}
	conds, err := m.makeConds(obj)
	if err != nil {
		return FieldRule{}, err
	}
	return FieldRule{Addr: addr, Conds: conds}, nil
}

// makeConds compiles the value of a field. Objects made only of operators are
// compiled operator by operator, anything else is an equality.
func (m *Matcher) makeConds(obj any) ([]Cond, error) {
	if r, ok := obj.(*regexp.Regexp); ok {
		return []Cond{{Op: Regex, Val: r}}, nil
	}

	mapping, ok := asMap(obj)
	if !ok || len(mapping) == 0 {
		return []Cond{{Op: Eq, Val: obj}}, nil
	}

	dollar, err := countOperators(mapping)
	if err != nil {
		return nil, err
	}
	if dollar == 0 {
		return []Cond{{Op: Eq, Val: mapping}}, nil
	}

	conds := make([]Cond, 0, len(mapping))
	for _, key := range slices.Sorted(maps.Keys(mapping)) {
		if key == "$options" {
			if _, ok := mapping["$regex"]; !ok {
				return nil, ErrCompArgType{Comp: "$options", Want: "$regex sibling", Actual: mapping[key]}
			}
			continue
		}
		cond, err := m.makeCond(key, mapping[key], mapping)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (m *Matcher) makeCond(k string, v any, siblings map[string]any) (Cond, error) {
	switch k {
	case "$eq":
		return Cond{Op: Eq, Val: v}, nil
	case "$ne":
		return Cond{Op: Ne, Val: v}, nil
	case "$lt":
		return Cond{Op: Lt, Val: v}, nil
	case "$lte":
		return Cond{Op: Lte, Val: v}, nil
	case "$gt":
		return Cond{Op: Gt, Val: v}, nil
	case "$gte":
		return Cond{Op: Gte, Val: v}, nil
	case "$in", "$nin", "$all":
		return m.makeListCond(k, v)
	case "$exists":
		return m.makeExists(v)
	case "$size":
		i, ok := structure.AsInteger(v)
		if !ok {
			return Cond{}, ErrCompArgType{Comp: k, Want: "integer", Actual: v}
		}
		return Cond{Op: Size, Val: int(i)}, nil
	case "$regex":
		return m.makeRegex(v, siblings["$options"])
	case "$elemMatch":
		return m.makeElemMatch(v)
	case "$not":
		conds, err := m.makeConds(v)
		if err != nil {
			return Cond{}, err
		}
		return Cond{Op: NotOp, Val: conds}, nil
	case "$mod":
		return m.makeMod(v)
	case "$type":
		name, ok := v.(string)
		if !ok {
			return Cond{}, ErrCompArgType{Comp: k, Want: "string", Actual: v}
		}
		return Cond{Op: Type, Val: name}, nil
	default:
		return Cond{}, ErrUnknownComparison{Comparison: k}
	}
}

func (m *Matcher) makeListCond(k string, v any) (Cond, error) {
	seq, l, err := structure.Seq(v)
	if err != nil {
		return Cond{}, ErrCompArgType{Comp: k, Want: "list", Actual: v}
	}
	list := slices.AppendSeq(make([]any, 0, l), seq)
	op := In
	switch k {
	case "$nin":
		op = Nin
	case "$all":
		op = All
	}
	return Cond{Op: op, Val: list}, nil
}

func (m *Matcher) makeExists(v any) (Cond, error) {
	switch t := v.(type) {
	case nil:
		return Cond{Op: Exists, Val: false}, nil
	case bool:
		return Cond{Op: Exists, Val: t}, nil
	}
	if f, ok := structure.AsFloat(v); ok {
		return Cond{Op: Exists, Val: f != 0}, nil
	}
	return Cond{Op: Exists, Val: true}, nil
}

func (m *Matcher) makeRegex(v any, options any) (Cond, error) {
	switch t := v.(type) {
	case *regexp.Regexp:
		if options == nil {
			return Cond{Op: Regex, Val: t}, nil
		}
		v = t.String()
	case string:
	default:
		return Cond{}, ErrCompArgType{Comp: "$regex", Want: "regex", Actual: v}
	}

	expr := v.(string)
	if options != nil {
		opts, ok := options.(string)
		if !ok {
			return Cond{}, ErrCompArgType{Comp: "$options", Want: "string", Actual: options}
		}
		if flags := regexFlags(opts); flags != "" {
			expr = "(?" + flags + ")" + expr
		}
	}
	r, err := regexp.Compile(expr)
	if err != nil {
		return Cond{}, fmt.Errorf("%w: %w", ErrCompArgType{Comp: "$regex", Want: "regex", Actual: v}, err)
	}
	return Cond{Op: Regex, Val: r}, nil
}

// regexFlags keeps the options supported by RE2.
func regexFlags(opts string) string {
	var b strings.Builder
	for _, c := range opts {
		switch c {
		case 'i', 'm', 's':
			b.WriteRune(c)
		}
	}
	return b.String()
}

func (m *Matcher) makeElemMatch(v any) (Cond, error) {
	mapping, ok := asMap(v)
	if !ok {
		return Cond{}, ErrCompArgType{Comp: "$elemMatch", Want: "object", Actual: v}
	}
	dollar, err := countOperators(mapping)
	if err != nil {
		return Cond{}, err
	}
	if dollar > 0 && !isLogical(mapping) {
		conds, err := m.makeConds(mapping)
		if err != nil {
			return Cond{}, err
		}
		return Cond{Op: ElemMatch, Val: elemQuery{conds: conds}}, nil
	}
	qry, err := m.makeQuery(mapping)
	if err != nil {
		return Cond{}, err
	}
	return Cond{Op: ElemMatch, Val: elemQuery{query: &qry}}, nil
}

func (m *Matcher) makeMod(v any) (Cond, error) {
	seq, l, err := structure.Seq(v)
	if err != nil || l != 2 {
		return Cond{}, ErrCompArgType{Comp: "$mod", Want: "[divisor, remainder]", Actual: v}
	}
	args := slices.Collect(seq)
	divisor, ok := structure.AsInteger(args[0])
	remainder, ok2 := structure.AsInteger(args[1])
	if !ok || !ok2 || divisor == 0 {
		return Cond{}, ErrCompArgType{Comp: "$mod", Want: "[divisor, remainder]", Actual: v}
	}
	return Cond{Op: Mod, Val: modArg{divisor: divisor, remainder: remainder}}, nil
}

func (m *Matcher) matchLogicOp(obj any, lo LogicOp) (bool, error) {
	switch lo.Type {
	case And:
		for _, rule := range lo.Rules {
			if matches, err := m.matchRule(obj, rule); err != nil || !matches {
				return false, err
			}
		}
		for _, sub := range lo.Sub {
			if matches, err := m.matchLogicOp(obj, sub); err != nil || !matches {
				return false, err
			}
		}
		return true, nil
	case Or, Nor:
		found := false
		for _, sub := range lo.Sub {
			matches, err := m.matchLogicOp(obj, sub)
			if err != nil {
				return false, err
			}
			if matches {
				found = true
				break
			}
		}
		return found == (lo.Type == Or), nil
	case Not:
		matches, err := m.matchLogicOp(obj, lo.Sub[0])
		return !matches && err == nil, err
	case Where:
		return lo.Where(obj)
	default:
		return false, nil
	}
}

func (m *Matcher) matchRule(obj any, rule FieldRule) (bool, error) {
	fields, expanded, err := m.fieldNavigator.GetField(obj, rule.Addr...)
	if err != nil {
		return false, err
	}
	values := make([]any, 0, len(fields))
	for _, field := range fields {
		if v, ok := field.Get(); ok {
			values = append(values, v)
		}
	}
	return m.matchConds(values, expanded, rule.Conds)
}

func (m *Matcher) matchConds(values []any, expanded bool, conds []Cond) (bool, error) {
	for _, cond := range conds {
		if matches, err := m.matchCond(values, expanded, cond); err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) matchCond(values []any, expanded bool, cond Cond) (bool, error) {
	switch cond.Op {
	case Eq:
		return m.eq(values, cond.Val)
	case Ne:
		matches, err := m.eq(values, cond.Val)
		return !matches && err == nil, err
	case Lt:
		return m.order(values, cond.Val, func(c int) bool { return c < 0 })
	case Lte:
		return m.order(values, cond.Val, func(c int) bool { return c <= 0 })
	case Gt:
		return m.order(values, cond.Val, func(c int) bool { return c > 0 })
	case Gte:
		return m.order(values, cond.Val, func(c int) bool { return c >= 0 })
	case In:
		return m.in(values, cond.Val.([]any))
	case Nin:
		matches, err := m.in(values, cond.Val.([]any))
		return !matches && err == nil, err
	case All:
		return m.all(values, cond.Val.([]any))
	case Exists:
		return (len(values) > 0) == cond.Val.(bool), nil
	case Size:
		return m.size(values, expanded, cond.Val.(int)), nil
	case ElemMatch:
		return m.elemMatch(values, cond.Val.(elemQuery))
	case Regex:
		return m.regex(values, cond.Val.(*regexp.Regexp)), nil
	case NotOp:
		matches, err := m.matchConds(values, expanded, cond.Val.([]Cond))
		return !matches && err == nil, err
	case Mod:
		return m.mod(values, cond.Val.(modArg)), nil
	case Type:
		return m.hasType(values, cond.Val.(string)), nil
	default:
		return false, nil
	}
}

// candidates returns the values and the items of the values that are lists.
func candidates(values []any) []any {
	res := make([]any, 0, len(values))
	for _, value := range values {
		res = append(res, value)
		if arr, ok := value.([]any); ok {
			res = append(res, arr...)
		}
	}
	return res
}

func (m *Matcher) equal(a, b any) (bool, error) {
	if r, ok := b.(*regexp.Regexp); ok {
		s, ok := a.(string)
		return ok && r.MatchString(s), nil
	}
	c, err := m.comparer.Compare(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// eq compares undefined fields as nil.
func (m *Matcher) eq(values []any, val any) (bool, error) {
	if len(values) == 0 {
		return val == nil, nil
	}
	return structure.Contains(candidates(values), val, m.equal)
}

func (m *Matcher) order(values []any, val any, ok func(int) bool) (bool, error) {
	for _, item := range candidates(values) {
		if !m.comparer.Comparable(item, val) {
			continue
		}
		c, err := m.comparer.Compare(item, val)
		if err != nil {
			return false, err
		}
		if ok(c) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) in(values []any, list []any) (bool, error) {
	for _, item := range list {
		if matches, err := m.eq(values, item); err != nil || matches {
			return matches, err
		}
	}
	return false, nil
}

func (m *Matcher) all(values []any, list []any) (bool, error) {
	if len(list) == 0 || len(values) == 0 {
		return false, nil
	}
	for _, item := range list {
		if matches, err := m.eq(values, item); err != nil || !matches {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) size(values []any, expanded bool, size int) bool {
	if expanded {
		return len(values) == size
	}
	for _, value := range values {
		if arr, ok := value.([]any); ok && len(arr) == size {
			return true
		}
	}
	return false
}

func (m *Matcher) elemMatch(values []any, q elemQuery) (bool, error) {
	for _, value := range values {
		arr, ok := value.([]any)
		if !ok {
			continue
		}
		for _, elem := range arr {
			var matches bool
			var err error
			if q.query != nil {
				if !structure.IsObject(elem) {
					continue
				}
				matches, err = m.matchLogicOp(elem, *q.query)
			} else {
				matches, err = m.matchConds([]any{elem}, false, q.conds)
			}
			if err != nil || matches {
				return matches, err
			}
		}
	}
	return false, nil
}

func (m *Matcher) regex(values []any, r *regexp.Regexp) bool {
	for _, item := range candidates(values) {
		if s, ok := item.(string); ok && r.MatchString(s) {
			return true
		}
	}
	return false
}

func (m *Matcher) mod(values []any, arg modArg) bool {
	for _, item := range candidates(values) {
		f, ok := structure.AsFloat(item)
		if !ok {
			continue
		}
		if int64(f)%arg.divisor == arg.remainder {
			return true
		}
	}
	return false
}

func (m *Matcher) hasType(values []any, name string) bool {
	for _, value := range values {
		t := typeName(value)
		if t == name || name == "number" && (t == "double" || t == "long") {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float32, float64:
		return "double"
	case time.Time:
		return "date"
	case []byte:
		return "binData"
	case []any:
		return "array"
	case *regexp.Regexp:
		return "regex"
	}
	if structure.IsInteger(v) {
		return "long"
	}
	if structure.IsObject(v) {
		return "object"
	}
	return ""
}

func countOperators(mapping map[string]any) (int, error) {
	dollar := 0
	for k := range mapping {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	if dollar > 0 && dollar != len(mapping) {
		return dollar, ErrMixedOperators
	}
	return dollar, nil
}

func isLogical(mapping map[string]any) bool {
	for k := range mapping {
		switch k {
		case "$and", "$or", "$nor", "$where":
			return true
		}
	}
	return false
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
