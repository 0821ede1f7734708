// Package query rewrites query and update documents so that every value bound
// to a schema field is serialized by that field before reaching a backend.
package query

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
)

// Context tells whether a document is a query filter or an update.
type Context int

const (
	// ContextQuery is used for filters (find, update spec, remove).
	ContextQuery Context = iota
	// ContextUpdate is used for update documents.
	ContextUpdate
)

// String implements [fmt.Stringer].
func (c Context) String() string {
	switch c {
	case ContextQuery:
		return "query"
	case ContextUpdate:
		return "update"
	}
	return fmt.Sprintf("Context(%d)", int(c))
}

// ItemSerializer serializes a single field value. It is implemented by
// document schemas.
type ItemSerializer interface {
	SerializeItem(ctx context.Context, key string, value any, path ...string) (map[string]any, error)
}

// Handler rewrites the payload of an operator. Path holds the field path the
// operator is bound to, and is empty for top level operators.
type Handler func(ctx context.Context, rw *Rewriter, qc Context, op string, value any, path []string) (any, error)

type handlerKey struct {
	op string
	qc Context
}

// Option configures a [Rewriter].
type Option func(*Rewriter)

// WithHandler registers h for op in the given context, replacing any built-in
// handler.
func WithHandler(op string, qc Context, h Handler) Option {
	return func(rw *Rewriter) { rw.handlers[handlerKey{op: op, qc: qc}] = h }
}

// Rewriter walks query and update documents and serializes their leaf values.
type Rewriter struct {
	schema   ItemSerializer
	handlers map[handlerKey]Handler
}

// NewRewriter returns a rewriter bound to schema.
func NewRewriter(schema ItemSerializer, options ...Option) *Rewriter {
	rw := &Rewriter{
		schema:   schema,
		handlers: builtins(),
	}
	for _, option := range options {
		option(rw)
	}
	return rw
}

// Prepare rewrites q. A nil query is returned as nil. Keys starting with '$'
// are handled by the operator registry, other keys name a field, possibly
// through a dotted path.
func (rw *Rewriter) Prepare(ctx context.Context, q any, qc Context) (map[string]any, error) {
	if qc != ContextQuery && qc != ContextUpdate {
		return nil, domain.ErrUnknownContext{Context: qc}
	}
	if q == nil {
		return nil, nil
	}
	if !structure.IsObject(q) {
		return nil, domain.ErrType{Want: "mapping", Actual: q}
	}
	return rw.Rewrite(ctx, qc, q, nil)
}

// Rewrite rewrites every pair of the mapping doc. Field keys are appended to
// path. Pairs are visited in key order, unless doc keeps its own order, and
// later pairs overwrite earlier ones.
func (rw *Rewriter) Rewrite(ctx context.Context, qc Context, doc any, path []string) (map[string]any, error) {
	keys, values, err := pairs(doc)
	if err != nil {
		return nil, err
	}

	res := make(map[string]any, len(keys))
	for n, key := range keys {
		v, err := rw.rewritePair(ctx, qc, key, values[n], path)
		if err != nil {
			return nil, err
		}
		res[key] = v
	}
	return res, nil
}

func (rw *Rewriter) rewritePair(ctx context.Context, qc Context, key string, value any, path []string) (any, error) {
	if strings.HasPrefix(key, "$") {
		h, ok := rw.handlers[handlerKey{op: key, qc: qc}]
		if !ok {
			h = Default
		}
		return h(ctx, rw, qc, key, value, path)
	}

	fieldPath := append(slices.Clone(path), strings.Split(key, ".")...)
	if hasOperators(value) {
		return rw.Rewrite(ctx, qc, value, fieldPath)
	}
	return rw.Leaf(ctx, value, fieldPath)
}

// Leaf serializes value through the field named by path[0]. Values not bound
// to any field are returned unchanged.
func (rw *Rewriter) Leaf(ctx context.Context, value any, path []string) (any, error) {
	if len(path) == 0 || rw.schema == nil {
		return value, nil
	}
	item, err := rw.schema.SerializeItem(ctx, path[0], value, path...)
	if err != nil {
		return nil, err
	}
	return item[path[0]], nil
}

// Default is the handler used by operators with no registered handler.
// Mappings are rewritten pair by pair, lists element by element, and other
// values are serialized as leaves of path. Inside a field, a mapping without
// operators is a leaf.
func Default(ctx context.Context, rw *Rewriter, qc Context, _ string, value any, path []string) (any, error) {
	if structure.IsObject(value) {
		if len(path) == 0 || hasOperators(value) {
			return rw.Rewrite(ctx, qc, value, path)
		}
		return rw.Leaf(ctx, value, path)
	}

	if structure.IsList(value) {
		seq, l, err := structure.Seq(value)
		if err != nil {
			return nil, err
		}
		res := make([]any, 0, l)
		for item := range seq {
			v, err := Default(ctx, rw, qc, "", item, path)
			if err != nil {
				return nil, err
			}
			res = append(res, v)
		}
		return res, nil
	}

	return rw.Leaf(ctx, value, path)
}

// Passthrough returns the operator payload unchanged.
func Passthrough(_ context.Context, _ *Rewriter, _ Context, _ string, value any, _ []string) (any, error) {
	return value, nil
}

// Fields rewrites a mapping whose keys are fields relative to path, even
// when it holds no operators. It serves operators such as $elemMatch, whose
// payload is a partial document.
func Fields(ctx context.Context, rw *Rewriter, qc Context, op string, value any, path []string) (any, error) {
	if !structure.IsObject(value) {
		return Default(ctx, rw, qc, op, value, path)
	}
	return rw.Rewrite(ctx, qc, value, path)
}

// Bit serializes the operands of a $bit update. The payload has the form
// {field: {and|or|xor: value}}.
func Bit(ctx context.Context, rw *Rewriter, _ Context, op string, value any, path []string) (any, error) {
	keys, values, err := pairs(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := make(map[string]any, len(keys))
	for n, field := range keys {
		fieldPath := append(slices.Clone(path), strings.Split(field, ".")...)
		ops, operands, err := pairs(values[n])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item := make(map[string]any, len(ops))
		for m, bitOp := range ops {
			if item[bitOp], err = rw.Leaf(ctx, operands[m], fieldPath); err != nil {
				return nil, err
			}
		}
		res[field] = item
	}
	return res, nil
}

func builtins() map[handlerKey]Handler {
	h := map[handlerKey]Handler{
		{op: "$bit", qc: ContextUpdate}:      Bit,
		{op: "$elemMatch", qc: ContextQuery}: Fields,
	}

	passQuery := []string{
		"$exists", "$type", "$size", "$regex", "$options",
		"$mod", "$where", "$comment",
	}
	for _, op := range passQuery {
		h[handlerKey{op: op, qc: ContextQuery}] = Passthrough
	}

	// $isolated only changes how the write is executed; $slice, $position and
	// $sort shape a $push and never hold field values
	passUpdate := []string{
		"$pop", "$isolated", "$unset", "$rename", "$currentDate",
		"$slice", "$position", "$sort",
	}
	for _, op := range passUpdate {
		h[handlerKey{op: op, qc: ContextUpdate}] = Passthrough
	}
	return h
}

func hasOperators(value any) bool {
	if !structure.IsObject(value) {
		return false
	}
	seq, _, err := structure.Seq2(value)
	if err != nil {
		return false
	}
	for k := range seq {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func pairs(doc any) ([]string, []any, error) {
	seq, l, err := structure.Seq2(doc)
	if err != nil {
		return nil, nil, err
	}

	if _, ordered := doc.(structure.Object); ordered {
		keys := make([]string, 0, l)
		values := make([]any, 0, l)
		for k, v := range seq {
			keys = append(keys, k)
			values = append(values, v)
		}
		return keys, values, nil
	}

	m := maps.Collect(seq)
	keys := slices.Sorted(maps.Keys(m))
	values := make([]any, len(keys))
	for n, k := range keys {
		values[n] = m[k]
	}
	return keys, values, nil
}
