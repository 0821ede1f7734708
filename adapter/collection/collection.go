// Package collection binds a document schema to a backend collection. Every
// document, query and update crosses the schema serialization boundary on its
// way to the backend.
package collection

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/adapter/cursor"
	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/adapter/index"
	"github.com/vinicius-lino-figueiredo/godm/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/godm/adapter/query"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/structure"
	"go.uber.org/zap"
)

// Collection implements the typed access to a backend collection.
type Collection struct {
	name     string
	schema   *document.Schema
	backend  domain.Backend
	rewriter *query.Rewriter
	indexes  []*index.Index
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewCollection binds schema to the collection of db with the configured
// name, which defaults to the lower-cased schema name. Declared indexes are
// ensured before returning.
func NewCollection(ctx context.Context, db domain.Database, schema *document.Schema, options ...Option) (*Collection, error) {
	if schema == nil {
		return nil, domain.ErrNoSchema
	}
	if db == nil {
		return nil, domain.ErrType{Want: "database", Actual: db}
	}

	opts := collectionOptions{
		name:   strings.ToLower(schema.Name()),
		logger: zap.NewNop(),
	}
	for _, option := range options {
		option(&opts)
	}

	c := &Collection{
		name:     opts.name,
		schema:   schema,
		backend:  db.Collection(opts.name),
		rewriter: query.NewRewriter(schema, opts.handlers...),
		indexes:  opts.indexes,
		logger:   opts.logger.With(zap.String("collection", opts.name)),
		metrics:  opts.metrics,
	}

	if _, err := c.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the backend collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns the bound schema.
func (c *Collection) Schema() *document.Schema { return c.schema }

// Backend returns the backend collection handle.
func (c *Collection) Backend() domain.Backend { return c.backend }

// Indexes returns the declared indexes.
func (c *Collection) Indexes() []*index.Index { return c.indexes }

// ValidateDocument returns doc if it is a document of the bound schema, or a
// new document holding doc if it is a mapping.
func (c *Collection) ValidateDocument(doc any) (*document.Document, error) {
	if d, ok := doc.(*document.Document); ok && d != nil {
		if d.Schema() != c.schema {
			return nil, domain.ErrType{Want: "document of " + c.schema.Name(), Actual: doc}
		}
		return d, nil
	}
	if structure.IsObject(doc) {
		return c.schema.New(doc)
	}
	return nil, domain.ErrType{Want: "document or mapping", Actual: doc}
}

// PrepareData converts one document, one mapping or a list of them to their
// storage form. Documents are validated and their save hook runs first.
func (c *Collection) PrepareData(ctx context.Context, docOrDocs any) ([]map[string]any, error) {
	_, data, err := c.prepare(ctx, docOrDocs)
	return data, err
}

// PrepareQuery serializes the values of a query or update document.
func (c *Collection) PrepareQuery(ctx context.Context, q any, qc query.Context) (map[string]any, error) {
	return c.rewriter.Prepare(ctx, q, qc)
}

func (c *Collection) prepare(ctx context.Context, docOrDocs any) ([]*document.Document, []map[string]any, error) {
	var items []any
	switch {
	case isDocument(docOrDocs):
		items = []any{docOrDocs}
	case structure.IsList(docOrDocs):
		seq, l, err := structure.Seq(docOrDocs)
		if err != nil {
			return nil, nil, err
		}
		items = make([]any, 0, l)
		for item := range seq {
			items = append(items, item)
		}
	default:
		return nil, nil, domain.ErrType{Want: "document, mapping or list of them", Actual: docOrDocs}
	}

	docs := make([]*document.Document, len(items))
	data := make([]map[string]any, len(items))
	for n, item := range items {
		doc, err := c.ValidateDocument(item)
		if err != nil {
			return nil, nil, err
		}
		if err := doc.BeforeSave(ctx); err != nil {
			return nil, nil, err
		}
		if data[n], err = doc.Serialize(ctx); err != nil {
			return nil, nil, err
		}
		docs[n] = doc
	}
	return docs, data, nil
}

// Insert stores one or more documents and returns their identifiers. Documents
// of the bound schema receive the identifier assigned by the backend.
func (c *Collection) Insert(ctx context.Context, docOrDocs any, options ...domain.InsertOption) (ids []any, err error) {
	defer c.observe("insert", time.Now(), &err)

	docs, data, err := c.prepare(ctx, docOrDocs)
	if err != nil {
		return nil, err
	}

	ids, err = c.backend.Insert(ctx, data, options...)
	if err != nil {
		return nil, err
	}

	for n, id := range ids {
		if n < len(docs) && !docs[n].Has("_id") {
			if err := docs[n].Set(ctx, "_id", id); err != nil {
				return nil, err
			}
		}
	}
	c.logger.Debug("inserted documents", zap.Int("count", len(ids)))
	return ids, nil
}

// Save upserts doc by its identifier. Documents of the bound schema run their
// save hook and are serialized, other mappings are sent unchanged.
func (c *Collection) Save(ctx context.Context, doc any, options ...domain.SaveOption) (id any, err error) {
	defer c.observe("save", time.Now(), &err)

	d, ok := doc.(*document.Document)
	if !ok || d == nil || d.Schema() != c.schema {
		m, err := toMap(doc)
		if err != nil {
			return nil, err
		}
		return c.backend.Save(ctx, m, options...)
	}

	if err := d.BeforeSave(ctx); err != nil {
		return nil, err
	}
	data, err := d.Serialize(ctx)
	if err != nil {
		return nil, err
	}

	if id, err = c.backend.Save(ctx, data, options...); err != nil {
		return nil, err
	}
	if !d.Has("_id") {
		if err := d.Set(ctx, "_id", id); err != nil {
			return nil, err
		}
	}
	return id, nil
}

// Update rewrites spec as a query and doc as an update, then applies them.
func (c *Collection) Update(ctx context.Context, spec any, doc any, options ...domain.UpdateOption) (res domain.UpdateResult, err error) {
	defer c.observe("update", time.Now(), &err)
	return c.update(ctx, spec, doc, options...)
}

// UpdateAll is [Collection.Update] applied to every matching document.
func (c *Collection) UpdateAll(ctx context.Context, spec any, doc any, options ...domain.UpdateOption) (res domain.UpdateResult, err error) {
	defer c.observe("update_all", time.Now(), &err)
	options = slices.Concat(options, []domain.UpdateOption{domain.WithUpdateMulti(true)})
	return c.update(ctx, spec, doc, options...)
}

func (c *Collection) update(ctx context.Context, spec any, doc any, options ...domain.UpdateOption) (domain.UpdateResult, error) {
	q, err := c.rewriter.Prepare(ctx, spec, query.ContextQuery)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	u, err := c.rewriter.Prepare(ctx, doc, query.ContextUpdate)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return c.backend.Update(ctx, q, u, options...)
}

// Remove deletes the documents matching specOrID. A nil value removes every
// document but keeps the collection and its indexes. Values that are not
// mappings are identifiers. The spec is sent unchanged.
func (c *Collection) Remove(ctx context.Context, specOrID any, options ...domain.RemoveOption) (n int64, err error) {
	defer c.observe("remove", time.Now(), &err)

	spec, err := idSpec(specOrID)
	if err != nil {
		return 0, err
	}
	return c.backend.Remove(ctx, spec, options...)
}

// Find returns a lazy cursor over the documents matching spec. Fields is an
// optional projection handed to the backend.
func (c *Collection) Find(ctx context.Context, spec any, fields any, options ...domain.FindOption) (cur *cursor.Cursor, err error) {
	defer c.observe("find", time.Now(), &err)
	return c.find(ctx, spec, fields, options...)
}

func (c *Collection) find(ctx context.Context, spec any, fields any, options ...domain.FindOption) (*cursor.Cursor, error) {
	var q map[string]any
	if spec != nil {
		var err error
		if q, err = c.rewriter.Prepare(ctx, spec, query.ContextQuery); err != nil {
			return nil, err
		}
		if len(q) == 0 {
			q = nil
		}
	}

	src, err := c.backend.Find(ctx, q, fields, options...)
	if err != nil {
		return nil, err
	}
	return cursor.NewCursor(src, c.schema), nil
}

// FindOne returns the first document matching specOrID, or nil if none does.
func (c *Collection) FindOne(ctx context.Context, specOrID any, options ...domain.FindOption) (doc *document.Document, err error) {
	defer c.observe("find_one", time.Now(), &err)

	spec, err := idSpec(specOrID)
	if err != nil {
		return nil, err
	}

	options = slices.Concat(options, []domain.FindOption{domain.WithFindLimit(1)})
	cur, err := c.find(ctx, spec, nil, options...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	if !cur.Next(ctx) {
		return nil, cur.Err()
	}
	return cur.Document()
}

// EnsureIndexes ensures every declared index and returns their names.
func (c *Collection) EnsureIndexes(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(c.indexes))
	for _, idx := range c.indexes {
		name, err := idx.Ensure(ctx, c)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("ensured index", zap.String("index", name))
		names = append(names, name)
	}
	return names, nil
}

func (c *Collection) observe(operation string, start time.Time, err *error) {
	if *err != nil {
		c.logger.Debug("operation failed",
			zap.String("operation", operation),
			zap.Error(*err),
		)
	}
	if c.metrics != nil {
		c.metrics.ObserveOperation(c.name, operation, start, *err)
	}
}

func isDocument(v any) bool {
	if _, ok := v.(*document.Document); ok {
		return true
	}
	return structure.IsObject(v)
}

func idSpec(specOrID any) (map[string]any, error) {
	if specOrID == nil {
		return nil, nil
	}
	if isDocument(specOrID) {
		return toMap(specOrID)
	}
	return map[string]any{"_id": specOrID}, nil
}

func toMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	seq, _, err := structure.Seq2(v)
	if err != nil {
		return nil, domain.ErrType{Want: "mapping", Actual: v}
	}
	return maps.Collect(seq), nil
}
