// Package cursor contains the cursor returned by collections. It wraps a
// backend cursor and materializes each raw document as a
// [document.Document] of the collection schema.
package cursor

import (
	"context"
	"iter"

	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Cursor iterates over the documents of a find result. Documents are
// converted one at a time, when the cursor advances.
type Cursor struct {
	src    domain.Cursor
	schema *document.Schema
	doc    *document.Document
	err    error
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCursor returns a cursor over src bound to schema.
func NewCursor(src domain.Cursor, schema *document.Schema) *Cursor {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Cursor{
		src:    src,
		schema: schema,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Next advances the cursor. It returns false when there are no more
// documents or an error happened, which is then reported by [Cursor.Err].
func (c *Cursor) Next(ctx context.Context) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	if c.err != nil || !c.src.Next(ctx) {
		c.doc = nil
		return false
	}

	var raw map[string]any
	if err := c.src.Decode(&raw); err != nil {
		c.err, c.doc = err, nil
		return false
	}

	doc, err := c.schema.New(nil)
	if err == nil {
		doc, err = doc.Deserialize(ctx, raw, document.WithValidate(false))
	}
	if err != nil {
		c.err, c.doc = err, nil
		return false
	}
	c.doc = doc
	return true
}

// Document returns the current document.
func (c *Cursor) Document() (*document.Document, error) {
	if err := context.Cause(c.ctx); err != nil {
		return nil, err
	}
	if c.doc == nil {
		return nil, domain.ErrDecodeBeforeNext
	}
	return c.doc, nil
}

// Decode copies the application form of the current document into target.
func (c *Cursor) Decode(ctx context.Context, target any) error {
	doc, err := c.Document()
	if err != nil {
		return err
	}
	return doc.Decode(ctx, target)
}

// Err returns the first error found while iterating, including those of the
// backend cursor.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.src.Err()
}

// Close releases the backend cursor. Closing twice returns
// [domain.ErrCursorClosed].
func (c *Cursor) Close(ctx context.Context) error {
	if err := context.Cause(c.ctx); err != nil {
		return err
	}
	c.cancel(domain.ErrCursorClosed)
	c.doc = nil
	return c.src.Close(ctx)
}

// All reads every remaining document and closes the cursor.
func (c *Cursor) All(ctx context.Context) ([]*document.Document, error) {
	var res []*document.Document
	for doc, err := range c.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, nil
}

// Iter iterates over the remaining documents and closes the cursor when done.
// Iteration stops at the first error.
func (c *Cursor) Iter(ctx context.Context) iter.Seq2[*document.Document, error] {
	return func(yield func(*document.Document, error) bool) {
		defer func() { _ = c.Close(ctx) }()
		for c.Next(ctx) {
			if !yield(c.doc, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(nil, err)
		}
	}
}
