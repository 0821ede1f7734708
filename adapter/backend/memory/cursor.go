package memory

import (
	"context"

	"github.com/vinicius-lino-figueiredo/godm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Cursor implements [domain.Cursor] over a snapshot of query results.
type Cursor struct {
	docs    []map[string]any
	pos     int
	decoder domain.Decoder
	closed  bool
	err     error
}

func newCursor(docs []map[string]any, decoder domain.Decoder) *Cursor {
	return &Cursor{docs: docs, pos: -1, decoder: decoder}
}

// Next implements [domain.Cursor].
func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed {
		c.err = domain.ErrCursorClosed
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.err != nil || c.pos >= len(c.docs)-1 {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

// Decode implements [domain.Cursor]. Decoding into a *map[string]any gives a
// deep copy of the stored document.
func (c *Cursor) Decode(target any) error {
	if c.closed {
		return domain.ErrCursorClosed
	}
	if c.pos < 0 || c.pos >= len(c.docs) {
		return domain.ErrDecodeBeforeNext
	}
	if m, ok := target.(*map[string]any); ok && m != nil {
		*m = modifier.CopyDoc(c.docs[c.pos])
		return nil
	}
	return c.decoder.Decode(c.docs[c.pos], target)
}

// Err implements [domain.Cursor].
func (c *Cursor) Err() error {
	return c.err
}

// Close implements [domain.Cursor].
func (c *Cursor) Close(context.Context) error {
	c.closed = true
	c.docs = nil
	return nil
}
