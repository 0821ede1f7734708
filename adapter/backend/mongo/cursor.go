package mongo

import (
	"context"

	"github.com/vinicius-lino-figueiredo/godm/adapter/bsonconv"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Cursor implements [domain.Cursor] over a driver cursor.
type Cursor struct {
	cur     *mongo.Cursor
	decoder domain.Decoder
	current bool
	closed  bool
}

func newCursor(cur *mongo.Cursor, decoder domain.Decoder) *Cursor {
	return &Cursor{cur: cur, decoder: decoder}
}

// Next implements [domain.Cursor].
func (c *Cursor) Next(ctx context.Context) bool {
	if c.closed {
		return false
	}
	c.current = c.cur.Next(ctx)
	return c.current
}

// Decode implements [domain.Cursor]. Documents are normalized into plain
// maps before being copied into target.
func (c *Cursor) Decode(target any) error {
	if c.closed {
		return domain.ErrCursorClosed
	}
	if !c.current {
		return domain.ErrDecodeBeforeNext
	}
	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		return err
	}
	doc := bsonconv.NormalizeDoc(raw)
	if m, ok := target.(*map[string]any); ok && m != nil {
		*m = doc
		return nil
	}
	return c.decoder.Decode(doc, target)
}

// Err implements [domain.Cursor].
func (c *Cursor) Err() error {
	return c.cur.Err()
}

// Close implements [domain.Cursor].
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed, c.current = true, false
	return c.cur.Close(ctx)
}
