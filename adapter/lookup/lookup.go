// Package lookup contains identity stores used by reference serializers.
package lookup

import (
	"context"
	"fmt"

	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

// Finder is implemented by collections.
type Finder interface {
	FindOne(ctx context.Context, specOrID any, options ...domain.FindOption) (*document.Document, error)
}

// CollectionStore implements [domain.IdentityStore] over the documents of a
// collection.
type CollectionStore struct {
	finder Finder
}

// NewCollectionStore returns an identity store reading from f.
func NewCollectionStore(f Finder) *CollectionStore {
	return &CollectionStore{finder: f}
}

// FindBy implements [domain.IdentityStore]. The lookup value is serialized by
// the collection, like any other query.
func (s *CollectionStore) FindBy(ctx context.Context, field string, value any) (*document.Document, error) {
	doc, err := s.finder.FindOne(ctx, map[string]any{field: value})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: no document with %s %v", domain.ErrNotFound, field, value)
	}
	return doc, nil
}

// Key implements [domain.IdentityStore]. It returns the stored value of field.
func (s *CollectionStore) Key(entity *document.Document, field string) (any, error) {
	if entity == nil {
		return nil, domain.ErrType{Want: "document", Actual: entity}
	}
	v, ok := entity.Raw(field)
	if !ok {
		return nil, domain.ErrNoSuchKey{Key: field}
	}
	return v, nil
}
