package domain

import (
	"fmt"
	"strings"
)

// Sort represents an ordered list of fields which should be used to sort query
// results, applied in sequence.
type Sort = []SortName

// SortName represents a single field and the order which should be used to sort
// it. A positive Order value means ascending order and a negative value means
// descending order.
type SortName struct {
	Key   string
	Order int64
}

// IndexKey is one component of an index specification.
type IndexKey struct {
	Field string
	// Direction is 1 for ascending and -1 for descending. Special index
	// types ("2d", "text", ...) are kept as strings.
	Direction any
}

// UpdateResult describes the outcome of [Backend.Update].
type UpdateResult struct {
	Matched  int64
	Modified int64
	// UpsertedID is set when the update inserted a new document.
	UpsertedID any
}

// FieldDescriptor is the presentation-layer description of a schema field.
type FieldDescriptor struct {
	Name     string
	Kind     string
	Verbose  string
	Required bool
	Default  any
	HelpText string
	Extra    map[string]any
}

// IndexRecord is the persisted declaration of an index.
type IndexRecord struct {
	Name        string
	Keys        []IndexKey
	Unique      bool
	Sparse      bool
	ExpireAfter *int32
}

// DefaultIndexName builds the name MongoDB gives to an index declared
// without one, e.g. "name_1_age_-1".
func DefaultIndexName(keys []IndexKey) string {
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k.Field, fmt.Sprint(k.Direction))
	}
	return strings.Join(parts, "_")
}
