// Package bsonconv converts values decoded by the mongo driver into the plain
// Go forms used by the rest of godm.
package bsonconv

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize converts BSON containers into map[string]any and []any, BSON
// dates into UTC [time.Time] and 32-bit integers into int64. Other values are
// returned unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case bson.A:
		return normalizeList(t)
	case []any:
		return normalizeList(t)
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case int32:
		return int64(t)
	default:
		return v
	}
}

// NormalizeDoc is [Normalize] for documents.
func NormalizeDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return normalizeMap(doc)
}

func normalizeMap(m map[string]any) map[string]any {
	res := make(map[string]any, len(m))
	for k, v := range m {
		res[k] = Normalize(v)
	}
	return res
}

func normalizeList(l []any) []any {
	res := make([]any, len(l))
	for n, v := range l {
		res[n] = Normalize(v)
	}
	return res
}
