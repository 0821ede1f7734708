// Package domain contains domain-specific interfaces and option types for
// godm.
//
// This package defines the contracts implemented by adapters (serializers,
// caches, backends, cursors, identity stores) as well as the functional
// options passed through collections into backends.
package domain

import (
	"context"
	"io"
	"os"
	"time"
)

// Serializer is the per-field policy attached to a schema. It validates
// values and converts them between their application and storage
// representations.
type Serializer interface {
	// Validate returns an error if value does not satisfy the serializer
	// constraints. The field name is used to build the error.
	Validate(ctx context.Context, field string, value any) error
	// Serialize converts an application value to a storage value. Path is
	// the dotted address being serialized, path[0] being the field itself.
	Serialize(ctx context.Context, value any, path ...string) (any, error)
	// Deserialize converts a storage value to an application value.
	Deserialize(ctx context.Context, value any) (any, error)
	// IsValidValue reports whether value is already in application form.
	IsValidValue(value any) bool
	// Default returns the declared default and whether there is one.
	Default() (any, bool)
	// Required reports whether the field must be present.
	Required() bool
	// Kind names the serializer type. It is used to namespace cached
	// values.
	Kind() string
}

// FormFielder is implemented by serializers that can describe themselves to
// a presentation layer.
type FormFielder interface {
	// FormField returns the field descriptor with the given overrides
	// applied.
	FormField(overrides ...FormOption) FieldDescriptor
}

// Cache memoizes deserialized values by serializer kind and raw value.
type Cache interface {
	// Get returns the cached value for raw, if any.
	Get(kind string, raw any) (any, bool)
	// Put stores value as the deserialized form of raw.
	Put(kind string, raw any, value any)
}

// CacheObserver receives cache hits and misses.
type CacheObserver interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

// Hasher generates hash values for arbitrary storage values.
type Hasher interface {
	// Hash generates a hash value for the given data.
	Hash(any) (uint64, error)
}

// Decoder converts between different data representations.
type Decoder interface {
	// Decode copies source into target, which must be a pointer.
	Decode(source any, target any) error
}

// Comparer provides ordering and comparison operations for storage values.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values can be compared.
	Comparable(any, any) bool
}

// IdentityStore resolves references to entities of type T by a key field.
type IdentityStore[T any] interface {
	// FindBy returns the entity whose field equals value. It must return
	// an error wrapping [ErrNotFound] if there is none.
	FindBy(ctx context.Context, field string, value any) (T, error)
	// Key extracts the value of field from entity.
	Key(entity T, field string) (any, error)
}

// Database hands out backend collection handles by name.
type Database interface {
	// Collection returns the handle of the named collection.
	Collection(name string) Backend
}

// Backend is a storage collection handle. It receives documents that are
// already in storage form and does not interpret options it does not know.
type Backend interface {
	// Insert stores docs and returns their identifiers in order.
	Insert(ctx context.Context, docs []map[string]any, options ...InsertOption) ([]any, error)
	// Save upserts doc by its _id and returns the identifier.
	Save(ctx context.Context, doc map[string]any, options ...SaveOption) (any, error)
	// Update applies doc to documents matching spec.
	Update(ctx context.Context, spec map[string]any, doc map[string]any, options ...UpdateOption) (UpdateResult, error)
	// Remove deletes documents matching spec. A nil spec removes every
	// document, but keeps indexes.
	Remove(ctx context.Context, spec map[string]any, options ...RemoveOption) (int64, error)
	// Find returns a cursor over documents matching spec. Fields is an
	// optional projection.
	Find(ctx context.Context, spec map[string]any, fields any, options ...FindOption) (Cursor, error)
	// EnsureIndex creates an index if it is absent and returns its name.
	// Calls repeated within cacheTime may be answered without reaching
	// the store.
	EnsureIndex(ctx context.Context, keys []IndexKey, cacheTime time.Duration, options ...IndexOption) (string, error)
}

// Cursor iterates over raw storage documents.
type Cursor interface {
	// Next advances the cursor, returning true if a document is available.
	Next(ctx context.Context) bool
	// Decode copies the current document into target.
	Decode(target any) error
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases cursor resources.
	Close(ctx context.Context) error
}

// GetSetter reads and writes a single addressed value inside a storage
// document.
type GetSetter interface {
	// Get returns the value and whether it is defined.
	Get() (value any, defined bool)
	// Set replaces the value.
	Set(value any)
	// Unset removes the value.
	Unset()
}

// FieldNavigator resolves dot notation addresses in storage documents.
type FieldNavigator interface {
	// GetAddress splits a dotted field name.
	GetAddress(field string) ([]string, error)
	// SplitFields splits a comma separated list of fields.
	SplitFields(fields string) ([]string, error)
	// GetField returns the values addressed by addr. Expanded reports
	// whether a list was traversed, yielding one value per element.
	GetField(obj any, addr ...string) (fields []GetSetter, expanded bool, err error)
	// EnsureField is like GetField, but creates missing values.
	EnsureField(obj any, addr ...string) ([]GetSetter, error)
}

// Matcher tests storage documents against a query.
type Matcher interface {
	// Match reports whether obj satisfies query.
	Match(obj any, query map[string]any) (bool, error)
}

// Modifier applies update documents.
type Modifier interface {
	// Modify returns a modified copy of obj.
	Modify(obj map[string]any, mod map[string]any) (map[string]any, error)
}

// Projector selects the fields returned by a query.
type Projector interface {
	// Project returns a projected copy of doc.
	Project(doc map[string]any, proj map[string]uint8) (map[string]any, error)
}

// IDGenerator generates document identifiers.
type IDGenerator interface {
	// GenerateID returns a new unique identifier.
	GenerateID() (string, error)
}

// TimeGetter returns the current time.
type TimeGetter interface {
	GetTime() time.Time
}

// Storage provides the file operations used to persist datafiles.
type Storage interface {
	// Exists reports whether the file exists.
	Exists(filename string) (bool, error)
	// Remove deletes the file.
	Remove(filename string) error
	// AppendFile appends data to the file, creating it if needed.
	AppendFile(filename string, mode os.FileMode, data []byte) (int, error)
	// ReadFileStream opens the file for reading.
	ReadFileStream(filename string, mode os.FileMode) (io.ReadCloser, error)
	// CrashSafeWriteFileLines replaces the file content by lines, so that
	// a crash leaves either the old or the new content.
	CrashSafeWriteFileLines(filename string, lines [][]byte, dirMode os.FileMode, fileMode os.FileMode) error
	// EnsureParentDirectoryExists creates the parent directory of the
	// file.
	EnsureParentDirectoryExists(filename string, mode os.FileMode) error
	// EnsureDatafileIntegrity recovers from a crash that happened while
	// the file was being replaced.
	EnsureDatafileIntegrity(filename string, mode os.FileMode) error
}

// Persistence keeps the content of a collection in a datafile. Documents are
// stored in append-only fashion and the file is compacted on load and on
// demand.
type Persistence interface {
	// LoadDatabase reads the datafile, compacts it and returns the live
	// documents and index declarations.
	LoadDatabase(ctx context.Context) ([]map[string]any, []IndexRecord, error)
	// PersistNewState appends the given records to the datafile.
	PersistNewState(ctx context.Context, records ...map[string]any) error
	// PersistCachedDatabase rewrites the datafile with the given state.
	PersistCachedDatabase(ctx context.Context, docs []map[string]any, indexes []IndexRecord) error
	// DropDatabase removes the datafile.
	DropDatabase(ctx context.Context) error
}
