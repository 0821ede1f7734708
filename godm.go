// Package godm maps Go values to documents kept in MongoDB-like databases.
//
// A [Schema] declares the fields of a kind of document and the [Serializer]
// that converts each field between its application form and its storage
// form. A [Collection] binds a schema to a backend collection, so documents,
// queries and updates are serialized before reaching the backend and results
// come back as [Document] values.
//
// Two backends are available: an in-memory database, optionally persisted to
// datafiles, created with [NewMemoryDatabase], and MongoDB, reached with
// [DialMongo].
package godm

import (
	"context"

	"github.com/vinicius-lino-figueiredo/godm/adapter/backend/memory"
	"github.com/vinicius-lino-figueiredo/godm/adapter/backend/mongo"
	"github.com/vinicius-lino-figueiredo/godm/adapter/cache"
	"github.com/vinicius-lino-figueiredo/godm/adapter/collection"
	"github.com/vinicius-lino-figueiredo/godm/adapter/cursor"
	"github.com/vinicius-lino-figueiredo/godm/adapter/document"
	"github.com/vinicius-lino-figueiredo/godm/adapter/index"
	"github.com/vinicius-lino-figueiredo/godm/adapter/lookup"
	"github.com/vinicius-lino-figueiredo/godm/adapter/serializer"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

var (
	// ErrNotFound is returned by identity stores when a referenced
	// document does not exist.
	ErrNotFound = domain.ErrNotFound
	// ErrConstraintViolated is returned by backends when a write is blocked
	// by a unique index.
	ErrConstraintViolated = domain.ErrConstraintViolated
	// ErrCursorClosed is returned when using a closed [Cursor].
	ErrCursorClosed = domain.ErrCursorClosed
	// ErrDecodeBeforeNext is returned when decoding a [Cursor] before
	// calling Next.
	ErrDecodeBeforeNext = domain.ErrDecodeBeforeNext
	// ErrNoSchema is returned by [NewCollection] when no schema is given.
	ErrNoSchema = domain.ErrNoSchema
	// ErrCannotModifyID is returned when an update changes a document _id.
	ErrCannotModifyID = domain.ErrCannotModifyID
)

// ErrValidation is returned when a value fails the constraints declared for a
// field.
type ErrValidation = domain.ErrValidation

// ErrType is returned when a value has a structurally wrong type.
type ErrType = domain.ErrType

// ErrFieldName represents an invalid field name, usually for when a schema is
// declared with a reserved prefix or forbidden character.
type ErrFieldName = domain.ErrFieldName

// ErrNoSuchKey is returned when reading or deleting a key that is not set in
// a [Document].
type ErrNoSuchKey = domain.ErrNoSuchKey

// ErrCorruptFiles is returned when the in-memory backend cannot read too
// many lines of a datafile.
type ErrCorruptFiles = domain.ErrCorruptFiles

// ErrDatafileName is returned when a datafile name ends with the suffix
// reserved for crash-safe writes.
type ErrDatafileName = domain.ErrDatafileName

type (
	// Schema is the immutable field registry of a kind of document.
	Schema = document.Schema
	// Fields maps field names to their serializers.
	Fields = document.Fields
	// Document is a mapping bound to a [Schema].
	Document = document.Document
	// Collection binds a [Schema] to a backend collection.
	Collection = collection.Collection
	// Cursor lazily yields the documents of a find.
	Cursor = cursor.Cursor
	// Index is an index declaration.
	Index = index.Index
	// Serializer converts a field between application and storage form.
	Serializer = domain.Serializer
	// Database hands out backend collections.
	Database = domain.Database
	// IndexKey is one component of an index declaration.
	IndexKey = domain.IndexKey
	// Sort is an ordered list of sort keys.
	Sort = domain.Sort
	// SortName is one sort key.
	SortName = domain.SortName
	// UpdateResult describes the outcome of an update.
	UpdateResult = domain.UpdateResult
)

// NewSchema declares a kind of document. See [document.NewSchema].
func NewSchema(name string, fields Fields, options ...document.Option) (*Schema, error) {
	return document.NewSchema(name, fields, options...)
}

// NewCollection binds schema to a collection of db and ensures its declared
// indexes. See [collection.NewCollection].
func NewCollection(ctx context.Context, db Database, schema *Schema, options ...collection.Option) (*Collection, error) {
	return collection.NewCollection(ctx, db, schema, options...)
}

// NewIndex declares an index over keys, which can be a field name, a list of
// field names or a list of [IndexKey].
func NewIndex(keys any, options ...index.Option) (*Index, error) {
	return index.NewIndex(keys, options...)
}

// NewCache returns a bounded cache of deserialized values, to be shared by
// schemas through [document.WithCache].
func NewCache(options ...cache.Option) (*cache.Cache, error) {
	return cache.NewCache(options...)
}

// NewMemoryDatabase returns an in-memory database. Collections are kept in
// datafiles when [memory.WithDirectory] is given.
func NewMemoryDatabase(options ...memory.Option) *memory.Database {
	return memory.NewDatabase(options...)
}

// DialMongo connects to the MongoDB database described by conf.
func DialMongo(ctx context.Context, conf *mongo.Config, options ...mongo.Option) (*mongo.Client, error) {
	return mongo.Dial(ctx, conf, options...)
}

// String returns a text field.
func String(options ...serializer.StringOption) *serializer.String {
	return serializer.NewString(options...)
}

// Integer returns a 64-bit integer field.
func Integer(options ...serializer.IntegerOption) *serializer.Integer {
	return serializer.NewInteger(options...)
}

// Float returns a 64-bit float field.
func Float(options ...serializer.FloatOption) *serializer.Float {
	return serializer.NewFloat(options...)
}

// List returns a list field whose elements go through inner, which may be
// nil.
func List(inner Serializer, options ...serializer.Option) *serializer.List {
	return serializer.NewList(inner, options...)
}

// Embedded returns a field holding a nested document of schema.
func Embedded(schema *Schema, options ...serializer.Option) *serializer.Embedded {
	return serializer.NewEmbedded(schema, options...)
}

// Reference returns a field that stores the key of a document of c and
// loads the whole document back on read.
func Reference(c *Collection, options ...serializer.ReferenceOption) *serializer.Reference[*Document] {
	return serializer.NewReference[*Document](lookup.NewCollectionStore(c), options...)
}

// Get reads key from d as a T.
func Get[T any](ctx context.Context, d *Document, key string) (T, error) {
	return document.ValueOf[T](ctx, d, key)
}
