package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by identity stores when no entity matches
	// the lookup.
	ErrNotFound = errors.New("not found")
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed [Cursor].
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrDecodeBeforeNext is returned when calling [Cursor.Decode] before
	// calling [Cursor.Next].
	ErrDecodeBeforeNext = errors.New("called Decode before Next")
	// ErrConstraintViolated is returned by backends when a write is blocked
	// by an index constraint.
	ErrConstraintViolated = errors.New("unique constraint violated")
	// ErrTargetNil is returned when a nil decoding target is given.
	ErrTargetNil = errors.New("target interface is nil")
	// ErrNonPointer is returned when a non-pointer decoding target is
	// given.
	ErrNonPointer = errors.New("target must be a pointer")
	// ErrNoSchema is returned when a collection is created without a
	// schema.
	ErrNoSchema = errors.New("collection has no schema")
	// ErrCannotModifyID is returned when an update changes the _id of a
	// stored document.
	ErrCannotModifyID = errors.New("cannot modify _id")
)

// ErrValidation is returned when a value fails the constraints declared for a
// field.
type ErrValidation struct {
	Field  string
	Reason string
}

// Error implements [error].
func (e ErrValidation) Error() string {
	return fmt.Sprintf("invalid value for %q: %s", e.Field, e.Reason)
}

// ErrType is returned when an argument has a structurally wrong type.
type ErrType struct {
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrType) Error() string {
	return fmt.Sprintf("expected %s, got %T", e.Want, e.Actual)
}

// ErrNotImplemented is returned by serializers that did not override a
// required method.
type ErrNotImplemented struct {
	Kind   string
	Method string
}

// Error implements [error].
func (e ErrNotImplemented) Error() string {
	return fmt.Sprintf("%s does not implement %s", e.Kind, e.Method)
}

// ErrNoSuchKey is returned when reading or deleting a key that is not set in
// a document.
type ErrNoSuchKey struct {
	Key string
}

// Error implements [error].
func (e ErrNoSuchKey) Error() string {
	return fmt.Sprintf("no key called %q", e.Key)
}

// ErrFieldName represents an invalid field name, usually for when a schema is
// declared with a reserved prefix or forbidden character.
type ErrFieldName struct {
	Field  string
	Reason string
}

// Error implements [error].
func (e ErrFieldName) Error() string {
	return fmt.Sprintf("invalid field name %q: %s", e.Field, e.Reason)
}

// ErrDecode is returned by [Decoder.Decode] to easily wrap third party decoding
// errors.
type ErrDecode struct {
	Source any
	Target any
}

// Error implements [error].
func (e ErrDecode) Error() string {
	return fmt.Sprintf("cannot decode %T into %T", e.Source, e.Target)
}

// ErrCannotCompare is returned when [Comparer.Compare] is called with two
// values that cannot be compared.
type ErrCannotCompare struct {
	A any
	B any
}

// Error implements [error].
func (e ErrCannotCompare) Error() string {
	return fmt.Sprintf("cannot compare %v and %v", e.A, e.B)
}

// ErrUnknownContext is returned when a query is prepared for a context other
// than query or update.
type ErrUnknownContext struct {
	Context any
}

// Error implements [error].
func (e ErrUnknownContext) Error() string {
	return fmt.Sprintf("unknown query context %v", e.Context)
}

// ErrCorruptFiles is returned when the share of unreadable lines in a
// datafile is above the configured threshold.
type ErrCorruptFiles struct {
	CorruptionRate        float64
	CorruptItems          int
	DataLength            int
	CorruptAlertThreshold float64
}

// Error implements [error].
func (e ErrCorruptFiles) Error() string {
	return fmt.Sprintf(
		"%.1f%% of the data file is corrupt (%d of %d lines), more than the %.1f%% threshold",
		e.CorruptionRate*100, e.CorruptItems, e.DataLength, e.CorruptAlertThreshold*100,
	)
}

// ErrDatafileName is returned when a datafile name cannot be used.
type ErrDatafileName struct {
	Name   string
	Reason string
}

// Error implements [error].
func (e ErrDatafileName) Error() string {
	return fmt.Sprintf("invalid datafile name %q: %s", e.Name, e.Reason)
}
