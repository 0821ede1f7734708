package memory

import (
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.uber.org/zap"
)

// Option configures a [Database] through the functional options pattern.
type Option func(*Database)

// WithDirectory keeps each collection in a datafile named after it inside
// dir. Without a directory collections live in memory only.
func WithDirectory(dir string) Option {
	return func(d *Database) {
		d.dir = dir
	}
}

// WithCorruptAlertThreshold sets the share of unreadable datafile lines
// tolerated when a collection is loaded.
func WithCorruptAlertThreshold(t float64) Option {
	return func(d *Database) {
		d.corruptAlertThreshold = t
	}
}

// WithStorage sets the storage used by datafiles.
func WithStorage(s domain.Storage) Option {
	return func(d *Database) {
		d.storage = s
	}
}

// WithComparer sets the comparer used for matching, sorting and indexing.
func WithComparer(c domain.Comparer) Option {
	return func(d *Database) {
		d.comparer = c
	}
}

// WithFieldNavigator sets the field navigator used to address dotted paths.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(d *Database) {
		d.navigator = f
	}
}

// WithIDGenerator sets the generator of missing _id values.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(d *Database) {
		d.idGenerator = g
	}
}

// WithTimeGetter sets the clock used for index caching, TTL expiration and
// $currentDate.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(d *Database) {
		d.timeGetter = t
	}
}

// WithDecoder sets the decoder used by cursors.
func WithDecoder(dec domain.Decoder) Option {
	return func(d *Database) {
		d.decoder = dec
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Database) {
		d.logger = l
	}
}
