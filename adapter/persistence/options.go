package persistence

import (
	"os"

	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.uber.org/zap"
)

// Option configures persistence behavior through the functional options
// pattern.
type Option func(*Persistence)

// WithFilename sets the datafile. Without one nothing is written.
func WithFilename(f string) Option {
	return func(p *Persistence) {
		p.filename = f
	}
}

// WithCorruptAlertThreshold sets the share of unreadable lines tolerated
// when loading a datafile.
func WithCorruptAlertThreshold(c float64) Option {
	return func(p *Persistence) {
		p.corruptAlertThreshold = c
	}
}

// WithFileMode sets the permissions of created datafiles.
func WithFileMode(f os.FileMode) Option {
	return func(p *Persistence) {
		p.fileMode = f
	}
}

// WithDirMode sets the permissions of created directories.
func WithDirMode(d os.FileMode) Option {
	return func(p *Persistence) {
		p.dirMode = d
	}
}

// WithStorage sets the storage implementation for file operations.
func WithStorage(s domain.Storage) Option {
	return func(p *Persistence) {
		p.storage = s
	}
}

// WithDecoder sets the decoder used to read index declarations.
func WithDecoder(d domain.Decoder) Option {
	return func(p *Persistence) {
		p.decoder = d
	}
}

// WithComparer sets the comparer used to match document ids.
func WithComparer(c domain.Comparer) Option {
	return func(p *Persistence) {
		p.comparer = c
	}
}

// WithHasher sets the hasher used to bucket document ids.
func WithHasher(h domain.Hasher) Option {
	return func(p *Persistence) {
		p.hasher = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Persistence) {
		p.logger = l
	}
}
