// Package memory contains an in-memory [domain.Database]. Collections are
// queried with MongoDB operators, keep unique and sparse indexes and can be
// persisted to append-only datafiles.
package memory

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/godm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/godm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/godm/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/godm/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/godm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/godm/adapter/persistence"
	"github.com/vinicius-lino-figueiredo/godm/adapter/projector"
	"github.com/vinicius-lino-figueiredo/godm/adapter/querier"
	"github.com/vinicius-lino-figueiredo/godm/adapter/storage"
	"github.com/vinicius-lino-figueiredo/godm/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"github.com/vinicius-lino-figueiredo/godm/pkg/ctxsync"
	"go.uber.org/zap"
)

// DatafileExtension is appended to collection names to build datafile names.
const DatafileExtension = ".db"

// Database implements [domain.Database].
type Database struct {
	mu          sync.Mutex
	collections map[string]*Collection

	dir                   string
	corruptAlertThreshold float64
	storage               domain.Storage
	comparer              domain.Comparer
	navigator             domain.FieldNavigator
	idGenerator           domain.IDGenerator
	timeGetter            domain.TimeGetter
	decoder               domain.Decoder
	logger                *zap.Logger
}

// NewDatabase returns a new in-memory database.
func NewDatabase(options ...Option) *Database {
	d := Database{
		collections:           make(map[string]*Collection),
		corruptAlertThreshold: 0.1,
		storage:               storage.NewStorage(),
		comparer:              comparer.NewComparer(),
		navigator:             fieldnavigator.NewFieldNavigator(),
		idGenerator:           idgenerator.NewIDGenerator(),
		timeGetter:            timegetter.NewTimeGetter(),
		decoder:               decoder.NewDecoder(),
		logger:                zap.NewNop(),
	}
	for _, option := range options {
		option(&d)
	}
	return &d
}

// Collection implements [domain.Database]. Handles are created on first use
// and shared afterwards. A persisted collection reads its datafile on its
// first operation.
func (d *Database) Collection(name string) domain.Backend {
	return d.collection(name)
}

func (d *Database) collection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.collections[name]; ok {
		return c
	}

	c := d.newCollection(name)
	d.collections[name] = c
	return c
}

// Names returns the names of the collections handed out so far.
func (d *Database) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	return names
}

func (d *Database) newCollection(name string) *Collection {
	match := matcher.NewMatcher(
		matcher.WithComparer(d.comparer),
		matcher.WithFieldNavigator(d.navigator),
	)
	logger := d.logger.With(zap.String("collection", name))

	c := &Collection{
		name:        name,
		mu:          ctxsync.NewMutex(),
		indexes:     make(map[string]*index),
		ensured:     make(map[string]time.Time),
		comparer:    d.comparer,
		navigator:   d.navigator,
		idGenerator: d.idGenerator,
		timeGetter:  d.timeGetter,
		decoder:     d.decoder,
		matcher:     match,
		modifier: modifier.NewModifier(
			modifier.WithComparer(d.comparer),
			modifier.WithFieldNavigator(d.navigator),
			modifier.WithMatcher(match),
			modifier.WithTimeGetter(d.timeGetter),
		),
		querier: querier.NewQuerier(
			querier.WithComparer(d.comparer),
			querier.WithFieldNavigator(d.navigator),
			querier.WithProjector(projector.NewProjector(projector.WithFieldNavigator(d.navigator))),
		),
		logger: logger,
	}

	var filename string
	if d.dir != "" {
		filename = filepath.Join(d.dir, name+DatafileExtension)
	}
	c.persistence, c.persistenceErr = persistence.NewPersistence(
		persistence.WithFilename(filename),
		persistence.WithCorruptAlertThreshold(d.corruptAlertThreshold),
		persistence.WithStorage(d.storage),
		persistence.WithComparer(d.comparer),
		persistence.WithDecoder(d.decoder),
		persistence.WithLogger(logger),
	)
	return c
}
