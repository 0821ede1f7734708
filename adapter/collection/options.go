package collection

import (
	"github.com/vinicius-lino-figueiredo/godm/adapter/index"
	"github.com/vinicius-lino-figueiredo/godm/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/godm/adapter/query"
	"go.uber.org/zap"
)

type collectionOptions struct {
	name     string
	indexes  []*index.Index
	handlers []query.Option
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a [Collection].
type Option func(*collectionOptions)

// WithName sets the backend collection name.
func WithName(name string) Option {
	return func(o *collectionOptions) { o.name = name }
}

// WithIndexes declares indexes ensured when the collection is created.
func WithIndexes(indexes ...*index.Index) Option {
	return func(o *collectionOptions) { o.indexes = append(o.indexes, indexes...) }
}

// WithHandler registers an operator handler used when rewriting queries.
func WithHandler(op string, qc query.Context, h query.Handler) Option {
	return func(o *collectionOptions) {
		o.handlers = append(o.handlers, query.WithHandler(op, qc, h))
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *collectionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records operations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *collectionOptions) { o.metrics = m }
}
