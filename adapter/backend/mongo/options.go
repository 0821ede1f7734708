package mongo

import (
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.uber.org/zap"
)

// Option configures a [Client] through the functional options pattern.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTimeGetter sets the clock used for client aging and index caching.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(c *Client) {
		c.timeGetter = t
	}
}

// WithDecoder sets the decoder used by cursors for non-map targets.
func WithDecoder(d domain.Decoder) Option {
	return func(c *Client) {
		c.decoder = d
	}
}
