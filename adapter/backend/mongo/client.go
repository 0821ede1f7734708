// Package mongo implements [domain.Database] on MongoDB through the official
// driver. Documents handed to the driver are already in storage form, and
// results are normalized from BSON into plain maps and lists.
package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vinicius-lino-figueiredo/godm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/godm/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Client is a connection to one MongoDB database. It implements
// [domain.Database].
type Client struct {
	config   *Config
	client   *mongo.Client
	database *mongo.Database
	dialedAt time.Time

	timeGetter domain.TimeGetter
	decoder    domain.Decoder
	logger     *zap.Logger

	mu          sync.Mutex
	collections map[string]*Collection
	ensured     map[string]time.Time
}

func newClient(conf *Config, options ...Option) *Client {
	c := &Client{
		config:      conf,
		timeGetter:  timegetter.NewTimeGetter(),
		decoder:     decoder.NewDecoder(),
		logger:      zap.NewNop(),
		collections: make(map[string]*Collection),
		ensured:     make(map[string]time.Time),
	}
	for _, option := range options {
		option(c)
	}
	c.dialedAt = c.timeGetter.GetTime()
	return c
}

// Dial connects to the configured MongoDB and checks the connection with a
// ping.
func Dial(ctx context.Context, conf *Config, options ...Option) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	c := newClient(conf, options...)

	ctx, cancel := context.WithTimeout(ctx, conf.ParseConnectionTimeout())
	defer cancel()

	clientOptions := mongoOptions(conf)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, conf.ParsePingTimeout())
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	c.client = client
	c.database = client.Database(conf.Database)

	c.logger.Info("mongo connected",
		zap.String("database", conf.Database),
		zap.Uint64("maxPoolSize", conf.MaxPoolSize),
	)
	return c, nil
}

func mongoOptions(conf *Config) *options.ClientOptions {
	return options.Client().
		ApplyURI(conf.ConnectionURI).
		SetMaxPoolSize(conf.MaxPoolSize).
		SetConnectTimeout(conf.ParseConnectionTimeout())
}

// Collection implements [domain.Database].
func (c *Client) Collection(name string) domain.Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	if coll, ok := c.collections[name]; ok {
		return coll
	}
	var mc *mongo.Collection
	if c.database != nil {
		mc = c.database.Collection(name)
	}
	coll := &Collection{name: name, coll: mc, client: c}
	c.collections[name] = coll
	return coll
}

// IsExpired reports whether the client is older than the configured max
// age.
func (c *Client) IsExpired() bool {
	maxAge := c.config.ParseMaxAge()
	return maxAge > 0 && c.timeGetter.GetTime().Sub(c.dialedAt) >= maxAge
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}
	c.logger.Info("mongo disconnected", zap.String("database", c.config.Database))
	return nil
}

// shouldEnsure reports whether an index must be sent to the server, which is
// not the case when it was ensured less than cacheTime ago.
func (c *Client) shouldEnsure(key string, cacheTime time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.ensured[key]
	return !ok || c.timeGetter.GetTime().Sub(last) >= cacheTime
}

func (c *Client) markEnsured(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensured[key] = c.timeGetter.GetTime()
}

// Connector hands out a shared [Client], dialing a new one when the current
// client expires.
type Connector struct {
	config  *Config
	options []Option
	dial    func(context.Context, *Config, ...Option) (*Client, error)

	mu      sync.Mutex
	current *Client
}

// NewConnector returns a Connector for conf. Nothing is dialed until
// [Connector.Client] is called.
func NewConnector(conf *Config, options ...Option) *Connector {
	return &Connector{config: conf, options: options, dial: Dial}
}

// Client returns the current client, dialing a new one if there is none or
// if it expired. An expired client is closed.
func (c *Connector) Client(ctx context.Context) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !c.current.IsExpired() {
		return c.current, nil
	}

	if c.current != nil {
		old := c.current
		c.current = nil
		if err := old.Close(ctx); err != nil {
			old.logger.Warn("closing expired mongo client", zap.Error(err))
		}
	}

	client, err := c.dial(ctx, c.config, c.options...)
	if err != nil {
		return nil, err
	}
	c.current = client
	return client, nil
}

// Close closes the current client, if any.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	err := c.current.Close(ctx)
	c.current = nil
	return err
}
