package mongo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConnectionURI is the URI used when none is configured.
	DefaultConnectionURI = "mongodb://localhost:27017"
	// DefaultConnectionTimeout bounds the connection and the first ping.
	DefaultConnectionTimeout = "5s"
	// DefaultPingTimeout bounds the ping made after connecting.
	DefaultPingTimeout = "5s"
	// DefaultMaxPoolSize is the default size of the driver connection pool.
	DefaultMaxPoolSize = 10
	// DefaultMaxAge is how long a connection is reused before a new one is
	// dialed.
	DefaultMaxAge = "400s"
)

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// Config is the configuration for dialing a MongoDB database.
type Config struct {
	ConnectionURI     string `yaml:"ConnectionURI" validate:"required"`
	Database          string `yaml:"Database" validate:"required"`
	ConnectionTimeout string `yaml:"ConnectionTimeout" validate:"required,duration"`
	PingTimeout       string `yaml:"PingTimeout" validate:"required,duration"`
	MaxPoolSize       uint64 `yaml:"MaxPoolSize" validate:"gte=1"`
	// MaxAge is how long a dialed client is handed out by a [Connector].
	// Zero means forever.
	MaxAge string `yaml:"MaxAge" validate:"omitempty,duration"`
}

// NewConfig returns a Config filled with defaults for the named database.
func NewConfig(database string) *Config {
	return &Config{
		ConnectionURI:     DefaultConnectionURI,
		Database:          database,
		ConnectionTimeout: DefaultConnectionTimeout,
		PingTimeout:       DefaultPingTimeout,
		MaxPoolSize:       DefaultMaxPoolSize,
		MaxAge:            DefaultMaxAge,
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mongo config: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(b []byte) (*Config, error) {
	conf := NewConfig("")
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("parse mongo config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate returns an error if the provided Config is invalid.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, len(verrs))
	for n, e := range verrs {
		errs[n] = ErrInvalidConfig{Field: e.Field(), Tag: e.Tag(), Value: e.Value()}
	}
	return errors.Join(errs...)
}

// ParseConnectionTimeout returns the connection timeout duration.
func (c *Config) ParseConnectionTimeout() time.Duration {
	return parseDuration(c.ConnectionTimeout)
}

// ParsePingTimeout returns the ping timeout duration.
func (c *Config) ParsePingTimeout() time.Duration {
	return parseDuration(c.PingTimeout)
}

// ParseMaxAge returns the maximum age of a client. Zero means forever.
func (c *Config) ParseMaxAge() time.Duration {
	if c.MaxAge == "" {
		return 0
	}
	return parseDuration(c.MaxAge)
}

// parseDuration is only called on validated configurations, so a bad
// value yields zero instead of an error.
func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ErrInvalidConfig describes a configuration field that failed validation.
type ErrInvalidConfig struct {
	Field string
	Tag   string
	Value any
}

// Error implements [error].
func (e ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid mongo config field %s: %v fails %q", e.Field, e.Value, e.Tag)
}
