package geodex

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geodex/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	engine config.Config

	readiness time.Duration
	logger    *zap.Logger
	metrics   prometheus.Registerer
}

// WithRedis connects to a Redis 8+ instance with the query engine.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Database.Driver = config.DriverRedis
		c.engine.Database.Addrs = []string{addr}
		c.engine.Database.Password = password
	})
}

// WithElasticsearch connects to an Elasticsearch cluster.
func WithElasticsearch(addrs []string, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Database.Driver = config.DriverElasticsearch
		c.engine.Database.Addrs = addrs
		c.engine.Database.Username = username
		c.engine.Database.Password = password
	})
}

// WithIndex sets the index name and the storage key prefix.
// Defaults: "places" and "geodex:".
func WithIndex(name, keyPrefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Index.Name = name
		c.engine.Index.KeyPrefix = keyPrefix
	})
}

// WithRequestTimeout bounds every index call. Default: 2s.
func WithRequestTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Index.RequestTimeoutMs = int(d / time.Millisecond)
	})
}

// WithReverseRadius sets the search radius of Reverse in meters. Default: 500.
func WithReverseRadius(meters float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Index.ReverseRadiusM = meters
	})
}

// WithPostcodes sets the postcode format recognized in queries.
// Defaults: "DE", 5 digits.
func WithPostcodes(country string, digits int) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Query.PostcodeCountry = country
		c.engine.Query.PostcodeDigits = digits
	})
}

// WithLimits sets the default and maximum page size. Defaults: 10 and 20.
func WithLimits(defaultLimit, maxLimit int) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Query.DefaultLimit = defaultLimit
		c.engine.Query.MaxLimit = maxLimit
	})
}

// WithTypePriority orders place types for results with near-equal scores.
// Default: house, poi, street, admin, zone.
func WithTypePriority(types ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine.Ranking.TypePriority = types
	})
}

// WithReadinessTimeout bounds the initial wait for the engine. Default: 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readiness = d
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metrics = reg
	})
}
