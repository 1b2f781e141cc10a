package seriesstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/arloliu/tracefile/catalog"
	"github.com/arloliu/tracefile/internal/options"
	"github.com/arloliu/tracefile/internal/storeopt"
	"github.com/arloliu/tracefile/ioqueue"
	"github.com/arloliu/tracefile/metrics"
	"github.com/arloliu/tracefile/record"
)

type config struct {
	logger    *zap.Logger
	metrics   *metrics.Metrics
	queue     *ioqueue.Queue
	catalog   *catalog.Catalog
	storeOpts []storeopt.Option
}

// Option configures how a series opens its members.
type Option = options.Option[*config]

func resolve(opts ...Option) (*config, error) {
	c := &config{logger: zap.NewNop()}
	if err := options.Apply(c, opts...); err != nil {
		return nil, err
	}

	return c, nil
}

// WithLogger sets the logger of the series and of every member it opens.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *config) {
		if logger == nil {
			return
		}
		c.logger = logger
		c.storeOpts = append(c.storeOpts, storeopt.WithLogger(logger))
	})
}

// WithMetrics records series rejections and member store activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return options.NoError(func(c *config) {
		c.metrics = m
		c.storeOpts = append(c.storeOpts, storeopt.WithMetrics(m))
	})
}

// WithStoreOptions passes opts to every member store opened by the series.
// Record and channel options share one type, so either package's options work.
func WithStoreOptions(opts ...record.Option) Option {
	return options.NoError(func(c *config) {
		c.storeOpts = append(c.storeOpts, opts...)
	})
}

// WithQueue opens members through q, serializing their I/O with every other
// user of the queue.
func WithQueue(q *ioqueue.Queue) Option {
	return options.NoError(func(c *config) {
		c.queue = q
	})
}

// WithCatalog looks up member summaries in cat before reading footers, and stores
// the summaries of members it had to read.
func WithCatalog(cat *catalog.Catalog) Option {
	return options.NoError(func(c *config) {
		c.catalog = cat
	})
}

// run executes fn on the queue when one is configured.
func (c *config) run(ctx context.Context, fn func() error) error {
	if c.queue != nil {
		return c.queue.Run(ctx, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn()
}

func (c *config) lookup(path string) (catalog.Summary, bool) {
	if c.catalog == nil {
		return catalog.Summary{}, false
	}

	sum, ok, err := c.catalog.Lookup(path)
	if err != nil {
		c.logger.Warn("catalog lookup failed", zap.String("path", path), zap.Error(err))
		return catalog.Summary{}, false
	}
	if ok {
		c.logger.Debug("catalog hit", zap.String("path", path))
	}

	return sum, ok
}

func (c *config) remember(sum catalog.Summary) {
	if c.catalog == nil {
		return
	}
	if err := c.catalog.Put(sum); err != nil {
		c.logger.Warn("catalog update failed", zap.String("path", sum.Path), zap.Error(err))
	}
}
