// Package storeopt holds the configuration shared by record and channel stores.
//
// Both store packages alias their Option type to options.Option[*Config], so an
// option built by either package configures a store of the other kind too.
package storeopt

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/internal/options"
	"github.com/arloliu/tracefile/metrics"
)

// Config is the resolved store configuration.
type Config struct {
	Logger      *zap.Logger
	Lock        sync.Locker
	Compression format.CompressionType
	Metrics     *metrics.Metrics
	// PacketFormat applies to channel stores only.
	PacketFormat format.PacketFormat
}

// Option configures a Config.
type Option = options.Option[*Config]

// Resolve applies opts over the defaults: a no-op logger, a private mutex and an
// uncompressed footer.
func Resolve(opts ...Option) (*Config, error) {
	cfg := &Config{
		Logger:      zap.NewNop(),
		Lock:        &sync.Mutex{},
		Compression: format.CompressionNone,
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WithLogger sets the store logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

// WithIOLock sets the lock held around every store operation. Sharing one lock
// between stores serializes their I/O.
func WithIOLock(lock sync.Locker) Option {
	return options.New(func(c *Config) error {
		if lock == nil {
			return fmt.Errorf("storeopt: nil lock")
		}
		c.Lock = lock

		return nil
	})
}

// WithCompression sets the footer compression written on close.
func WithCompression(comp format.CompressionType) Option {
	return options.New(func(c *Config) error {
		switch comp {
		case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
			c.Compression = comp
			return nil
		default:
			return fmt.Errorf("invalid footer compression: %v", comp)
		}
	})
}

// WithMetrics sets the collectors the store records into.
func WithMetrics(m *metrics.Metrics) Option {
	return options.NoError(func(c *Config) {
		c.Metrics = m
	})
}

// WithPacketFormat selects the packet layout of a new channel file.
func WithPacketFormat(pf format.PacketFormat) Option {
	return options.New(func(c *Config) error {
		switch pf {
		case format.PacketTagged, format.PacketLegacy:
			c.PacketFormat = pf
			return nil
		default:
			return fmt.Errorf("invalid packet format: %v", pf)
		}
	})
}
