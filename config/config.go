// Package config loads the settings shared by tracefile tools from a YAML file
// and the environment, and turns them into store and series options.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/tracefile/catalog"
	"github.com/arloliu/tracefile/channel"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/ioqueue"
	"github.com/arloliu/tracefile/metrics"
	"github.com/arloliu/tracefile/record"
	"github.com/arloliu/tracefile/seriesstore"
)

// Environment variables overriding file settings.
const (
	EnvLogLevel     = "TRACEFILE_LOG_LEVEL"
	EnvCompression  = "TRACEFILE_COMPRESSION"
	EnvPacketFormat = "TRACEFILE_PACKET_FORMAT"
	EnvCatalogDir   = "TRACEFILE_CATALOG_DIR"
	EnvSerializeIO  = "TRACEFILE_SERIALIZE_IO"
)

// Config holds the tool configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// StoreConfig holds the settings applied to every store.
type StoreConfig struct {
	// Compression of footers written on close: none, zstd, s2 or lz4.
	Compression string `yaml:"compression"`
	// PacketFormat of new channel files: tagged or legacy.
	PacketFormat string `yaml:"packet_format"`
	// SerializeIO runs all series I/O on one queue.
	SerializeIO bool `yaml:"serialize_io"`
}

// CatalogConfig holds the member summary cache settings.
type CatalogConfig struct {
	// Dir of the Badger database. Empty disables the catalog.
	Dir string `yaml:"dir"`
}

// Default returns the default configuration with environment overrides applied.
func Default() *Config {
	c := &Config{
		Log:   LogConfig{Level: "info"},
		Store: StoreConfig{Compression: "none", PacketFormat: "tagged"},
	}
	c.applyEnv()

	return c
}

// Load reads the YAML file at path over the defaults. Environment variables take
// precedence over the file. The result is validated.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrInvalidConfig, path, err)
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)
	c.Store.Compression = getEnv(EnvCompression, c.Store.Compression)
	c.Store.PacketFormat = getEnv(EnvPacketFormat, c.Store.PacketFormat)
	c.Store.SerializeIO = getEnvBool(EnvSerializeIO, c.Store.SerializeIO)
	c.Catalog.Dir = getEnv(EnvCatalogDir, c.Catalog.Dir)
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []error

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Errorf("log level %q: %w", c.Log.Level, err))
	}
	if _, err := ParseCompression(c.Store.Compression); err != nil {
		problems = append(problems, err)
	}
	if _, err := ParsePacketFormat(c.Store.PacketFormat); err != nil {
		problems = append(problems, err)
	}

	if err := errors.Join(problems...); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}

	return nil
}

// ParseCompression returns the compression named s, ignoring case.
func ParseCompression(s string) (format.CompressionType, error) {
	for _, c := range []format.CompressionType{
		format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4,
	} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}

	return 0, fmt.Errorf("unknown compression %q", s)
}

// ParsePacketFormat returns the packet format named s, ignoring case.
func ParsePacketFormat(s string) (format.PacketFormat, error) {
	for _, pf := range []format.PacketFormat{format.PacketTagged, format.PacketLegacy} {
		if strings.EqualFold(s, pf.String()) {
			return pf, nil
		}
	}

	return 0, fmt.Errorf("unknown packet format %q", s)
}

// Logger builds the configured zap logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %w", errs.ErrInvalidConfig, err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	return zc.Build()
}

// ToRecordOptions returns the record store options for the configuration.
func (c *Config) ToRecordOptions(logger *zap.Logger, m *metrics.Metrics) ([]record.Option, error) {
	comp, err := ParseCompression(c.Store.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}

	return []record.Option{
		record.WithLogger(logger),
		record.WithMetrics(m),
		record.WithCompression(comp),
	}, nil
}

// ToChannelOptions returns the channel store options for the configuration.
func (c *Config) ToChannelOptions(logger *zap.Logger, m *metrics.Metrics) ([]channel.Option, error) {
	opts, err := c.ToRecordOptions(logger, m)
	if err != nil {
		return nil, err
	}
	pf, err := ParsePacketFormat(c.Store.PacketFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err)
	}

	return append(opts, channel.WithPacketFormat(pf)), nil
}

// Resources holds what ToSeriesOptions opened. Close releases it.
type Resources struct {
	Queue   *ioqueue.Queue
	Catalog *catalog.Catalog
}

// Close stops the queue and closes the catalog.
func (r *Resources) Close() error {
	if r.Queue != nil {
		r.Queue.Close()
	}
	if r.Catalog != nil {
		return r.Catalog.Close()
	}

	return nil
}

// ToSeriesOptions returns series options for the configuration, opening the
// catalog and the I/O queue when configured. The caller closes the returned
// resources once every series is closed.
func (c *Config) ToSeriesOptions(logger *zap.Logger, m *metrics.Metrics) ([]seriesstore.Option, *Resources, error) {
	storeOpts, err := c.ToRecordOptions(logger, m)
	if err != nil {
		return nil, nil, err
	}

	res := &Resources{}
	opts := []seriesstore.Option{
		seriesstore.WithLogger(logger),
		seriesstore.WithMetrics(m),
		seriesstore.WithStoreOptions(storeOpts...),
	}

	if c.Catalog.Dir != "" {
		cat, err := catalog.Open(c.Catalog.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		res.Catalog = cat
		opts = append(opts, seriesstore.WithCatalog(cat))
	}
	if c.Store.SerializeIO {
		res.Queue = ioqueue.New()
		opts = append(opts, seriesstore.WithQueue(res.Queue))
	}

	return opts, res, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}

	return defaultValue
}
