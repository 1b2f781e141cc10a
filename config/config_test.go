package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tracefile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, "info", c.Log.Level)
	require.Equal(t, "none", c.Store.Compression)
	require.Empty(t, c.Catalog.Dir)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
store:
  compression: zstd
  packet_format: legacy
  serialize_io: true
catalog:
  dir: /var/cache/tracefile
`)

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", c.Log.Level)
	require.Equal(t, "zstd", c.Store.Compression)
	require.True(t, c.Store.SerializeIO)
	require.Equal(t, "/var/cache/tracefile", c.Catalog.Dir)

	comp, err := ParseCompression(c.Store.Compression)
	require.NoError(t, err)
	require.Equal(t, format.CompressionZstd, comp)

	pf, err := ParsePacketFormat(c.Store.PacketFormat)
	require.NoError(t, err)
	require.Equal(t, format.PacketLegacy, pf)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvCompression, "LZ4")
	t.Setenv(EnvSerializeIO, "1")

	c, err := Load(writeConfig(t, "store:\n  compression: s2\n"))
	require.NoError(t, err)
	require.Equal(t, "LZ4", c.Store.Compression)
	require.True(t, c.Store.SerializeIO)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "store:\n  compression: brotli\n  packet_format: csv\n"))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	require.ErrorContains(t, err, "brotli")
	require.ErrorContains(t, err, "csv")

	_, err = Load(writeConfig(t, "log: [unclosed"))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLogger(t *testing.T) {
	c := Default()
	c.Log.Level = "warn"

	logger, err := c.Logger()
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.InfoLevel))
	require.True(t, logger.Core().Enabled(zap.WarnLevel))

	c.Log.Level = "loud"
	_, err = c.Logger()
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestToOptions(t *testing.T) {
	c := Default()
	c.Store.PacketFormat = "legacy"

	ropts, err := c.ToRecordOptions(zap.NewNop(), nil)
	require.NoError(t, err)
	require.Len(t, ropts, 3)

	copts, err := c.ToChannelOptions(zap.NewNop(), nil)
	require.NoError(t, err)
	require.Len(t, copts, 4)

	c.Store.Compression = "bogus"
	_, err = c.ToChannelOptions(zap.NewNop(), nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestToSeriesOptions(t *testing.T) {
	c := Default()
	c.Catalog.Dir = t.TempDir()
	c.Store.SerializeIO = true

	opts, res, err := c.ToSeriesOptions(zap.NewNop(), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Catalog)
	require.NotNil(t, res.Queue)
	require.Len(t, opts, 5)
	require.NoError(t, res.Close())
}
