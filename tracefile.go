// Package tracefile persists per-sample scientific time series: fluorescence
// traces, vessel measurements and event channels sampled at a nominal rate,
// with dropped samples, cropped ranges and recordings split over several files.
//
// # Core Features
//
//   - Exact rational timing: sampling grids never accumulate rounding error
//   - Dropped and cropped samples tracked per grid, never stored on disk
//   - Fixed-stride record files with a versioned, self-describing YAML footer
//   - Packet channel files for dense and sparse event channels
//   - Series of files joined into one gapless index space
//   - Optional footer compression (None, Zstd, S2, LZ4)
//   - xxHash64 footer checksums
//
// # Basic Usage
//
// Writing a record file:
//
//	g := tracefile.NewGrid(time.Now(), 30, 900) // 30 Hz, 900 samples
//	s, _ := tracefile.CreateRecords("cells.trf", record.Config{
//	    Kind:   format.KindCellTrace,
//	    Grid:   g,
//	    Layout: footer.Layout{ImageBytes: 64 * 64, TraceBytes: 900 * 4},
//	})
//	for i, roi := range rois {
//	    s.WriteBlocks(uint64(i), roi.Image, record.AppendTrace(nil, roi.Trace))
//	    s.SetName(uint64(i), roi.Name)
//	}
//	s.Close() // writes the footer
//
// Reading a series of files recorded back to back:
//
//	series, _ := tracefile.OpenRecordSeries(ctx, paths)
//	defer series.Close()
//	trace, _ := series.Trace(0)
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the record, channel
// and seriesstore packages. For fine-grained control, use those packages directly.
package tracefile

import (
	"context"
	"time"

	"github.com/arloliu/tracefile/channel"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/record"
	"github.com/arloliu/tracefile/seriesstore"
	"github.com/arloliu/tracefile/timebase"
)

var compactOptions = []record.Option{
	record.WithCompression(format.CompressionZstd),
}

// NewGrid returns a grid of count samples taken at rateHz samples per second,
// starting at start.
//
// The step is exactly 1/rateHz seconds. Use grid.New with timebase.Hz for
// fractional rates.
func NewGrid(start time.Time, rateHz int64, count uint64) grid.Grid {
	return grid.New(timebase.FromStd(start), timebase.Hz(rateHz, 1), count)
}

// CreateRecords creates a record file with custom options.
//
// Parameters:
//   - path: The file to create or truncate
//   - cfg: Kind, grid, shape, layout and history of the new file
//   - opts: Optional configuration functions (see record.Option)
//
// Returns:
//   - *record.Store: The WriteOpen store.
//   - error: An error if the configuration is invalid or the file cannot be created.
//
// Available options:
//   - record.WithLogger(logger)
//   - record.WithIOLock(lock)
//   - record.WithCompression(format.CompressionNone|Zstd|S2|LZ4)
//   - record.WithMetrics(m)
func CreateRecords(path string, cfg record.Config, opts ...record.Option) (*record.Store, error) {
	return record.Create(path, cfg, opts...)
}

// CreateCompactRecords creates a record file whose footer is Zstd compressed.
//
// Files with many records carry large per-record footer arrays; compressing
// them keeps the footer small at the cost of a footer that is no longer
// readable as text. opts are applied after the defaults.
func CreateCompactRecords(path string, cfg record.Config, opts ...record.Option) (*record.Store, error) {
	return record.Create(path, cfg, append(append([]record.Option{}, compactOptions...), opts...)...)
}

// OpenRecords opens a closed record file read-only.
func OpenRecords(path string, opts ...record.Option) (*record.Store, error) {
	return record.Open(path, opts...)
}

// CreateChannels creates a packet channel file whose packet offsets are relative
// to start.
//
// Available options are those of CreateRecords plus
// channel.WithPacketFormat(format.PacketTagged|PacketLegacy).
func CreateChannels(path string, start time.Time, opts ...channel.Option) (*channel.Store, error) {
	return channel.Create(path, timebase.FromStd(start), opts...)
}

// OpenChannels opens a closed packet channel file read-only.
func OpenChannels(path string, opts ...channel.Option) (*channel.Store, error) {
	return channel.Open(path, opts...)
}

// OpenRecordSeries opens record files recorded back to back as one series. The
// paths may be given in any order.
//
// Returns an error wrapping errs.ErrSeriesIncompatible, as a
// *series.IncompatibleError naming the failed rule, when the files cannot form
// one series.
func OpenRecordSeries(ctx context.Context, paths []string, opts ...seriesstore.Option) (*seriesstore.RecordSeries, error) {
	return seriesstore.OpenRecordSeries(ctx, paths, opts...)
}

// OpenChannelSeries opens channel files recorded back to back as one series.
func OpenChannelSeries(ctx context.Context, paths []string, opts ...seriesstore.Option) (*seriesstore.ChannelSeries, error) {
	return seriesstore.OpenChannelSeries(ctx, paths, opts...)
}
