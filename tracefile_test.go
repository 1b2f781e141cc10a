package tracefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tracefile/footer"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/record"
	"github.com/arloliu/tracefile/section"
	"github.com/arloliu/tracefile/timebase"
)

var epoch = time.Unix(1_700_000_000, 0)

func recordConfig(start time.Time) record.Config {
	return record.Config{
		Kind:   format.KindVesselDiameter,
		Grid:   NewGrid(start, 10, 4),
		Layout: footer.Layout{ImageBytes: 2, TraceBytes: 16},
	}
}

// TestNewGrid verifies the grid step is exactly the sampling period
func TestNewGrid(t *testing.T) {
	g := NewGrid(epoch, 30, 90)

	require.Equal(t, uint64(90), g.Count)
	require.True(t, g.Step.Equal(timebase.Seconds(1, 30)))
	require.True(t, g.End().Equal(timebase.Unix(1_700_000_003, 1)))
}

// TestRecords verifies create, write, close and reopen through the wrappers
func TestRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessel.trf")

	s, err := CreateRecords(path, recordConfig(epoch))
	require.NoError(t, err)
	require.NoError(t, s.WriteBlocks(0, []byte{1, 2}, record.AppendTrace(nil, []float32{1, 2, 3, 4})))
	require.NoError(t, s.Close())

	r, err := OpenRecords(path)
	require.NoError(t, err)
	defer r.Close()

	trace, err := r.ReadTrace(0)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, trace)
}

// TestCreateCompactRecords verifies the footer is stored compressed
func TestCreateCompactRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vessel.trf")

	s, err := CreateCompactRecords(path, recordConfig(epoch))
	require.NoError(t, err)
	require.NoError(t, s.WriteBlocks(0, []byte{1, 2}, record.AppendTrace(nil, []float32{1, 2, 3, 4})))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trailer, err := section.ParseTrailer(data[len(data)-section.TrailerSize:])
	require.NoError(t, err)
	require.Equal(t, format.CompressionZstd, trailer.Flag.Compression())

	r, err := OpenRecords(path)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, uint64(1), r.Count())
}

// TestChannels verifies the channel wrappers
func TestChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpio.trf")

	s, err := CreateChannels(path, epoch)
	require.NoError(t, err)
	id, err := s.AddChannel("ttl", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)
	require.NoError(t, s.WritePacket(id, 250, 1))
	require.NoError(t, s.Close())

	r, err := OpenChannels(path)
	require.NoError(t, err)
	defer r.Close()

	events, err := r.ReadLogical("ttl")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, epoch.Add(250*time.Microsecond).Equal(events[0].Time.Std()))
}

// TestOpenRecordSeries verifies two back to back files form one series
func TestOpenRecordSeries(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, start := range []time.Time{epoch.Add(time.Minute), epoch} {
		path := filepath.Join(dir, string(rune('a'+i))+".trf")
		s, err := CreateRecords(path, recordConfig(start))
		require.NoError(t, err)
		require.NoError(t, s.WriteBlocks(0, []byte{0, 0}, record.AppendTrace(nil, []float32{1, 2, 3, 4})))
		require.NoError(t, s.Close())
		paths = append(paths, path)
	}

	series, err := OpenRecordSeries(context.Background(), paths)
	require.NoError(t, err)
	defer series.Close()

	first, err := series.Member(0)
	require.NoError(t, err)
	require.Equal(t, paths[1], first.Path())

	tr, err := series.Trace(0)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4, 1, 2, 3, 4}, tr.Values)
}
