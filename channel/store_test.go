package channel

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/section"
	"github.com/arloliu/tracefile/timebase"
)

var start = timebase.Unix(1_700_000_000, 1)

func newStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "channels.trf")
	s, err := Create(path, start, opts...)
	require.NoError(t, err)

	return s, path
}

func TestStore_RoundTrip(t *testing.T) {
	s, path := newStore(t)

	gpio, err := s.AddChannel("gpio0", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)
	lick, err := s.AddChannel("lick", format.ChannelDense, timebase.Hz(1000, 1))
	require.NoError(t, err)
	require.Equal(t, uint32(0), gpio)
	require.Equal(t, uint32(1), lick)

	// interleaved: dense every millisecond, sparse every 3 ms
	for ms := range uint64(10) {
		require.NoError(t, s.WritePacket(lick, ms*1000, float32(ms)))
		if ms%3 == 0 {
			require.NoError(t, s.WriteSample("gpio0", ms*1000+500, float32(ms)/10))
		}
	}
	require.Equal(t, uint64(14), s.PacketCount())
	require.NoError(t, s.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, format.StateReadOpen, r.State())
	require.True(t, r.Start().Equal(start))
	require.Equal(t, []string{"gpio0", "lick"}, r.ChannelNames())
	require.Equal(t, uint64(14), r.PacketCount())
	require.Equal(t, uint64(9500), r.LastOffsetMicros())

	ch, err := r.Channel("gpio0")
	require.NoError(t, err)
	require.Equal(t, format.ChannelSparse, ch.Kind)
	require.Equal(t, uint64(4), ch.SampleCount)
	require.Equal(t, uint64(500), ch.StartOffsetMicros)

	events, err := r.ReadLogical("gpio0")
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, uint64(3500), events[1].OffsetMicros)
	require.InDelta(t, 0.3, events[1].Value, 1e-6)
	require.True(t, events[1].Time.Equal(start.Add(timebase.MicrosDuration(3500))))

	dense, err := r.ReadDense("lick")
	require.NoError(t, err)
	require.Equal(t, uint64(10), dense.Grid.Count)
	require.Empty(t, dense.Grid.Dropped)
	for i, v := range dense.Values {
		require.InDelta(t, float32(i), v, 0)
	}
}

func TestStore_DenseGapsAndDisorder(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	id, err := s.AddChannel("diameter", format.ChannelDense, timebase.Hz(100, 1))
	require.NoError(t, err)

	// 10 ms step: indices 0, 1, (2 missing), 4, then 3 arrives late, then 5
	for _, p := range []struct {
		offset uint64
		value  float32
	}{
		{0, 1}, {10_000, 2}, {40_000, 5}, {30_000, 4}, {50_000, 6},
	} {
		require.NoError(t, s.WritePacket(id, p.offset, p.value))
	}

	dense, err := s.ReadDense("diameter")
	require.NoError(t, err)
	require.Equal(t, uint64(6), dense.Grid.Count)
	require.Equal(t, []uint64{2, 3}, dense.Grid.Dropped)
	require.InDelta(t, 5, dense.Values[4], 0)
	require.True(t, math.IsNaN(float64(dense.Values[2])))
	require.True(t, math.IsNaN(float64(dense.Values[3])))
	require.InDelta(t, 6, dense.Values[5], 0)
}

func TestStore_DenseUsesFileRange(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	dense, err := s.AddChannel("frames", format.ChannelDense, timebase.Hz(10, 1))
	require.NoError(t, err)
	events, err := s.AddChannel("events", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)

	require.NoError(t, s.WritePacket(dense, 0, 1))
	require.NoError(t, s.WritePacket(dense, 100_000, 2))
	require.NoError(t, s.WritePacket(events, 450_000, 1))

	trace, err := s.ReadDense("frames")
	require.NoError(t, err)
	require.Equal(t, uint64(5), trace.Grid.Count)
	require.Equal(t, []uint64{2, 3, 4}, trace.Grid.Dropped)
}

func TestStore_LegacyFormat(t *testing.T) {
	s, path := newStore(t, WithPacketFormat(format.PacketLegacy))

	id, err := s.AddChannel("ttl", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)
	_, err = s.AddChannel("second", format.ChannelSparse, timebase.Duration{})
	require.ErrorIs(t, err, errs.ErrInvalidChannel)

	require.NoError(t, s.WriteState(id, 100, 3.5, true))
	require.NoError(t, s.WriteState(id, 200, 3.5, false))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	p, err := section.ParsePacket(data[:section.PacketSize], format.PacketLegacy)
	require.NoError(t, err)
	require.True(t, p.State)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, format.PacketLegacy, r.PacketFormat())
	events, err := r.ReadLogical("ttl")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, events[0].State)
	require.False(t, events[1].State)
	require.InDelta(t, 3.5, events[1].Value, 0)
}

func TestStore_ChannelErrors(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	_, err := s.AddChannel("a", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)

	_, err = s.AddChannel("a", format.ChannelSparse, timebase.Duration{})
	require.ErrorIs(t, err, errs.ErrDuplicateChannel)

	_, err = s.AddChannel("b", format.ChannelDense, timebase.Duration{})
	require.ErrorIs(t, err, errs.ErrInvalidChannel)

	_, err = s.AddChannel("c", format.ChannelSparse, timebase.Hz(10, 1))
	require.ErrorIs(t, err, errs.ErrInvalidChannel)

	require.ErrorIs(t, s.WritePacket(9, 0, 1), errs.ErrUnknownChannel)
	require.ErrorIs(t, s.WriteSample("missing", 0, 1), errs.ErrUnknownChannel)

	_, err = s.ReadDense("a")
	require.ErrorIs(t, err, errs.ErrInvalidChannel)

	_, err = s.ReadLogical("missing")
	require.ErrorIs(t, err, errs.ErrUnknownChannel)
}

func TestStore_MutationAfterClose(t *testing.T) {
	s, path := newStore(t)
	id, err := s.AddChannel("a", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)
	require.NoError(t, s.WritePacket(id, 1, 1))
	require.NoError(t, s.CloseForWriting())

	require.ErrorIs(t, s.WritePacket(id, 2, 2), errs.ErrClosedFileMutation)
	_, err = s.AddChannel("b", format.ChannelSparse, timebase.Duration{})
	require.ErrorIs(t, err, errs.ErrClosedFileMutation)
	require.NoError(t, s.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	require.ErrorIs(t, r.WritePacket(id, 2, 2), errs.ErrReadOnly)
}

func TestStore_ManyPacketsSpanBatches(t *testing.T) {
	s, path := newStore(t)

	id, err := s.AddChannel("fast", format.ChannelDense, timebase.Hz(10_000, 1))
	require.NoError(t, err)

	const n = 3*scanBatch + 17
	for i := range uint64(n) {
		require.NoError(t, s.WritePacket(id, i*100, float32(i)))
	}

	// readable while still open, across flushed and pending packets
	events, err := s.ReadLogical("fast")
	require.NoError(t, err)
	require.Len(t, events, n)
	require.NoError(t, s.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	dense, err := r.ReadDense("fast")
	require.NoError(t, err)
	require.Equal(t, uint64(n), dense.Grid.Count)
	require.Empty(t, dense.Grid.Dropped)
	require.InDelta(t, float32(n-1), dense.Values[n-1], 0)
}

func TestStore_OpenMissingFooter(t *testing.T) {
	s, path := newStore(t)
	id, err := s.AddChannel("a", format.ChannelSparse, timebase.Duration{})
	require.NoError(t, err)
	for i := range uint64(scanBatch) {
		require.NoError(t, s.WritePacket(id, i, 0))
	}
	defer s.Close()

	_, err = Open(path)
	require.ErrorIs(t, err, errs.ErrFooterMissing)
}

func TestStore_OffsetBounds(t *testing.T) {
	s, _ := newStore(t)
	defer s.Close()

	id, err := s.AddChannel("d", format.ChannelDense, timebase.MicrosDuration(1))
	require.NoError(t, err)

	require.ErrorIs(t, s.WritePacket(id, 1<<63, 1), errs.ErrOffsetOutOfRange)
	require.ErrorIs(t, s.WritePacket(id, math.MaxUint64, 1), errs.ErrInvalidIndex)
	require.Equal(t, uint64(0), s.PacketCount())

	// accepted, but far too long to rebuild densely at 1us
	require.NoError(t, s.WritePacket(id, 1<<40, 1))
	_, err = s.ReadDense("d")
	require.ErrorIs(t, err, errs.ErrDenseTooLarge)

	events, err := s.ReadLogical("d")
	require.NoError(t, err)
	require.Len(t, events, 1)
}
