package channel

import (
	"fmt"
	"math"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/internal/pool"
	"github.com/arloliu/tracefile/section"
	"github.com/arloliu/tracefile/timebase"
)

const (
	// scanBatch is the number of packets read per ReadAt.
	scanBatch = pool.PacketBufferDefaultSize / section.PacketSize

	// MaxDenseSamples bounds the grid ReadDense is willing to allocate.
	MaxDenseSamples = 1 << 28
)

// Event is one packet of a channel in absolute time.
type Event struct {
	Time         timebase.Time
	OffsetMicros uint64
	Value        float32
	// State is only carried by legacy packets.
	State bool
}

// DenseTrace is a channel rebuilt on a regular grid. Values has one entry per
// grid index; dropped indices hold NaN.
type DenseTrace struct {
	Grid   grid.Grid
	Values []float32
}

// ReadLogical returns every packet of the named channel in file order.
func (s *Store) ReadLogical(name string) ([]Event, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	id, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, s.meta.Channels[id].SampleCount)
	err = s.scan(func(p section.Packet) {
		if p.ChannelID != id {
			return
		}
		events = append(events, Event{
			Time:         s.meta.Start.Add(timebase.MicrosDuration(int64(p.OffsetMicros))),
			OffsetMicros: p.OffsetMicros,
			Value:        p.Value,
			State:        p.State,
		})
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}

// ReadDense rebuilds the named dense channel on the grid starting at the file
// start with the channel step, long enough to hold the latest packet of the
// file. Each packet lands on the index whose window contains it. Indices with no
// packet, and indices hit by an out-of-order or repeated packet, are NaN and
// listed as dropped.
func (s *Store) ReadDense(name string) (DenseTrace, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	id, err := s.lookup(name)
	if err != nil {
		return DenseTrace{}, err
	}
	ch := s.meta.Channels[id]
	if ch.Kind != format.ChannelDense {
		return DenseTrace{}, fmt.Errorf("%w: channel %q is %s", errs.ErrInvalidChannel, name, ch.Kind)
	}

	if ch.Step.Sign() <= 0 {
		return DenseTrace{}, fmt.Errorf("%w: channel %q has step %s", errs.ErrInvalidChannel, name, ch.Step)
	}

	g := grid.New(s.meta.Start, ch.Step, 0)
	if ch.SampleCount > 0 {
		if s.meta.LastOffsetMicros > math.MaxInt64 {
			return DenseTrace{}, fmt.Errorf("%w: latest packet at %dus", errs.ErrOffsetOutOfRange, s.meta.LastOffsetMicros)
		}
		span := timebase.MicrosDuration(int64(s.meta.LastOffsetMicros))
		n := span.FloorDiv(ch.Step)
		if n < 0 || n >= MaxDenseSamples {
			return DenseTrace{}, fmt.Errorf("%w: channel %q spans %d steps, limit %d",
				errs.ErrDenseTooLarge, name, n, MaxDenseSamples)
		}
		g.Count = uint64(n) + 1
	}

	values := make([]float32, g.Count)
	filled := make([]bool, g.Count)
	conflict := make([]bool, g.Count)
	last := int64(-1)

	err = s.scan(func(p section.Packet) {
		if p.ChannelID != id {
			return
		}

		t := s.meta.Start.Add(timebase.MicrosDuration(int64(p.OffsetMicros)))
		i := g.TimeToIndex(t)
		if int64(i) <= last {
			conflict[i] = true
			return
		}
		last = int64(i)
		values[i] = p.Value
		filled[i] = true
	})
	if err != nil {
		return DenseTrace{}, err
	}

	var dropped []uint64
	for i := range values {
		if !filled[i] || conflict[i] {
			values[i] = float32(math.NaN())
			dropped = append(dropped, uint64(i))
		}
	}
	g.SetDropped(dropped)

	return DenseTrace{Grid: g, Values: values}, nil
}

// scan calls fn for every packet: first those in the file, then pending ones.
func (s *Store) scan(fn func(p section.Packet)) error {
	if s.file == nil {
		return errs.ErrAlreadyClosed
	}

	buf := pool.GetPacketBuffer()
	defer pool.PutPacketBuffer(buf)

	layout := s.meta.PacketFormat
	for first := uint64(0); first < s.flushed; first += scanBatch {
		n := min(scanBatch, s.flushed-first) * section.PacketSize
		buf.Reset()
		buf.Grow(int(n))
		chunk := buf.B[:n]

		if _, err := s.file.ReadAt(chunk, int64(first*section.PacketSize)); err != nil {
			return errs.IO("read packets", err)
		}
		if err := decodeAll(chunk, layout, fn); err != nil {
			return err
		}
	}

	if s.pending != nil {
		return decodeAll(s.pending.Bytes(), layout, fn)
	}

	return nil
}

func decodeAll(data []byte, layout format.PacketFormat, fn func(p section.Packet)) error {
	for off := 0; off+section.PacketSize <= len(data); off += section.PacketSize {
		p, err := section.ParsePacket(data[off:off+section.PacketSize], layout)
		if err != nil {
			return err
		}
		fn(p)
	}

	return nil
}
