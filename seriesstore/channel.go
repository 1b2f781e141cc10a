package seriesstore

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/arloliu/tracefile/catalog"
	"github.com/arloliu/tracefile/channel"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/series"
	"github.com/arloliu/tracefile/timebase"
)

// ChannelSeries is an ordered set of channel files holding the same number of
// channels. Each member spans from its start to its latest packet, at microsecond
// resolution, and members never overlap.
type ChannelSeries struct {
	cfg    *config
	stores []*channel.Store
}

// OpenChannelSeries opens the channel files at paths read-only, in any order.
func OpenChannelSeries(ctx context.Context, paths []string, opts ...Option) (*ChannelSeries, error) {
	cfg, err := resolve(opts...)
	if err != nil {
		return nil, err
	}

	stores, err := openMembers(ctx, cfg, paths, opener[*channel.Store]{
		open: func(path string) (*channel.Store, error) {
			return channel.Open(path, cfg.storeOpts...)
		},
		summarize: channelSummary,
	})
	if err != nil {
		return nil, err
	}

	return &ChannelSeries{cfg: cfg, stores: stores}, nil
}

// memberGrid is the microsecond grid covering every packet of s.
func memberGrid(s *channel.Store) grid.Grid {
	g := grid.New(s.Start(), timebase.MicrosDuration(1), 0)
	if s.PacketCount() > 0 {
		g.Count = s.LastOffsetMicros() + 1
	}

	return g
}

func channelSummary(s *channel.Store) catalog.Summary {
	names := s.ChannelNames()

	return catalog.Summary{
		Path:  s.Path(),
		File:  format.FileChannels.String(),
		Kind:  format.KindEvents.String(),
		Grid:  memberGrid(s),
		Count: uint64(len(names)),
		Names: names,
	}
}

// Len returns the number of members.
func (s *ChannelSeries) Len() int {
	return len(s.stores)
}

// Member returns the member owning segment seg.
func (s *ChannelSeries) Member(seg int) (*channel.Store, error) {
	if seg < 0 || seg >= len(s.stores) {
		return nil, fmt.Errorf("%w: segment %d of %d", errs.ErrSegmentOutOfRange, seg, len(s.stores))
	}

	return s.stores[seg], nil
}

// Grids returns the microsecond member grids in series order.
func (s *ChannelSeries) Grids() []grid.Grid {
	grids := make([]grid.Grid, len(s.stores))
	for i, st := range s.stores {
		grids[i] = memberGrid(st)
	}

	return grids
}

// NumChannels returns the channel count shared by every member.
func (s *ChannelSeries) NumChannels() int {
	return len(s.stores[0].ChannelNames())
}

// ChannelNames returns the channel names of the first member.
func (s *ChannelSeries) ChannelNames() []string {
	return s.stores[0].ChannelNames()
}

// ReadDense rebuilds the named dense channel in every member and concatenates
// the traces without gaps. Dropped indices are shifted to the global index space.
// Every member must sample the channel with the same step.
func (s *ChannelSeries) ReadDense(name string) (Samples, error) {
	grids := make([]grid.Grid, 0, len(s.stores))
	var values []float32

	for _, st := range s.stores {
		tr, err := st.ReadDense(name)
		if err != nil {
			return Samples{}, fmt.Errorf("%s: %w", st.Path(), err)
		}
		if len(grids) > 0 && !grids[0].Step.Equal(tr.Grid.Step) {
			return Samples{}, fmt.Errorf("%w: channel %q has step %s in %s and %s in %s",
				errs.ErrSeriesIncompatible, name, grids[0].Step, s.stores[0].Path(), tr.Grid.Step, st.Path())
		}
		grids = append(grids, tr.Grid)
		values = append(values, tr.Values...)
	}

	return Samples{Grid: series.GaplessGrid(grids), Values: values}, nil
}

// ReadLogical returns every packet of the named channel across the series in
// time order.
func (s *ChannelSeries) ReadLogical(name string) ([]channel.Event, error) {
	var events []channel.Event
	for _, st := range s.stores {
		ev, err := st.ReadLogical(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", st.Path(), err)
		}
		events = append(events, ev...)
	}

	return events, nil
}

// Close closes every member and returns their combined errors.
func (s *ChannelSeries) Close() error {
	var err error
	for _, st := range s.stores {
		err = multierr.Append(err, st.Close())
	}

	return err
}
