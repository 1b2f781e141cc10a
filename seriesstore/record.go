package seriesstore

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/arloliu/tracefile/catalog"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/footer"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/record"
	"github.com/arloliu/tracefile/series"
	"github.com/arloliu/tracefile/timebase"
)

// Samples is a trace laid out on a grid: one value per grid index, NaN where the
// index is invalid.
type Samples struct {
	Grid   grid.Grid
	Values []float32
}

// RecordSeries is an ordered set of record files sharing kind, shape, history
// and record count. Members are sorted by grid start and never overlap.
//
// Series-wide curation attributes (name, status, color and per-segment activity)
// are read from the first member.
type RecordSeries struct {
	cfg    *config
	stores []*record.Store
}

// OpenRecordSeries opens the record files at paths read-only, in any order.
func OpenRecordSeries(ctx context.Context, paths []string, opts ...Option) (*RecordSeries, error) {
	cfg, err := resolve(opts...)
	if err != nil {
		return nil, err
	}

	stores, err := openMembers(ctx, cfg, paths, opener[*record.Store]{
		open: func(path string) (*record.Store, error) {
			return record.Open(path, cfg.storeOpts...)
		},
		summarize: recordSummary,
	})
	if err != nil {
		return nil, err
	}

	return &RecordSeries{cfg: cfg, stores: stores}, nil
}

// NewRecordSeries builds a series from stores the caller already opened. Only the
// latest member may still be WriteOpen. The series takes ownership of the stores.
//
// Options that configure member stores have no effect here; the logger and
// metrics still record rejections found now and by later calls to Append.
func NewRecordSeries(stores []*record.Store, opts ...Option) (*RecordSeries, error) {
	if len(stores) == 0 {
		return nil, errs.ErrEmptySeries
	}

	cfg, err := resolve(opts...)
	if err != nil {
		return nil, err
	}
	s := &RecordSeries{cfg: cfg}
	if err := s.set(slices.Clone(stores)); err != nil {
		return nil, err
	}

	return s, nil
}

func recordSummary(s *record.Store) catalog.Summary {
	return catalog.Summary{
		Path:    s.Path(),
		File:    format.FileRecords.String(),
		Kind:    s.Kind().String(),
		Grid:    s.Grid(),
		Shape:   s.Shape(),
		History: s.History(),
		Count:   s.Count(),
	}
}

// set sorts and validates stores and installs them as the members.
func (s *RecordSeries) set(stores []*record.Store) error {
	slices.SortStableFunc(stores, func(a, b *record.Store) int {
		return a.Grid().Start.Cmp(b.Grid().Start)
	})

	sums := make([]catalog.Summary, len(stores))
	for i, st := range stores {
		if i < len(stores)-1 && st.State() == format.StateWriteOpen {
			return fmt.Errorf("%w: %s is still open for writing but is not the latest member",
				errs.ErrSeriesIncompatible, st.Path())
		}
		sums[i] = recordSummary(st)
	}

	growing := stores[len(stores)-1].State() == format.StateWriteOpen
	if err := validate(sums, growing); err != nil {
		s.cfg.rejected(err)
		return err
	}
	s.stores = stores

	return nil
}

// Append validates st against the series and adds it. On rejection the series is
// unchanged and st stays owned by the caller.
func (s *RecordSeries) Append(st *record.Store) error {
	return s.set(append(slices.Clone(s.stores), st))
}

// Len returns the number of members.
func (s *RecordSeries) Len() int {
	return len(s.stores)
}

// Member returns the member owning segment seg.
func (s *RecordSeries) Member(seg int) (*record.Store, error) {
	if seg < 0 || seg >= len(s.stores) {
		return nil, fmt.Errorf("%w: segment %d of %d", errs.ErrSegmentOutOfRange, seg, len(s.stores))
	}

	return s.stores[seg], nil
}

// Grids returns the member grids in series order.
func (s *RecordSeries) Grids() []grid.Grid {
	grids := make([]grid.Grid, len(s.stores))
	for i, st := range s.stores {
		grids[i] = st.Grid()
	}

	return grids
}

// Grid returns the gapless grid of the whole series.
func (s *RecordSeries) Grid() grid.Grid {
	return series.GaplessGrid(s.Grids())
}

// Duration returns the sampled duration of the series, excluding gaps.
func (s *RecordSeries) Duration() timebase.Duration {
	return series.TotalDuration(s.Grids())
}

// NumRecords returns the record count shared by every member.
func (s *RecordSeries) NumRecords() uint64 {
	return s.stores[0].Count()
}

// Locate resolves a global sample index. See series.Locate for clamping.
func (s *RecordSeries) Locate(global uint64) series.Position {
	return series.Locate(s.Grids(), global)
}

// SampleAt returns the value of record rec at global sample index g, NaN when the
// sample is invalid.
func (s *RecordSeries) SampleAt(rec, g uint64) (float32, error) {
	pos := s.Locate(g)
	return s.stores[pos.Segment].SampleAt(rec, pos.Local)
}

// SampleAtTime returns the value of record rec at the sample nearest to t.
func (s *RecordSeries) SampleAtTime(rec uint64, t timebase.Time) (float32, error) {
	pos := series.LocateTime(s.Grids(), t)
	return s.stores[pos.Segment].SampleAt(rec, pos.Local)
}

// Trace returns record rec across every member on the gapless series grid.
func (s *RecordSeries) Trace(rec uint64) (Samples, error) {
	grids := s.Grids()
	values := make([]float32, 0, series.TotalCount(grids))
	for _, st := range s.stores {
		v, err := st.ReadSamples(rec)
		if err != nil {
			return Samples{}, err
		}
		values = append(values, v...)
	}

	return Samples{Grid: series.GaplessGrid(grids), Values: values}, nil
}

// Name returns the name of record rec.
func (s *RecordSeries) Name(rec uint64) (string, error) {
	return s.stores[0].Name(rec)
}

// Status returns the curation status of record rec.
func (s *RecordSeries) Status(rec uint64) (format.Status, error) {
	return s.stores[0].Status(rec)
}

// Color returns the display color of record rec.
func (s *RecordSeries) Color(rec uint64) (footer.Color, error) {
	return s.stores[0].Color(rec)
}

// Active reports whether record rec is active in segment seg.
func (s *RecordSeries) Active(rec uint64, seg int) (bool, error) {
	if seg < 0 || seg >= len(s.stores) {
		return false, fmt.Errorf("%w: segment %d of %d", errs.ErrSegmentOutOfRange, seg, len(s.stores))
	}

	return s.stores[0].Active(rec, seg)
}

// Writer returns the latest member when it is still WriteOpen.
func (s *RecordSeries) Writer() (*record.Store, error) {
	last := s.stores[len(s.stores)-1]
	if last.State() != format.StateWriteOpen {
		return nil, errs.ErrNotWritable
	}

	return last, nil
}

// Close closes every member and returns their combined errors.
func (s *RecordSeries) Close() error {
	var err error
	for _, st := range s.stores {
		err = multierr.Append(err, st.Close())
	}

	return err
}
