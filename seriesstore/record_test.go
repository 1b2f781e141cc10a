package seriesstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arloliu/tracefile/catalog"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/footer"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/ioqueue"
	"github.com/arloliu/tracefile/metrics"
	"github.com/arloliu/tracefile/record"
	"github.com/arloliu/tracefile/series"
	"github.com/arloliu/tracefile/timebase"
)

var testShape = series.Shape{Width: 2, Height: 2, PixelSizeX: 1, PixelSizeY: 1}

type segment struct {
	startSec int64
	count    uint64
	records  int
	dropped  []uint64
}

func sampleValue(seg, rec int, i uint64) float32 {
	return float32(seg*1000 + rec*100 + int(i))
}

// createSegment writes a record file whose record rec holds sampleValue(seg, rec, i)
// for every valid grid index i.
func createSegment(t *testing.T, dir string, seg int, spec segment) *record.Store {
	t.Helper()

	g := grid.New(timebase.Unix(spec.startSec, 1), timebase.Hz(20, 1), spec.count)
	g.SetDropped(spec.dropped)

	path := filepath.Join(dir, fmt.Sprintf("seg%d.trf", seg))
	s, err := record.Create(path, record.Config{
		Kind:    format.KindCellTrace,
		Grid:    g,
		Shape:   testShape,
		Layout:  footer.Layout{ImageBytes: 4, TraceBytes: g.ValidCount() * 4},
		History: series.History{"registration", "segmentation"},
	})
	require.NoError(t, err)

	for rec := range spec.records {
		trace := make([]float32, 0, g.ValidCount())
		for i := range g.ValidIndices() {
			trace = append(trace, sampleValue(seg, rec, i))
		}
		require.NoError(t, s.WriteBlocks(uint64(rec), []byte{1, 2, 3, 4}, record.AppendTrace(nil, trace)))
		require.NoError(t, s.SetName(uint64(rec), fmt.Sprintf("roi-%d", rec)))
	}

	return s
}

func writeSegments(t *testing.T, specs ...segment) []string {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, len(specs))
	for i, spec := range specs {
		s := createSegment(t, dir, i, spec)
		paths[i] = s.Path()
		require.NoError(t, s.Close())
	}

	return paths
}

func threeSegments(t *testing.T) []string {
	return writeSegments(t,
		segment{startSec: 0, count: 3, records: 2},
		segment{startSec: 60, count: 4, records: 2, dropped: []uint64{1}},
		segment{startSec: 120, count: 5, records: 2},
	)
}

func TestOpenRecordSeries_SortsMembers(t *testing.T) {
	paths := threeSegments(t)

	s, err := OpenRecordSeries(context.Background(), []string{paths[2], paths[0], paths[1]})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 3, s.Len())
	for i := range 3 {
		m, err := s.Member(i)
		require.NoError(t, err)
		require.Equal(t, paths[i], m.Path())
	}
	_, err = s.Member(3)
	require.ErrorIs(t, err, errs.ErrSegmentOutOfRange)

	require.Equal(t, uint64(2), s.NumRecords())
	require.Equal(t, uint64(12), s.Grid().Count)
	require.Equal(t, []uint64{4}, s.Grid().Dropped)
	require.Equal(t, 0, s.Duration().Cmp(timebase.Seconds(12, 20)))
}

func TestRecordSeries_Locate(t *testing.T) {
	s, err := OpenRecordSeries(context.Background(), threeSegments(t))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, series.Position{Segment: 0, Local: 2}, s.Locate(2))
	require.Equal(t, series.Position{Segment: 1, Local: 3}, s.Locate(6))
	require.Equal(t, series.Position{Segment: 2, Local: 0}, s.Locate(7))
	require.Equal(t, series.Position{Segment: 2, Local: 4}, s.Locate(100))
}

func TestRecordSeries_Samples(t *testing.T) {
	s, err := OpenRecordSeries(context.Background(), threeSegments(t))
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SampleAt(1, 7)
	require.NoError(t, err)
	require.InDelta(t, sampleValue(2, 1, 0), v, 0)

	// global 4 is local 1 of segment 1, which is dropped
	v, err = s.SampleAt(1, 4)
	require.NoError(t, err)
	require.True(t, math.IsNaN(float64(v)))

	v, err = s.SampleAtTime(0, timebase.Unix(60, 1).Add(timebase.Seconds(2, 20)))
	require.NoError(t, err)
	require.InDelta(t, sampleValue(1, 0, 2), v, 0)

	_, err = s.SampleAt(5, 0)
	require.ErrorIs(t, err, errs.ErrRecordOutOfRange)
}

func TestRecordSeries_SampleAtTimeSkipsEmptyMember(t *testing.T) {
	paths := writeSegments(t,
		segment{startSec: 0, count: 3, records: 1},
		segment{startSec: 60, count: 0, records: 1},
		segment{startSec: 120, count: 3, records: 1},
	)
	s, err := OpenRecordSeries(context.Background(), paths)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SampleAtTime(0, timebase.Unix(61, 1))
	require.NoError(t, err)
	require.InDelta(t, sampleValue(0, 0, 2), v, 0)

	v, err = s.SampleAtTime(0, timebase.Unix(120, 1))
	require.NoError(t, err)
	require.InDelta(t, sampleValue(2, 0, 0), v, 0)
}

func TestRecordSeries_Trace(t *testing.T) {
	s, err := OpenRecordSeries(context.Background(), threeSegments(t))
	require.NoError(t, err)
	defer s.Close()

	tr, err := s.Trace(1)
	require.NoError(t, err)
	require.Len(t, tr.Values, 12)
	require.Equal(t, uint64(12), tr.Grid.Count)
	require.Equal(t, []uint64{4}, tr.Grid.Dropped)

	require.InDelta(t, sampleValue(0, 1, 2), tr.Values[2], 0)
	require.InDelta(t, sampleValue(1, 1, 0), tr.Values[3], 0)
	require.True(t, math.IsNaN(float64(tr.Values[4])))
	require.InDelta(t, sampleValue(1, 1, 3), tr.Values[6], 0)
	require.InDelta(t, sampleValue(2, 1, 4), tr.Values[11], 0)
}

func TestRecordSeries_Sidecar(t *testing.T) {
	dir := t.TempDir()
	first := createSegment(t, dir, 0, segment{startSec: 0, count: 3, records: 2})
	require.NoError(t, first.SetStatus(1, format.StatusAccepted))
	require.NoError(t, first.SetActive(1, 1, false))
	require.NoError(t, first.SetColor(0, footer.Color{R: 255, A: 255}))
	require.NoError(t, first.Close())
	second := createSegment(t, dir, 1, segment{startSec: 60, count: 3, records: 2})
	require.NoError(t, second.Close())

	s, err := OpenRecordSeries(context.Background(), []string{second.Path(), first.Path()})
	require.NoError(t, err)
	defer s.Close()

	name, err := s.Name(1)
	require.NoError(t, err)
	require.Equal(t, "roi-1", name)

	status, err := s.Status(1)
	require.NoError(t, err)
	require.Equal(t, format.StatusAccepted, status)

	c, err := s.Color(0)
	require.NoError(t, err)
	require.Equal(t, footer.Color{R: 255, A: 255}, c)

	active, err := s.Active(1, 0)
	require.NoError(t, err)
	require.True(t, active)
	active, err = s.Active(1, 1)
	require.NoError(t, err)
	require.False(t, active)

	_, err = s.Active(1, 2)
	require.ErrorIs(t, err, errs.ErrSegmentOutOfRange)
}

func TestOpenRecordSeries_RejectsOverlap(t *testing.T) {
	paths := writeSegments(t,
		segment{startSec: 0, count: 40, records: 1},
		segment{startSec: 1, count: 4, records: 1},
	)
	m := metrics.New()

	_, err := OpenRecordSeries(context.Background(), paths, WithMetrics(m))
	require.ErrorIs(t, err, errs.ErrSeriesIncompatible)

	var ie *series.IncompatibleError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, series.RuleOverlap, ie.Rule)
	require.InDelta(t, 1, testutil.ToFloat64(m.SeriesRejected.WithLabelValues("overlap")), 0)
	// every store opened for validation was released again
	require.InDelta(t, 0, testutil.ToFloat64(m.OpenStores.WithLabelValues("records")), 0)
}

func TestOpenRecordSeries_RejectsCountMismatch(t *testing.T) {
	paths := writeSegments(t,
		segment{startSec: 0, count: 3, records: 2},
		segment{startSec: 60, count: 3, records: 3},
	)

	_, err := OpenRecordSeries(context.Background(), paths)

	var ie *series.IncompatibleError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, series.RuleCount, ie.Rule)
	require.Contains(t, ie.Reason, "3 records")
}

func TestOpenRecordSeries_Errors(t *testing.T) {
	_, err := OpenRecordSeries(context.Background(), nil)
	require.ErrorIs(t, err, errs.ErrEmptySeries)

	_, err = OpenRecordSeries(context.Background(), []string{filepath.Join(t.TempDir(), "missing.trf")})
	require.ErrorIs(t, err, errs.ErrIO)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = OpenRecordSeries(ctx, threeSegments(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenRecordSeries_Queue(t *testing.T) {
	q := ioqueue.New()
	defer q.Close()

	s, err := OpenRecordSeries(context.Background(), threeSegments(t), WithQueue(q))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	q.Close()
	_, err = OpenRecordSeries(context.Background(), threeSegments(t), WithQueue(q))
	require.ErrorIs(t, err, ioqueue.ErrClosed)
}

func TestOpenRecordSeries_Catalog(t *testing.T) {
	cat, err := catalog.Open("", nil)
	require.NoError(t, err)
	defer cat.Close()

	paths := threeSegments(t)

	s, err := OpenRecordSeries(context.Background(), paths, WithCatalog(cat))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	n, err := cat.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	core, logs := observer.New(zapcore.DebugLevel)
	s, err = OpenRecordSeries(context.Background(), paths, WithCatalog(cat), WithLogger(zap.New(core)))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 3, logs.FilterMessage("catalog hit").Len())
	require.Equal(t, uint64(12), s.Grid().Count)
	m, err := s.Member(0)
	require.NoError(t, err)
	require.Equal(t, paths[0], m.Path())
}

func TestNewRecordSeries_Writer(t *testing.T) {
	dir := t.TempDir()
	closed := createSegment(t, dir, 0, segment{startSec: 0, count: 3, records: 2})
	require.NoError(t, closed.Close())
	readOnly, err := record.Open(closed.Path())
	require.NoError(t, err)

	writer := createSegment(t, dir, 1, segment{startSec: 60, count: 3, records: 1})

	s, err := NewRecordSeries([]*record.Store{writer, readOnly})
	require.NoError(t, err)

	w, err := s.Writer()
	require.NoError(t, err)
	require.Same(t, writer, w)

	require.NoError(t, w.WriteBlocks(1, []byte{0, 0, 0, 0}, record.AppendTrace(nil, []float32{1, 2, 3})))
	require.NoError(t, w.CloseForWriting())

	_, err = s.Writer()
	require.ErrorIs(t, err, errs.ErrNotWritable)
	require.ErrorIs(t, err, errs.ErrClosedFileMutation)
	require.NoError(t, s.Close())
}

func TestNewRecordSeries_Errors(t *testing.T) {
	_, err := NewRecordSeries(nil)
	require.ErrorIs(t, err, errs.ErrEmptySeries)

	dir := t.TempDir()
	early := createSegment(t, dir, 0, segment{startSec: 0, count: 3, records: 1})
	defer early.Close()
	late := createSegment(t, dir, 1, segment{startSec: 60, count: 3, records: 1})
	defer late.Close()

	_, err = NewRecordSeries([]*record.Store{early, late})
	require.ErrorIs(t, err, errs.ErrSeriesIncompatible)
}

func TestRecordSeries_Append(t *testing.T) {
	dir := t.TempDir()
	a := createSegment(t, dir, 0, segment{startSec: 60, count: 3, records: 1})
	require.NoError(t, a.Close())
	b := createSegment(t, dir, 1, segment{startSec: 0, count: 3, records: 1})
	require.NoError(t, b.Close())
	overlapping := createSegment(t, dir, 2, segment{startSec: 0, count: 3, records: 1})
	require.NoError(t, overlapping.Close())

	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.New()
	s, err := NewRecordSeries([]*record.Store{a}, WithLogger(zap.New(core)), WithMetrics(m))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(b))
	require.Equal(t, 2, s.Len())
	first, err := s.Member(0)
	require.NoError(t, err)
	require.Same(t, b, first)

	err = s.Append(overlapping)
	var ie *series.IncompatibleError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, series.RuleOverlap, ie.Rule)
	require.Equal(t, 2, s.Len())
	require.InDelta(t, 1, testutil.ToFloat64(m.SeriesRejected.WithLabelValues("overlap")), 0)
	require.Equal(t, 1, logs.FilterMessage("series member rejected").Len())
}
