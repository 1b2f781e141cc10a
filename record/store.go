package record

import (
	"fmt"
	"math"
	"os"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arloliu/tracefile/endian"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/footer"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/internal/footerio"
	"github.com/arloliu/tracefile/internal/pool"
	"github.com/arloliu/tracefile/internal/storeopt"
	"github.com/arloliu/tracefile/series"
)

const (
	metricKind = "records"
	sampleSize = 4 // one float32 per recorded sample
)

// Config describes a new record file.
type Config struct {
	Kind    format.DataKind
	Grid    grid.Grid
	Shape   series.Shape
	IsROI   bool
	Layout  footer.Layout
	History series.History
}

// Validate checks the layout and the grid.
func (c Config) Validate() error {
	if c.Layout.Stride() == 0 {
		return fmt.Errorf("%w: zero record stride", errs.ErrInvalidLayout)
	}
	if c.Layout.TraceBytes%sampleSize != 0 {
		return fmt.Errorf("%w: trace block of %d bytes is not a whole number of float32 samples",
			errs.ErrInvalidLayout, c.Layout.TraceBytes)
	}

	return c.Grid.Validate()
}

// Store is a record file. See the package documentation for the lifecycle.
type Store struct {
	path  string
	file  *os.File
	state format.State
	cfg   *storeopt.Config
	meta  footer.Record
}

// Create creates or truncates path and returns a WriteOpen store.
func Create(path string, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sc, err := storeopt.Resolve(opts...)
	if err != nil {
		return nil, err
	}

	sc.Lock.Lock()
	defer sc.Lock.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errs.IO("create", err)
	}

	s := &Store{
		path:  path,
		file:  f,
		state: format.StateWriteOpen,
		cfg:   sc,
		meta: footer.Record{
			SchemaVersion: footer.RecordSchemaVersion,
			Kind:          cfg.Kind,
			Grid:          cfg.Grid.Clone(),
			Shape:         cfg.Shape,
			IsROI:         cfg.IsROI,
			Layout:        cfg.Layout,
			History:       slices.Clone(cfg.History),
			Names:         []string{},
			Status:        []format.Status{},
			Activity:      [][]bool{},
			Colors:        []footer.Color{},
		},
	}

	sc.Metrics.StoreOpened(metricKind)
	sc.Logger.Debug("record store created",
		zap.String("path", path),
		zap.Uint64("stride", cfg.Layout.Stride()),
		zap.Stringer("grid", cfg.Grid))

	return s, nil
}

// Open opens a closed record file read-only. The footer is located through the
// trailer, verified against its checksum and decoded with every older schema
// version upgraded to the current one.
func Open(path string, opts ...Option) (*Store, error) {
	sc, err := storeopt.Resolve(opts...)
	if err != nil {
		return nil, err
	}

	sc.Lock.Lock()
	defer sc.Lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO("open", err)
	}

	meta, err := readFooter(f)
	sc.Metrics.FooterDecoded(metricKind, err, metaDefaulted(meta))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{path: path, file: f, state: format.StateReadOpen, cfg: sc, meta: *meta}

	sc.Metrics.StoreOpened(metricKind)
	sc.Logger.Debug("record store opened",
		zap.String("path", path),
		zap.Int("records", meta.Len()),
		zap.Int("schema_version", meta.SchemaVersion))
	if len(meta.Defaulted) > 0 {
		sc.Logger.Warn("footer predates current schema, defaults applied",
			zap.String("path", path),
			zap.Int("schema_version", meta.SchemaVersion),
			zap.Strings("keys", meta.Defaulted))
	}

	return s, nil
}

func readFooter(f *os.File) (*footer.Record, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errs.IO("stat", err)
	}

	block, err := footerio.Load(f, info.Size(), format.FileRecords)
	if err != nil {
		return nil, err
	}

	meta, err := footer.DecodeRecord(block.Footer)
	if err != nil {
		return nil, err
	}
	if int(block.Trailer.SchemaVersion) != meta.SchemaVersion {
		return nil, fmt.Errorf("%w: trailer version %d, footer version %d",
			errs.ErrMalformedFooter, block.Trailer.SchemaVersion, meta.SchemaVersion)
	}
	if want := uint64(meta.Len()) * meta.Layout.Stride(); block.Trailer.FooterOffset != want {
		return nil, fmt.Errorf("%w: footer at %d, %d records end at %d",
			errs.ErrMalformedFooter, block.Trailer.FooterOffset, meta.Len(), want)
	}

	return meta, nil
}

func metaDefaulted(meta *footer.Record) []string {
	if meta == nil {
		return nil
	}

	return meta.Defaulted
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// State returns the lifecycle state.
func (s *Store) State() format.State {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.state
}

// Count returns the number of committed records.
func (s *Store) Count() uint64 {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.count()
}

func (s *Store) count() uint64 {
	return uint64(s.meta.Len())
}

// Kind returns the data kind.
func (s *Store) Kind() format.DataKind {
	return s.meta.Kind
}

// Grid returns a copy of the sampling grid.
func (s *Store) Grid() grid.Grid {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.meta.Grid.Clone()
}

// Shape returns the spatial shape.
func (s *Store) Shape() series.Shape {
	return s.meta.Shape
}

// Layout returns the record layout.
func (s *Store) Layout() footer.Layout {
	return s.meta.Layout
}

// IsROI reports whether the records are regions of interest.
func (s *Store) IsROI() bool {
	return s.meta.IsROI
}

// History returns a copy of the processing history.
func (s *Store) History() series.History {
	return slices.Clone(s.meta.History)
}

// SchemaVersion returns the footer version the file was read from, or the
// version that will be written.
func (s *Store) SchemaVersion() int {
	return s.meta.SchemaVersion
}

// Defaulted lists the footer keys filled with defaults on open.
func (s *Store) Defaulted() []string {
	return slices.Clone(s.meta.Defaulted)
}

// Member returns the series view of the store.
func (s *Store) Member() series.Member {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	m := s.meta.Member(s.path)
	m.Grid = m.Grid.Clone()

	return m
}

// WriteRecord writes one full record. index == Count appends; index < Count
// overwrites the payload in place and resets the record's sidecar attributes.
//
// Returns:
//   - errs.ErrClosedFileMutation after CloseForWriting or on a read-only store
//   - errs.ErrPayloadSize when len(payload) is not the record stride
//   - errs.ErrNonSequential when index > Count
func (s *Store) WriteRecord(index uint64, payload []byte) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.writeRecord(index, payload)
}

// WriteBlocks writes a record from its image and trace blocks.
func (s *Store) WriteBlocks(index uint64, image, trace []byte) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	l := s.meta.Layout
	if uint64(len(image)) != l.ImageBytes || uint64(len(trace)) != l.TraceBytes {
		return fmt.Errorf("%w: blocks of %d+%d bytes, layout is %d+%d",
			errs.ErrPayloadSize, len(image), len(trace), l.ImageBytes, l.TraceBytes)
	}

	buf := pool.GetRecordBuffer()
	defer pool.PutRecordBuffer(buf)
	buf.Grow(int(l.Stride()))
	_, _ = buf.Write(image)
	_, _ = buf.Write(trace)

	return s.writeRecord(index, buf.Bytes())
}

func (s *Store) writeRecord(index uint64, payload []byte) error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	stride := s.meta.Layout.Stride()
	if uint64(len(payload)) != stride {
		return fmt.Errorf("%w: got %d bytes, stride is %d", errs.ErrPayloadSize, len(payload), stride)
	}

	count := s.count()
	if index > count {
		return fmt.Errorf("%w: index %d, count %d", errs.ErrNonSequential, index, count)
	}

	if _, err := s.file.WriteAt(payload, int64(index*stride)); err != nil {
		return errs.IO("write record", err)
	}

	overwrite := index < count
	if overwrite {
		s.resetSidecar(int(index))
	} else {
		s.appendSidecar()
	}
	s.cfg.Metrics.RecordWritten(overwrite, len(payload))

	return nil
}

// ReadRecord returns a copy of the full payload of record index.
func (s *Store) ReadRecord(index uint64) ([]byte, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.readAt(index, 0, s.meta.Layout.Stride())
}

// ReadImage returns the image block of record index.
func (s *Store) ReadImage(index uint64) ([]byte, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.readAt(index, 0, s.meta.Layout.ImageBytes)
}

// ReadTrace decodes the trace block of record index: one value per recorded
// sample, in recorded order.
func (s *Store) ReadTrace(index uint64) ([]float32, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.readTrace(index)
}

func (s *Store) readTrace(index uint64) ([]float32, error) {
	l := s.meta.Layout
	block, err := s.readAt(index, l.ImageBytes, l.TraceBytes)
	if err != nil {
		return nil, err
	}

	return DecodeTrace(block), nil
}

// ReadSamples returns one value per grid index of record index. Invalid indices
// and valid indices beyond the trace block are NaN.
func (s *Store) ReadSamples(index uint64) ([]float32, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	recorded, err := s.readTrace(index)
	if err != nil {
		return nil, err
	}

	g := s.meta.Grid
	out := make([]float32, g.Count)
	for i := range out {
		out[i] = float32(math.NaN())
	}

	r := 0
	for i := range g.ValidIndices() {
		if r >= len(recorded) {
			break
		}
		out[i] = recorded[r]
		r++
	}

	return out, nil
}

// SampleAt returns the value of record index at grid index i, or NaN when i is
// dropped, cropped or was never recorded.
func (s *Store) SampleAt(index, i uint64) (float32, error) {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	g := s.meta.Grid
	if i >= g.Count {
		return 0, fmt.Errorf("%w: sample %d of %d", errs.ErrInvalidIndex, i, g.Count)
	}
	if index >= s.count() {
		return 0, fmt.Errorf("%w: record %d of %d", errs.ErrRecordOutOfRange, index, s.count())
	}
	if !g.IsValid(i) {
		return float32(math.NaN()), nil
	}

	offset := g.RecordedIndex(i) * sampleSize
	if offset+sampleSize > s.meta.Layout.TraceBytes {
		return float32(math.NaN()), nil
	}

	b, err := s.readAt(index, s.meta.Layout.ImageBytes+offset, sampleSize)
	if err != nil {
		return 0, err
	}

	return endian.Float32(endian.GetLittleEndianEngine(), b), nil
}

// readAt reads n bytes at offset within record index.
func (s *Store) readAt(index, offset, n uint64) ([]byte, error) {
	if s.file == nil {
		return nil, errs.ErrAlreadyClosed
	}
	if count := s.count(); index >= count {
		return nil, fmt.Errorf("%w: record %d of %d", errs.ErrRecordOutOfRange, index, count)
	}

	buf := make([]byte, n)
	if _, err := s.file.ReadAt(buf, int64(index*s.meta.Layout.Stride()+offset)); err != nil {
		return nil, errs.IO("read record", err)
	}

	return buf, nil
}

// SetDropped replaces the dropped indices of the grid. Indices covered by a
// cropped range are ignored.
func (s *Store) SetDropped(dropped []uint64) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if err := s.checkWritable(); err != nil {
		return err
	}
	s.meta.Grid.SetDropped(dropped)

	return nil
}

// SetCropped replaces the cropped ranges of the grid.
func (s *Store) SetCropped(ranges []grid.Range) error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if err := s.checkWritable(); err != nil {
		return err
	}
	s.meta.Grid.SetCropped(ranges)

	return nil
}

// CloseForWriting commits the footer after the last record and moves the store
// to Closed. The payload region is not touched.
func (s *Store) CloseForWriting() error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	return s.closeForWriting()
}

func (s *Store) closeForWriting() error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	data, err := footer.EncodeRecord(&s.meta)
	if err != nil {
		return err
	}

	offset := int64(s.count() * s.meta.Layout.Stride())
	stored, err := footerio.Commit(s.file, offset, format.FileRecords, footer.RecordSchemaVersion, s.cfg.Compression, data)
	if err != nil {
		return err
	}
	s.state = format.StateClosed

	s.cfg.Metrics.FooterWritten(metricKind, stored)
	s.cfg.Logger.Debug("record footer committed",
		zap.String("path", s.path),
		zap.Uint64("records", s.count()),
		zap.Int64("footer_offset", offset),
		zap.Int("footer_bytes", stored))

	return nil
}

// Close releases the file, closing it for writing first when still WriteOpen.
// Closing twice is a no-op.
func (s *Store) Close() error {
	s.cfg.Lock.Lock()
	defer s.cfg.Lock.Unlock()

	if s.file == nil {
		return nil
	}

	var err error
	if s.state == format.StateWriteOpen {
		err = s.closeForWriting()
		s.state = format.StateClosed
	}
	err = multierr.Append(err, errs.IO("close", s.file.Close()))
	s.file = nil

	s.cfg.Metrics.StoreClosed(metricKind)

	return err
}

func (s *Store) checkWritable() error {
	switch {
	case s.state == format.StateReadOpen:
		return errs.ErrReadOnly
	case s.state == format.StateClosed || s.file == nil:
		return errs.ErrAlreadyClosed
	default:
		return nil
	}
}
