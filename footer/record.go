package footer

import (
	"fmt"
	"slices"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/series"
)

// RecordSchemaVersion is the newest record footer version this package writes and
// understands.
const RecordSchemaVersion = 4

// Record footer keys, grouped by the version that introduced them.
const (
	// v0
	keyNames   = "names"
	keyStatus  = "status"
	keyGrid    = "grid"
	keyShape   = "shape"
	keyIsROI   = "is_roi"
	keyLayout  = "layout"
	keyKind    = "kind"
	keyHistory = "history"
	// v1
	keyActivity = "activity"
	// v2
	keyColors = "colors"
	// v3
	keyAlignmentSize     = "alignment_size"
	keyMatchIndices      = "match_indices"
	keyPairwiseScores    = "pairwise_scores"
	keyCentroidDistances = "centroid_distances"
	// v4
	keyMetrics = "metrics"
)

// Color is an RGBA record color, encoded as "#rrggbbaa".
type Color struct {
	R, G, B, A uint8
}

// White is the color of records written before colors existed.
var White = Color{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts "#rrggbb" and "#rrggbbaa".
func (c *Color) UnmarshalText(text []byte) error {
	s := string(text)

	var n int
	var err error
	switch len(s) {
	case 7:
		c.A = 0xff
		n, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
		n++
	case 9:
		n, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	}
	if err != nil || n != 4 {
		return fmt.Errorf("footer: invalid color %q", s)
	}

	return nil
}

// Layout is the fixed record stride: an image block followed by a trace block.
type Layout struct {
	ImageBytes uint64 `yaml:"image_bytes"`
	TraceBytes uint64 `yaml:"trace_bytes"`
}

// Stride returns the size of one record.
func (l Layout) Stride() uint64 {
	return l.ImageBytes + l.TraceBytes
}

// Alignment holds the cross-segment record matching computed when a series is
// aligned. The per-record slices are index-aligned with the records.
type Alignment struct {
	// Size is the number of records in the aligned series.
	Size int
	// MatchIndices is the matching record in the reference segment, -1 for none.
	MatchIndices []int64
	// PairwiseScores is the match score of each record.
	PairwiseScores []float64
	// CentroidDistances is the centroid distance to the matched record in pixels.
	CentroidDistances []float64
}

// ImageMetrics are derived per-record image statistics.
type ImageMetrics struct {
	ComponentCount uint32  `yaml:"component_count"`
	CentroidX      float64 `yaml:"centroid_x"`
	CentroidY      float64 `yaml:"centroid_y"`
	BoundingWidth  float64 `yaml:"bounding_width"`
}

// Record is the decoded footer of a record file.
type Record struct {
	SchemaVersion int

	Kind    format.DataKind
	Grid    grid.Grid
	Shape   series.Shape
	IsROI   bool
	Layout  Layout
	History series.History

	// Per-record sidecar attributes, index-aligned with the records.
	Names    []string
	Status   []format.Status
	Activity [][]bool
	Colors   []Color
	Metrics  []ImageMetrics

	Alignment Alignment

	// Defaulted lists the keys that were absent and filled with defaults because
	// the file predates them.
	Defaulted []string
}

// Len returns the number of records described.
func (r *Record) Len() int {
	return len(r.Names)
}

// Member returns the series view of the file.
func (r *Record) Member(name string) series.Member {
	return series.Member{Name: name, Grid: r.Grid, Shape: r.Shape, Kind: r.Kind, History: r.History}
}

type recordStep struct {
	version  int
	encode   func(r *Record, m *mapping) error
	decode   func(r *Record, raw rawBlock) error
	defaults func(r *Record) []string
}

// recordLadder holds one step per schema version, indexed by version.
var recordLadder = []recordStep{
	{version: 0, encode: encodeRecordV0, decode: decodeRecordV0},
	{version: 1, encode: encodeRecordV1, decode: decodeRecordV1, defaults: defaultRecordV1},
	{version: 2, encode: encodeRecordV2, decode: decodeRecordV2, defaults: defaultRecordV2},
	{version: 3, encode: encodeRecordV3, decode: decodeRecordV3, defaults: defaultRecordV3},
	{version: 4, encode: encodeRecordV4, decode: decodeRecordV4, defaults: defaultRecordV4},
}

// EncodeRecord encodes r at RecordSchemaVersion.
func EncodeRecord(r *Record) ([]byte, error) {
	return EncodeRecordVersion(r, RecordSchemaVersion)
}

// EncodeRecordVersion encodes r at an older schema version, omitting every key
// introduced after it.
func EncodeRecordVersion(r *Record, version int) ([]byte, error) {
	if version < 0 || version > RecordSchemaVersion {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnknownSchemaVersion, version)
	}
	if err := r.validate(version); err != nil {
		return nil, err
	}

	m := newMapping()
	if err := m.put(keySchemaVersion, version); err != nil {
		return nil, err
	}
	if err := m.put(keyType, TypeRecords); err != nil {
		return nil, err
	}
	for _, step := range recordLadder[:version+1] {
		if err := step.encode(r, m); err != nil {
			return nil, err
		}
	}

	return m.marshal()
}

// DecodeRecord decodes a record footer of any known schema version.
func DecodeRecord(data []byte) (*Record, error) {
	raw, version, err := parseRaw(data)
	if err != nil {
		return nil, err
	}
	if version > RecordSchemaVersion {
		return nil, fmt.Errorf("%w: record footer version %d, reader supports up to %d",
			errs.ErrUnknownSchemaVersion, version, RecordSchemaVersion)
	}
	if err := raw.checkType(TypeRecords); err != nil {
		return nil, err
	}

	r := &Record{SchemaVersion: version}
	for v := version; v >= 0; v-- {
		if err := recordLadder[v].decode(r, raw); err != nil {
			return nil, err
		}
	}
	for _, step := range recordLadder[version+1:] {
		r.Defaulted = append(r.Defaulted, step.defaults(r)...)
	}

	if err := r.validate(RecordSchemaVersion); err != nil {
		return nil, err
	}

	return r, nil
}

// validate checks that every per-record array known at version has one entry
// per record.
func (r *Record) validate(version int) error {
	n := len(r.Names)
	if err := checkLen(keyStatus, len(r.Status), n); err != nil {
		return err
	}
	if err := r.Grid.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrMalformedFooter, err)
	}
	if r.Layout.Stride() == 0 {
		return fmt.Errorf("%w: zero record stride", errs.ErrMalformedFooter)
	}
	if version >= 1 {
		if err := checkLen(keyActivity, len(r.Activity), n); err != nil {
			return err
		}
	}
	if version >= 2 {
		if err := checkLen(keyColors, len(r.Colors), n); err != nil {
			return err
		}
	}
	if version >= 3 && r.Alignment.MatchIndices != nil {
		if err := checkLen(keyMatchIndices, len(r.Alignment.MatchIndices), n); err != nil {
			return err
		}
		if err := checkLen(keyPairwiseScores, len(r.Alignment.PairwiseScores), n); err != nil {
			return err
		}
		if err := checkLen(keyCentroidDistances, len(r.Alignment.CentroidDistances), n); err != nil {
			return err
		}
	}
	if version >= 4 && r.Metrics != nil {
		if err := checkLen(keyMetrics, len(r.Metrics), n); err != nil {
			return err
		}
	}

	return nil
}

// v0: base layout, names, status, grid, shape.

func encodeRecordV0(r *Record, m *mapping) error {
	status := make([]string, len(r.Status))
	for i, s := range r.Status {
		status[i] = s.String()
	}
	history := r.History
	if history == nil {
		history = series.History{}
	}
	names := r.Names
	if names == nil {
		names = []string{}
	}

	for _, kv := range []struct {
		key   string
		value any
	}{
		{keyKind, r.Kind.String()},
		{keyGrid, r.Grid},
		{keyShape, r.Shape},
		{keyIsROI, r.IsROI},
		{keyLayout, r.Layout},
		{keyHistory, []string(history)},
		{keyNames, names},
		{keyStatus, status},
	} {
		if err := m.put(kv.key, kv.value); err != nil {
			return err
		}
	}

	return nil
}

func decodeRecordV0(r *Record, raw rawBlock) error {
	var kind string
	var status []string
	var history []string

	for _, kv := range []struct {
		key string
		out any
	}{
		{keyKind, &kind},
		{keyGrid, &r.Grid},
		{keyShape, &r.Shape},
		{keyIsROI, &r.IsROI},
		{keyLayout, &r.Layout},
		{keyHistory, &history},
		{keyNames, &r.Names},
		{keyStatus, &status},
	} {
		if err := raw.decode(kv.key, kv.out); err != nil {
			return err
		}
	}

	r.Kind = format.ParseDataKind(kind)
	r.History = series.History(history)
	r.Status = make([]format.Status, len(status))
	for i, s := range status {
		st, err := parseStatus(s)
		if err != nil {
			return err
		}
		r.Status[i] = st
	}
	if r.Names == nil {
		r.Names = []string{}
	}

	return nil
}

func parseStatus(s string) (format.Status, error) {
	for _, st := range []format.Status{format.StatusUndecided, format.StatusAccepted, format.StatusRejected} {
		if st.String() == s {
			return st, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown status %q", errs.ErrMalformedFooter, s)
}

// v1: per-record activity flags.

func encodeRecordV1(r *Record, m *mapping) error {
	activity := r.Activity
	if activity == nil {
		activity = [][]bool{}
	}

	return m.put(keyActivity, activity)
}

func decodeRecordV1(r *Record, raw rawBlock) error {
	return raw.decode(keyActivity, &r.Activity)
}

// defaultRecordV1 marks every record active, matching files written before
// activity was tracked.
func defaultRecordV1(r *Record) []string {
	r.Activity = make([][]bool, r.Len())
	for i := range r.Activity {
		r.Activity[i] = []bool{true}
	}

	return []string{keyActivity}
}

// v2: per-record colors.

func encodeRecordV2(r *Record, m *mapping) error {
	colors := r.Colors
	if colors == nil {
		colors = []Color{}
	}

	return m.put(keyColors, colors)
}

func decodeRecordV2(r *Record, raw rawBlock) error {
	return raw.decode(keyColors, &r.Colors)
}

func defaultRecordV2(r *Record) []string {
	r.Colors = slices.Repeat([]Color{White}, r.Len())
	return []string{keyColors}
}

// v3: series alignment.

func encodeRecordV3(r *Record, m *mapping) error {
	a := r.Alignment
	for _, kv := range []struct {
		key   string
		value any
	}{
		{keyAlignmentSize, a.Size},
		{keyMatchIndices, nonNil(a.MatchIndices)},
		{keyPairwiseScores, nonNil(a.PairwiseScores)},
		{keyCentroidDistances, nonNil(a.CentroidDistances)},
	} {
		if err := m.put(kv.key, kv.value); err != nil {
			return err
		}
	}

	return nil
}

func decodeRecordV3(r *Record, raw rawBlock) error {
	a := &r.Alignment
	for _, kv := range []struct {
		key string
		out any
	}{
		{keyAlignmentSize, &a.Size},
		{keyMatchIndices, &a.MatchIndices},
		{keyPairwiseScores, &a.PairwiseScores},
		{keyCentroidDistances, &a.CentroidDistances},
	} {
		if err := raw.decode(kv.key, kv.out); err != nil {
			return err
		}
	}

	// an unaligned file stores empty arrays
	if len(a.MatchIndices) == 0 {
		a.MatchIndices, a.PairwiseScores, a.CentroidDistances = nil, nil, nil
	}

	return nil
}

func defaultRecordV3(r *Record) []string {
	r.Alignment = Alignment{}
	return []string{keyAlignmentSize, keyMatchIndices, keyPairwiseScores, keyCentroidDistances}
}

// v4: per-record image metrics.

func encodeRecordV4(r *Record, m *mapping) error {
	return m.put(keyMetrics, nonNil(r.Metrics))
}

func decodeRecordV4(r *Record, raw rawBlock) error {
	if err := raw.decode(keyMetrics, &r.Metrics); err != nil {
		return err
	}
	if len(r.Metrics) == 0 {
		r.Metrics = nil
	}

	return nil
}

func defaultRecordV4(r *Record) []string {
	r.Metrics = nil
	return []string{keyMetrics}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
