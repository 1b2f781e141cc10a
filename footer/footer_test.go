package footer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/grid"
	"github.com/arloliu/tracefile/series"
	"github.com/arloliu/tracefile/timebase"
)

func sampleRecord() *Record {
	g := grid.New(timebase.Unix(1_700_000_000, 1), timebase.Hz(30, 1), 100)
	g.SetCropped([]grid.Range{{Lo: 90, Hi: 100}})
	g.SetDropped([]uint64{4, 17})

	return &Record{
		Kind:     format.KindCellTrace,
		Grid:     g,
		Shape:    series.Shape{Width: 512, Height: 256, PixelSizeX: 0.8, PixelSizeY: 0.8},
		IsROI:    true,
		Layout:   Layout{ImageBytes: 64, TraceBytes: 88 * 4},
		History:  series.History{"motion-correct", "df-over-f"},
		Names:    []string{"cell-0", "cell-1", "cell-2"},
		Status:   []format.Status{format.StatusAccepted, format.StatusUndecided, format.StatusRejected},
		Activity: [][]bool{{true}, {false}, {true, false}},
		Colors:   []Color{{R: 0xff, A: 0xff}, White, {G: 0x80, B: 0x40, A: 0x7f}},
		Metrics: []ImageMetrics{
			{ComponentCount: 1, CentroidX: 10.5, CentroidY: 3, BoundingWidth: 7},
			{ComponentCount: 2, CentroidX: 100, CentroidY: 42.25, BoundingWidth: 12},
			{},
		},
		Alignment: Alignment{
			Size:              3,
			MatchIndices:      []int64{0, -1, 2},
			PairwiseScores:    []float64{0.9, 0, 0.75},
			CentroidDistances: []float64{1.5, 0, 2.25},
		},
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	r := sampleRecord()

	data, err := EncodeRecord(r)
	require.NoError(t, err)

	got, err := DecodeRecord(data)
	require.NoError(t, err)

	require.Equal(t, RecordSchemaVersion, got.SchemaVersion)
	require.Empty(t, got.Defaulted)
	require.Equal(t, r.Kind, got.Kind)
	require.True(t, r.Grid.Equal(got.Grid), "grid %s != %s", r.Grid, got.Grid)
	require.Equal(t, r.Shape, got.Shape)
	require.True(t, got.IsROI)
	require.Equal(t, r.Layout, got.Layout)
	require.Equal(t, r.History, got.History)
	require.Equal(t, r.Names, got.Names)
	require.Equal(t, r.Status, got.Status)
	require.Equal(t, r.Activity, got.Activity)
	require.Equal(t, r.Colors, got.Colors)
	require.Equal(t, r.Metrics, got.Metrics)
	require.Equal(t, r.Alignment, got.Alignment)
}

func TestRecord_KeysAreReadableText(t *testing.T) {
	data, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)

	text := string(data)
	require.True(t, strings.HasPrefix(text, "schema_version: 4\ntype: records\n"), text)
	require.Contains(t, text, "kind: cell-trace")
	require.Contains(t, text, "step: 1/30")
	require.Contains(t, text, "#ffffffff")
}

func TestRecord_V1ReadByCurrentDecoder(t *testing.T) {
	r := sampleRecord()

	data, err := EncodeRecordVersion(r, 1)
	require.NoError(t, err)
	require.NotContains(t, string(data), keyColors)
	require.NotContains(t, string(data), keyMetrics)

	got, err := DecodeRecord(data)
	require.NoError(t, err)

	require.Equal(t, 1, got.SchemaVersion)
	require.Equal(t, []Color{White, White, White}, got.Colors)
	require.Empty(t, got.Metrics)
	require.Equal(t, Alignment{}, got.Alignment)
	require.Equal(t, r.Activity, got.Activity)
	require.Equal(t, r.Names, got.Names)
	require.ElementsMatch(t, []string{
		keyColors, keyAlignmentSize, keyMatchIndices, keyPairwiseScores, keyCentroidDistances, keyMetrics,
	}, got.Defaulted)
}

func TestRecord_V0DefaultsActivityToTrue(t *testing.T) {
	data, err := EncodeRecordVersion(sampleRecord(), 0)
	require.NoError(t, err)

	got, err := DecodeRecord(data)
	require.NoError(t, err)
	require.Equal(t, [][]bool{{true}, {true}, {true}}, got.Activity)
	require.Contains(t, got.Defaulted, keyActivity)
}

func TestRecord_EveryVersionDecodes(t *testing.T) {
	r := sampleRecord()
	for v := 0; v <= RecordSchemaVersion; v++ {
		data, err := EncodeRecordVersion(r, v)
		require.NoError(t, err, "version %d", v)

		got, err := DecodeRecord(data)
		require.NoError(t, err, "version %d", v)
		require.Equal(t, v, got.SchemaVersion)
		require.Equal(t, r.Names, got.Names)
		require.Len(t, got.Colors, r.Len())
		require.Len(t, got.Activity, r.Len())
	}
}

func TestRecord_NewerVersionRejected(t *testing.T) {
	data, err := EncodeRecord(sampleRecord())
	require.NoError(t, err)

	data = []byte(strings.Replace(string(data), "schema_version: 4", "schema_version: 5", 1))
	_, err = DecodeRecord(data)
	require.ErrorIs(t, err, errs.ErrUnknownSchemaVersion)
	require.ErrorIs(t, err, errs.ErrSchema)
}

func TestRecord_MissingKey(t *testing.T) {
	data, err := EncodeRecordVersion(sampleRecord(), 2)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, yaml.Unmarshal(data, &m))
	delete(m, keyActivity)
	data, err = yaml.Marshal(m)
	require.NoError(t, err)

	_, err = DecodeRecord(data)
	require.ErrorIs(t, err, errs.ErrMissingFooterKey)
	require.ErrorContains(t, err, keyActivity)
}

func TestRecord_TypeTagMismatch(t *testing.T) {
	data, err := EncodeChannels(&Channels{Start: timebase.Unix(0, 1)})
	require.NoError(t, err)

	_, err = DecodeRecord(data)
	require.ErrorIs(t, err, errs.ErrTypeTagMismatch)
}

func TestRecord_MalformedFooter(t *testing.T) {
	_, err := DecodeRecord([]byte("- not\n- a mapping\n"))
	require.ErrorIs(t, err, errs.ErrMalformedFooter)

	_, err = DecodeRecord([]byte("type: records\n"))
	require.ErrorIs(t, err, errs.ErrMissingFooterKey)
}

func TestRecord_MisalignedArrays(t *testing.T) {
	r := sampleRecord()
	r.Status = r.Status[:2]

	_, err := EncodeRecord(r)
	require.ErrorIs(t, err, errs.ErrMalformedFooter)
}

func TestColor_Text(t *testing.T) {
	require.Equal(t, "#ffffffff", White.String())

	var c Color
	require.NoError(t, c.UnmarshalText([]byte("#102030")))
	require.Equal(t, Color{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, c)

	require.NoError(t, c.UnmarshalText([]byte("#10203040")))
	require.Equal(t, Color{R: 0x10, G: 0x20, B: 0x30, A: 0x40}, c)

	require.Error(t, c.UnmarshalText([]byte("red")))
}

func TestChannels_RoundTrip(t *testing.T) {
	c := &Channels{
		Start:        timebase.UnixMicro(1_700_000_000_000_000),
		PacketFormat: format.PacketTagged,
		Channels: []Channel{
			{Name: "gpio0", Kind: format.ChannelSparse, StartOffsetMicros: 10, SampleCount: 3},
			{Name: "lick", Kind: format.ChannelDense, Step: timebase.Hz(1000, 1), StartOffsetMicros: 0, SampleCount: 500},
		},
		PacketCount:      503,
		LastOffsetMicros: 499_000,
	}

	data, err := EncodeChannels(c)
	require.NoError(t, err)

	got, err := DecodeChannels(data)
	require.NoError(t, err)
	require.Equal(t, ChannelSchemaVersion, got.SchemaVersion)
	require.True(t, got.Start.Equal(c.Start))
	require.Equal(t, c.PacketFormat, got.PacketFormat)
	require.Len(t, got.Channels, 2)
	for i := range c.Channels {
		require.Equal(t, c.Channels[i].Name, got.Channels[i].Name)
		require.Equal(t, c.Channels[i].Kind, got.Channels[i].Kind)
		require.True(t, c.Channels[i].Step.Equal(got.Channels[i].Step))
		require.Equal(t, c.Channels[i].SampleCount, got.Channels[i].SampleCount)
	}
	require.Equal(t, c.PacketCount, got.PacketCount)
	require.Equal(t, c.LastOffsetMicros, got.LastOffsetMicros)
}

func TestChannels_V0Defaults(t *testing.T) {
	c := &Channels{
		Start:        timebase.Unix(0, 1),
		PacketFormat: format.PacketLegacy,
		Channels: []Channel{
			{Name: "a", SampleCount: 3, StartOffsetMicros: 50},
			{Name: "b", SampleCount: 4, StartOffsetMicros: 20},
		},
		PacketCount: 99,
	}

	data, err := EncodeChannelsVersion(c, 0)
	require.NoError(t, err)

	got, err := DecodeChannels(data)
	require.NoError(t, err)
	require.Equal(t, 0, got.SchemaVersion)
	require.Equal(t, format.PacketLegacy, got.PacketFormat)
	require.Equal(t, uint64(7), got.PacketCount)
	require.Equal(t, uint64(50), got.LastOffsetMicros)
	require.Equal(t, []string{keyPacketCount, keyLastOffsetMicros}, got.Defaulted)
}

func TestChannels_DuplicateName(t *testing.T) {
	data, err := EncodeChannels(&Channels{
		Start:    timebase.Unix(0, 1),
		Channels: []Channel{{Name: "x"}, {Name: "x"}},
	})
	require.NoError(t, err)

	_, err = DecodeChannels(data)
	require.ErrorIs(t, err, errs.ErrMalformedFooter)
}
