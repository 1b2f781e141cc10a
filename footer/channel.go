package footer

import (
	"fmt"

	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/timebase"
)

// ChannelSchemaVersion is the newest channel footer version.
const ChannelSchemaVersion = 1

const (
	// v0
	keyStart        = "start"
	keyPacketFormat = "packet_format"
	keyChannelTable = "channels"
	// v1
	keyPacketCount      = "packet_count"
	keyLastOffsetMicros = "last_offset_micros"
)

// Channel describes one named channel of a packet file.
type Channel struct {
	Name string
	Kind format.ChannelKind

	// Step is zero for sparse channels.
	Step              timebase.Duration
	StartOffsetMicros uint64
	SampleCount       uint64
}

// channelEntry is the on-disk form of Channel. Kind is stored by name.
type channelEntry struct {
	Name              string            `yaml:"name"`
	Kind              string            `yaml:"kind"`
	Step              timebase.Duration `yaml:"step"`
	StartOffsetMicros uint64            `yaml:"start_offset_micros"`
	SampleCount       uint64            `yaml:"sample_count"`
}

// Channels is the decoded footer of a packet channel file.
type Channels struct {
	SchemaVersion int

	// Start is the absolute time packet offsets are relative to.
	Start        timebase.Time
	PacketFormat format.PacketFormat
	// Channels is ordered by channel id.
	Channels []Channel

	PacketCount      uint64
	LastOffsetMicros uint64

	Defaulted []string
}

type channelStep struct {
	encode   func(c *Channels, m *mapping) error
	decode   func(c *Channels, raw rawBlock) error
	defaults func(c *Channels) []string
}

var channelLadder = []channelStep{
	{encode: encodeChannelV0, decode: decodeChannelV0},
	{encode: encodeChannelV1, decode: decodeChannelV1, defaults: defaultChannelV1},
}

// EncodeChannels encodes c at ChannelSchemaVersion.
func EncodeChannels(c *Channels) ([]byte, error) {
	return EncodeChannelsVersion(c, ChannelSchemaVersion)
}

// EncodeChannelsVersion encodes c at an older schema version.
func EncodeChannelsVersion(c *Channels, version int) ([]byte, error) {
	if version < 0 || version > ChannelSchemaVersion {
		return nil, fmt.Errorf("%w: %d", errs.ErrUnknownSchemaVersion, version)
	}

	m := newMapping()
	if err := m.put(keySchemaVersion, version); err != nil {
		return nil, err
	}
	if err := m.put(keyType, TypeChannels); err != nil {
		return nil, err
	}
	for _, step := range channelLadder[:version+1] {
		if err := step.encode(c, m); err != nil {
			return nil, err
		}
	}

	return m.marshal()
}

// DecodeChannels decodes a channel footer of any known schema version.
func DecodeChannels(data []byte) (*Channels, error) {
	raw, version, err := parseRaw(data)
	if err != nil {
		return nil, err
	}
	if version > ChannelSchemaVersion {
		return nil, fmt.Errorf("%w: channel footer version %d, reader supports up to %d",
			errs.ErrUnknownSchemaVersion, version, ChannelSchemaVersion)
	}
	if err := raw.checkType(TypeChannels); err != nil {
		return nil, err
	}

	c := &Channels{SchemaVersion: version}
	for v := version; v >= 0; v-- {
		if err := channelLadder[v].decode(c, raw); err != nil {
			return nil, err
		}
	}
	for _, step := range channelLadder[version+1:] {
		c.Defaulted = append(c.Defaulted, step.defaults(c)...)
	}

	return c, nil
}

func encodeChannelV0(c *Channels, m *mapping) error {
	entries := make([]channelEntry, len(c.Channels))
	for i, ch := range c.Channels {
		entries[i] = channelEntry{
			Name:              ch.Name,
			Kind:              ch.Kind.String(),
			Step:              ch.Step,
			StartOffsetMicros: ch.StartOffsetMicros,
			SampleCount:       ch.SampleCount,
		}
	}

	if err := m.put(keyStart, c.Start); err != nil {
		return err
	}
	if err := m.put(keyPacketFormat, c.PacketFormat.String()); err != nil {
		return err
	}

	return m.put(keyChannelTable, entries)
}

func decodeChannelV0(c *Channels, raw rawBlock) error {
	var packetFormat string
	var entries []channelEntry

	if err := raw.decode(keyStart, &c.Start); err != nil {
		return err
	}
	if err := raw.decode(keyPacketFormat, &packetFormat); err != nil {
		return err
	}
	if err := raw.decode(keyChannelTable, &entries); err != nil {
		return err
	}

	switch packetFormat {
	case format.PacketTagged.String():
		c.PacketFormat = format.PacketTagged
	case format.PacketLegacy.String():
		c.PacketFormat = format.PacketLegacy
	default:
		return fmt.Errorf("%w: unknown packet format %q", errs.ErrMalformedFooter, packetFormat)
	}

	seen := make(map[string]struct{}, len(entries))
	c.Channels = make([]Channel, len(entries))
	for i, e := range entries {
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("%w: channel %q listed twice", errs.ErrMalformedFooter, e.Name)
		}
		seen[e.Name] = struct{}{}

		kind := format.ChannelSparse
		switch e.Kind {
		case format.ChannelSparse.String():
		case format.ChannelDense.String():
			kind = format.ChannelDense
		default:
			return fmt.Errorf("%w: channel %q has unknown kind %q", errs.ErrMalformedFooter, e.Name, e.Kind)
		}

		c.Channels[i] = Channel{
			Name:              e.Name,
			Kind:              kind,
			Step:              e.Step,
			StartOffsetMicros: e.StartOffsetMicros,
			SampleCount:       e.SampleCount,
		}
	}

	return nil
}

func encodeChannelV1(c *Channels, m *mapping) error {
	if err := m.put(keyPacketCount, c.PacketCount); err != nil {
		return err
	}

	return m.put(keyLastOffsetMicros, c.LastOffsetMicros)
}

func decodeChannelV1(c *Channels, raw rawBlock) error {
	if err := raw.decode(keyPacketCount, &c.PacketCount); err != nil {
		return err
	}

	return raw.decode(keyLastOffsetMicros, &c.LastOffsetMicros)
}

// defaultChannelV1 derives the statistics from the channel table. The last offset
// is a lower bound since v0 files did not track it.
func defaultChannelV1(c *Channels) []string {
	c.PacketCount = 0
	c.LastOffsetMicros = 0
	for _, ch := range c.Channels {
		c.PacketCount += ch.SampleCount
		if ch.StartOffsetMicros > c.LastOffsetMicros {
			c.LastOffsetMicros = ch.StartOffsetMicros
		}
	}

	return []string{keyPacketCount, keyLastOffsetMicros}
}
