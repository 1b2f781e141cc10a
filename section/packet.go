package section

import (
	"math"

	"github.com/arloliu/tracefile/endian"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
)

// PacketSize is the fixed size of a packet in both layouts.
const PacketSize = 16

const legacyStateMask = uint64(1) << 63

// Packet is one sample of one channel.
type Packet struct {
	// OffsetMicros is the time since the file start in microseconds. byte offset 0-7
	OffsetMicros uint64
	// ChannelID identifies the channel in the footer's channel table. byte offset 8-11
	ChannelID uint32
	// Value is the sample value. byte offset 12-15
	Value float32
	// State is the boolean state carried by the legacy layout's sign bit.
	// It is not stored by the tagged layout.
	State bool
}

// AppendPacket appends p in the given layout.
//
// The legacy layout has no channel id: bytes 0-7 hold the timestamp and bytes
// 8-15 a float64 whose magnitude is the value and whose sign bit is the state.
func AppendPacket(buf []byte, p Packet, layout format.PacketFormat) []byte {
	engine := endian.GetLittleEndianEngine()
	buf = engine.AppendUint64(buf, p.OffsetMicros)

	if layout == format.PacketLegacy {
		bits := math.Float64bits(math.Abs(float64(p.Value)))
		if p.State {
			bits |= legacyStateMask
		}

		return engine.AppendUint64(buf, bits)
	}

	buf = engine.AppendUint32(buf, p.ChannelID)

	return endian.AppendFloat32(engine, buf, p.Value)
}

// ParsePacket decodes one packet from exactly PacketSize bytes.
func ParsePacket(data []byte, layout format.PacketFormat) (Packet, error) {
	if len(data) != PacketSize {
		return Packet{}, errs.ErrPayloadSize
	}

	engine := endian.GetLittleEndianEngine()
	p := Packet{OffsetMicros: engine.Uint64(data[0:8])}

	if layout == format.PacketLegacy {
		bits := engine.Uint64(data[8:16])
		p.State = bits&legacyStateMask != 0
		p.Value = float32(math.Float64frombits(bits &^ legacyStateMask))

		return p, nil
	}

	p.ChannelID = engine.Uint32(data[8:12])
	p.Value = endian.Float32(engine, data[12:16])

	return p, nil
}
