package record

import "github.com/arloliu/tracefile/endian"

// AppendTrace appends values as a little-endian float32 trace block.
func AppendTrace(buf []byte, values []float32) []byte {
	engine := endian.GetLittleEndianEngine()
	for _, v := range values {
		buf = endian.AppendFloat32(engine, buf, v)
	}

	return buf
}

// DecodeTrace decodes a trace block. Trailing bytes short of a sample are
// ignored.
func DecodeTrace(block []byte) []float32 {
	engine := endian.GetLittleEndianEngine()

	out := make([]float32, len(block)/sampleSize)
	for i := range out {
		out[i] = endian.Float32(engine, block[i*sampleSize:])
	}

	return out
}
