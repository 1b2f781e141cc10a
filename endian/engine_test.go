package endian

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngines(t *testing.T) {
	require.Equal(t, binary.LittleEndian, GetLittleEndianEngine())
	require.Equal(t, binary.BigEndian, GetBigEndianEngine())

	buf := GetLittleEndianEngine().AppendUint32(nil, 0x01020304)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf)
}

func TestFloatHelpers(t *testing.T) {
	for _, engine := range []EndianEngine{GetLittleEndianEngine(), GetBigEndianEngine()} {
		b := AppendFloat32(engine, nil, -1.25)
		require.Len(t, b, 4)
		require.Equal(t, float32(-1.25), Float32(engine, b))

		b = AppendFloat64(engine, nil, math.Pi)
		require.Len(t, b, 8)
		require.Equal(t, math.Pi, Float64(engine, b))

		nan := Float32(engine, AppendFloat32(engine, nil, float32(math.NaN())))
		require.True(t, math.IsNaN(float64(nan)))
	}
}
