package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_WriteAndReset(t *testing.T) {
	bb := NewByteBuffer(4)

	n, err := bb.Write([]byte("schema"))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, "schema", string(bb.Bytes()))
	require.Equal(t, 6, bb.Len())

	bb.Reset()
	require.Equal(t, 0, bb.Len())
	require.GreaterOrEqual(t, cap(bb.B), 6)
}

func TestByteBuffer_Grow(t *testing.T) {
	bb := NewByteBuffer(0)
	bb.Grow(10)
	require.GreaterOrEqual(t, cap(bb.B), FooterBufferDefaultSize)

	big := NewByteBuffer(8 * FooterBufferDefaultSize)
	_, _ = big.Write(make([]byte, 8*FooterBufferDefaultSize))
	big.Grow(1)
	require.GreaterOrEqual(t, cap(big.B), 10*FooterBufferDefaultSize)
	require.Equal(t, 8*FooterBufferDefaultSize, big.Len())

	big.Grow(100 * FooterBufferDefaultSize)
	require.GreaterOrEqual(t, cap(big.B)-big.Len(), 100*FooterBufferDefaultSize)
}

func TestByteBuffer_WriteTo(t *testing.T) {
	bb := NewByteBuffer(16)
	_, _ = bb.Write([]byte("trailer"))

	var out bytes.Buffer
	n, err := bb.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.Equal(t, "trailer", out.String())
}

func TestByteBufferPool_DropsOversized(t *testing.T) {
	p := NewByteBufferPool(8, 16)

	bb := p.Get()
	require.NotNil(t, bb)
	_, _ = bb.Write(make([]byte, 32))
	p.Put(bb) // dropped, too large
	p.Put(nil)

	again := p.Get()
	require.Equal(t, 0, again.Len())
}

func TestDefaultPools(t *testing.T) {
	fb := GetFooterBuffer()
	require.Equal(t, 0, fb.Len())
	PutFooterBuffer(fb)

	pb := GetPacketBuffer()
	require.Equal(t, 0, pb.Len())
	PutPacketBuffer(pb)

	rb := GetRecordBuffer()
	require.Equal(t, 0, rb.Len())
	require.GreaterOrEqual(t, cap(rb.B), RecordBufferDefaultSize)
	_, _ = rb.Write(make([]byte, 100))
	PutRecordBuffer(rb)
	require.Equal(t, 0, GetRecordBuffer().Len())
}
