// Package pool provides reusable byte buffers for footer encoding, record
// assembly and packet batching.
package pool

import (
	"io"
	"sync"
)

const (
	FooterBufferDefaultSize  = 1024 * 16  // 16KiB
	FooterBufferMaxThreshold = 1024 * 512 // 512KiB
	PacketBufferDefaultSize  = 1024 * 4   // 256 packets
	PacketBufferMaxThreshold = 1024 * 64
	RecordBufferDefaultSize  = 1024 * 64       // 64KiB
	RecordBufferMaxThreshold = 1024 * 1024 * 4 // 4MiB
)

// ByteBuffer is a growable byte slice.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a buffer with the given capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, defaultSize)}
}

// Bytes returns the buffered bytes. The slice is only valid until the next write.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset empties the buffer and keeps its memory.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the number of buffered bytes.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Grow ensures room for n more bytes. Small buffers grow by
// FooterBufferDefaultSize, larger ones by a quarter of their capacity.
func (bb *ByteBuffer) Grow(n int) {
	if cap(bb.B)-len(bb.B) >= n {
		return
	}

	growBy := FooterBufferDefaultSize
	if cap(bb.B) > 4*FooterBufferDefaultSize {
		growBy = cap(bb.B) / 4
	}
	growBy = max(growBy, n)

	newBuf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(newBuf, bb.B)
	bb.B = newBuf
}

// Write appends data. It never fails.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// WriteTo writes the buffered bytes to w.
func (bb *ByteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(bb.B)
	return int64(n), err
}

// ByteBufferPool recycles ByteBuffers. Buffers that grew past maxThreshold are
// dropped instead of retained.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool of buffers with the given default capacity.
func NewByteBufferPool(defaultSize int, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves an empty buffer.
func (bbp *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := bbp.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns a buffer to the pool.
func (bbp *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}
	if bbp.maxThreshold > 0 && cap(bb.B) > bbp.maxThreshold {
		return
	}

	bb.Reset()
	bbp.pool.Put(bb)
}

var (
	footerPool = NewByteBufferPool(FooterBufferDefaultSize, FooterBufferMaxThreshold)
	packetPool = NewByteBufferPool(PacketBufferDefaultSize, PacketBufferMaxThreshold)
	recordPool = NewByteBufferPool(RecordBufferDefaultSize, RecordBufferMaxThreshold)
)

// GetFooterBuffer retrieves a buffer for encoding a footer.
func GetFooterBuffer() *ByteBuffer {
	return footerPool.Get()
}

// PutFooterBuffer returns a footer buffer.
func PutFooterBuffer(bb *ByteBuffer) {
	footerPool.Put(bb)
}

// GetPacketBuffer retrieves a buffer for batching packets.
func GetPacketBuffer() *ByteBuffer {
	return packetPool.Get()
}

// PutPacketBuffer returns a packet buffer.
func PutPacketBuffer(bb *ByteBuffer) {
	packetPool.Put(bb)
}

// GetRecordBuffer retrieves a buffer for assembling one record payload.
func GetRecordBuffer() *ByteBuffer {
	return recordPool.Get()
}

// PutRecordBuffer returns a record buffer.
func PutRecordBuffer(bb *ByteBuffer) {
	recordPool.Put(bb)
}
