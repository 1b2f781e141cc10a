package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// maxLZ4Output bounds the declared size of a block so a corrupted prefix cannot
// trigger a huge allocation.
const maxLZ4Output = 256 * 1024 * 1024

var errLZ4Header = errors.New("lz4: invalid size prefix")

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Compressor compresses footers with LZ4 blocks.
//
// LZ4 blocks do not record their decompressed size, so the block is prefixed
// with the original length as a uvarint.
type LZ4Compressor struct{}

var _ Codec = (*LZ4Compressor)(nil)

// NewLZ4Compressor creates an LZ4 codec.
func NewLZ4Compressor() LZ4Compressor {
	return LZ4Compressor{}
}

// Compress compresses data as [uvarint length][lz4 block].
func (c LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dst := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	n := binary.PutUvarint(dst, uint64(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	written, err := lc.CompressBlock(data, dst[n:])
	if err != nil {
		return nil, err
	}

	return dst[:n+written], nil
}

// Decompress decompresses a block produced by Compress.
func (c LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	size, n := binary.Uvarint(data)
	if n <= 0 || size > maxLZ4Output {
		return nil, errLZ4Header
	}

	out := make([]byte, size)
	written, err := lz4.UncompressBlock(data[n:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	if uint64(written) != size {
		return nil, fmt.Errorf("lz4 decompression failed: got %d bytes, want %d", written, size)
	}

	return out, nil
}
