// Package footerio writes and locates the footer and trailer at the end of a
// store file:
//
//	[payload ...][footer (possibly compressed)][trailer, 32 bytes]
//
// The trailer stores the footer offset, so a reader seeks straight to it.
package footerio

import (
	"fmt"
	"io"

	"github.com/arloliu/tracefile/compress"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
	"github.com/arloliu/tracefile/internal/hash"
	"github.com/arloliu/tracefile/internal/pool"
	"github.com/arloliu/tracefile/section"
)

// File is the subset of *os.File used here.
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
}

// Block is a located footer.
type Block struct {
	Trailer section.Trailer
	// Footer is the decompressed footer text.
	Footer []byte
}

// Commit writes footer and the trailer at offset, truncates anything beyond them
// and syncs. It returns the stored footer size.
func Commit(f File, offset int64, kind format.FileKind, version int, comp format.CompressionType, footer []byte) (int, error) {
	codec, err := compress.GetCodec(comp)
	if err != nil {
		return 0, err
	}
	stored, err := codec.Compress(footer)
	if err != nil {
		return 0, fmt.Errorf("compress footer: %w", err)
	}

	trailer := section.Trailer{
		SchemaVersion: uint16(version),
		Flag:          section.NewTrailerFlag(kind, comp),
		FooterOffset:  uint64(offset),
		FooterLength:  uint64(len(stored)),
		Checksum:      hash.Checksum(stored),
	}

	buf := pool.GetFooterBuffer()
	defer pool.PutFooterBuffer(buf)
	buf.Grow(len(stored) + section.TrailerSize)
	_, _ = buf.Write(stored)
	_, _ = buf.Write(trailer.Bytes())

	if _, err := f.WriteAt(buf.Bytes(), offset); err != nil {
		return 0, errs.IO("write footer", err)
	}
	if err := f.Truncate(offset + int64(buf.Len())); err != nil {
		return 0, errs.IO("truncate", err)
	}
	if err := f.Sync(); err != nil {
		return 0, errs.IO("sync", err)
	}

	return len(stored), nil
}

// Load locates, verifies and decompresses the footer of a file of the given
// size.
//
// Returns:
//   - errs.ErrFooterMissing when the file was never closed for writing
//   - errs.ErrTypeTagMismatch when the trailer names another file kind
//   - errs.ErrChecksumMismatch when the stored footer is corrupt
func Load(f io.ReaderAt, size int64, kind format.FileKind) (Block, error) {
	t, err := ReadTrailer(f, size)
	if err != nil {
		return Block{}, err
	}
	if got := t.Flag.FileKind(); got != kind {
		return Block{}, fmt.Errorf("%w: trailer names a %s file, want %s", errs.ErrTypeTagMismatch, got, kind)
	}

	stored := make([]byte, t.FooterLength)
	if _, err := f.ReadAt(stored, int64(t.FooterOffset)); err != nil {
		return Block{}, errs.IO("read footer", err)
	}
	if hash.Checksum(stored) != t.Checksum {
		return Block{}, errs.ErrChecksumMismatch
	}

	codec, err := compress.GetCodec(t.Flag.Compression())
	if err != nil {
		return Block{}, err
	}
	footer, err := codec.Decompress(stored)
	if err != nil {
		return Block{}, fmt.Errorf("%w: decompress: %w", errs.ErrMalformedFooter, err)
	}

	return Block{Trailer: t, Footer: footer}, nil
}

// ReadTrailer reads and validates the trailer at the end of a file of the given
// size.
func ReadTrailer(f io.ReaderAt, size int64) (section.Trailer, error) {
	if size < section.TrailerSize {
		return section.Trailer{}, errs.ErrFooterMissing
	}

	tail := make([]byte, section.TrailerSize)
	if _, err := f.ReadAt(tail, size-section.TrailerSize); err != nil {
		return section.Trailer{}, errs.IO("read trailer", err)
	}

	var t section.Trailer
	if err := t.Parse(tail); err != nil {
		return section.Trailer{}, err
	}
	if err := t.ValidateAgainst(size); err != nil {
		return section.Trailer{}, err
	}

	return t, nil
}
