package section

import (
	"github.com/arloliu/tracefile/endian"
	"github.com/arloliu/tracefile/errs"
	"github.com/arloliu/tracefile/format"
)

const (
	// TrailerMagic identifies a closed tracefile ("TRF1").
	TrailerMagic uint32 = 0x54524631
	// TrailerSize is the fixed size of the trailer at the end of every closed file.
	TrailerSize = 32

	compressionMask = 0x000F // bits 0-3
	fileKindMask    = 0x00F0 // bits 4-7
	reservedMask    = 0xFF00 // bits 8-15, must be zero
)

// TrailerFlag packs the footer compression and the file kind.
type TrailerFlag struct {
	// Options bits 0-3 hold the footer compression type, bits 4-7 the file kind.
	// Bits 8-15 are reserved and must be zero.
	Options uint16
}

// NewTrailerFlag returns a flag for the given file kind and footer compression.
func NewTrailerFlag(kind format.FileKind, compression format.CompressionType) TrailerFlag {
	f := TrailerFlag{}
	f.SetFileKind(kind)
	f.SetCompression(compression)

	return f
}

// Compression returns the footer compression type.
func (f TrailerFlag) Compression() format.CompressionType {
	return format.CompressionType(f.Options & compressionMask)
}

// SetCompression sets the footer compression type.
func (f *TrailerFlag) SetCompression(c format.CompressionType) {
	f.Options &^= compressionMask
	f.Options |= uint16(c) & compressionMask
}

// FileKind returns the file kind.
func (f TrailerFlag) FileKind() format.FileKind {
	return format.FileKind((f.Options & fileKindMask) >> 4)
}

// SetFileKind sets the file kind.
func (f *TrailerFlag) SetFileKind(k format.FileKind) {
	f.Options &^= fileKindMask
	f.Options |= (uint16(k) << 4) & fileKindMask
}

// Validate checks the flag holds a known compression and file kind.
func (f TrailerFlag) Validate() error {
	if f.Options&reservedMask != 0 {
		return errs.ErrInvalidTrailer
	}

	switch f.Compression() {
	case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
	default:
		return errs.ErrInvalidTrailer
	}

	switch f.FileKind() {
	case format.FileRecords, format.FileChannels:
	default:
		return errs.ErrInvalidTrailer
	}

	return nil
}

// Trailer is the fixed-size block after the footer. It locates the footer so a
// reader seeks straight to it instead of scanning the payload region.
type Trailer struct {
	// SchemaVersion is the footer schema version. byte offset 4-5
	SchemaVersion uint16
	// Flag packs compression and file kind. byte offset 6-7
	Flag TrailerFlag
	// FooterOffset is the absolute byte offset of the footer, which is also the
	// end of the payload region. byte offset 8-15
	FooterOffset uint64
	// FooterLength is the stored (possibly compressed) footer length. byte offset 16-23
	FooterLength uint64
	// Checksum is the xxHash64 of the stored footer bytes. byte offset 24-31
	Checksum uint64
}

// Bytes serializes the trailer. The magic number occupies bytes 0-3.
func (t Trailer) Bytes() []byte {
	engine := endian.GetLittleEndianEngine()

	b := make([]byte, 0, TrailerSize)
	b = engine.AppendUint32(b, TrailerMagic)
	b = engine.AppendUint16(b, t.SchemaVersion)
	b = engine.AppendUint16(b, t.Flag.Options)
	b = engine.AppendUint64(b, t.FooterOffset)
	b = engine.AppendUint64(b, t.FooterLength)
	b = engine.AppendUint64(b, t.Checksum)

	return b
}

// Parse parses the trailer from exactly TrailerSize bytes.
//
// Returns:
//   - error: ErrInvalidTrailerSize, ErrFooterMissing when the magic number is
//     absent (the file was never closed for writing) or flag validation errors
func (t *Trailer) Parse(data []byte) error {
	if len(data) != TrailerSize {
		return errs.ErrInvalidTrailerSize
	}

	engine := endian.GetLittleEndianEngine()
	if engine.Uint32(data[0:4]) != TrailerMagic {
		return errs.ErrFooterMissing
	}

	t.SchemaVersion = engine.Uint16(data[4:6])
	t.Flag.Options = engine.Uint16(data[6:8])
	t.FooterOffset = engine.Uint64(data[8:16])
	t.FooterLength = engine.Uint64(data[16:24])
	t.Checksum = engine.Uint64(data[24:32])

	return t.Flag.Validate()
}

// ValidateAgainst checks the footer location is consistent with a file of the
// given total size.
func (t Trailer) ValidateAgainst(fileSize int64) error {
	if fileSize < TrailerSize {
		return errs.ErrFooterMissing
	}

	end := uint64(fileSize) - TrailerSize
	if t.FooterOffset > end || t.FooterLength != end-t.FooterOffset {
		return errs.ErrInvalidTrailer
	}

	return nil
}

// ParseTrailer parses the trailer found in the last TrailerSize bytes of data.
func ParseTrailer(data []byte) (Trailer, error) {
	if len(data) < TrailerSize {
		return Trailer{}, errs.ErrInvalidTrailerSize
	}

	t := Trailer{}
	if err := t.Parse(data[len(data)-TrailerSize:]); err != nil {
		return Trailer{}, err
	}

	return t, nil
}
