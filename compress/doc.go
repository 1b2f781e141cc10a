// Package compress provides the codecs applied to tracefile footers.
//
// Footers carry one entry per record for names, statuses, colors, activity flags
// and image metrics, so files with thousands of records produce large, highly
// repetitive YAML blocks. The codec is chosen per file and recorded in the
// trailer flag, so readers never need to be told which one was used.
//
//	codec, _ := compress.GetCodec(format.CompressionZstd)
//	stored, _ := codec.Compress(footerYAML)
//	restored, _ := codec.Decompress(stored)
//
// Available codecs: None, Zstd (klauspost/compress), S2 (klauspost/compress)
// and LZ4 (pierrec/lz4).
package compress
