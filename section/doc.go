// Package section defines the fixed-size binary structures of tracefile files.
//
// # Record file
//
//	┌──────────────────────────────────────────────┐
//	│ record 0  (ImageBytes + TraceBytes)          │
//	│ record 1                                     │
//	│ ...                                          │
//	├──────────────────────────────────────────────┤
//	│ Footer (variable, YAML, optionally compressed)│
//	├──────────────────────────────────────────────┤
//	│ Trailer (32 bytes, fixed)                    │
//	└──────────────────────────────────────────────┘
//
// # Channel file
//
//	┌──────────────────────────────────────────────┐
//	│ packet 0 (16 bytes)                          │
//	│ packet 1                                     │
//	│ ...                                          │
//	├──────────────────────────────────────────────┤
//	│ Footer                                       │
//	├──────────────────────────────────────────────┤
//	│ Trailer (32 bytes, fixed)                    │
//	└──────────────────────────────────────────────┘
//
// # Trailer Format
//
//	Bytes  | Field          | Type   | Description
//	-------|----------------|--------|-----------------------------------------
//	0-3    | Magic          | uint32 | 0x54524631 ("TRF1")
//	4-5    | SchemaVersion  | uint16 | footer schema version
//	6-7    | Flag           | uint16 | bits 0-3 compression, bits 4-7 file kind
//	8-15   | FooterOffset   | uint64 | absolute offset of the footer
//	16-23  | FooterLength   | uint64 | stored footer length
//	24-31  | Checksum       | uint64 | xxHash64 of the stored footer
//
// # Packet Formats
//
// Tagged (current):
//
//	Bytes  | Field          | Type
//	-------|----------------|--------
//	0-7    | OffsetMicros   | uint64
//	8-11   | ChannelID      | uint32
//	12-15  | Value          | float32
//
// Legacy (single channel):
//
//	Bytes  | Field          | Type
//	-------|----------------|------------------------------------------
//	0-7    | Timestamp      | uint64
//	8-15   | Value/State    | float64, sign bit is the boolean state
//
// Everything is little-endian. The footer is written last and is the single
// commit point: a file without a valid trailer was never closed for writing.
package section
