// Package format holds the enumerations shared by the tracefile file formats.
package format

type (
	// CompressionType selects the codec applied to a footer block.
	CompressionType uint8
	// DataKind tags what a record file's traces measure. Members of one series
	// must share a kind.
	DataKind uint8
	// Status is the curation status of a record.
	Status uint8
	// ChannelKind tells whether a packet channel is sampled on a regular grid.
	ChannelKind uint8
	// PacketFormat selects the 16-byte packet layout of a channel file.
	PacketFormat uint8
	// FileKind identifies the footer type tag of a file.
	FileKind uint8
	// State is the lifecycle state of a store.
	State uint8
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone stores the footer as plain text.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

const (
	KindUnknown        DataKind = iota // KindUnknown is the zero kind.
	KindCellTrace                      // KindCellTrace holds cell fluorescence traces.
	KindVesselDiameter                 // KindVesselDiameter holds vessel diameter measurements.
	KindRBCVelocity                    // KindRBCVelocity holds red blood cell velocity measurements.
	KindEvents                         // KindEvents holds GPIO and event channels.
)

const (
	StatusUndecided Status = iota // StatusUndecided is the default status of a new record.
	StatusAccepted                // StatusAccepted marks a curated, kept record.
	StatusRejected                // StatusRejected marks a curated, discarded record.
)

const (
	ChannelSparse ChannelKind = iota // ChannelSparse is a logical time-to-value channel.
	ChannelDense                     // ChannelDense is sampled on a regular step.
)

const (
	PacketTagged PacketFormat = iota // PacketTagged is offset u64, channel id u32, value f32.
	PacketLegacy                     // PacketLegacy is timestamp u64, sign-packed f64 value/state.
)

const (
	FileRecords  FileKind = 0x1 // FileRecords is a record store.
	FileChannels FileKind = 0x2 // FileChannels is a packet channel store.
)

const (
	StateWriteOpen State = iota // StateWriteOpen accepts payload writes; no footer yet.
	StateClosed                 // StateClosed has its footer written and is immutable.
	StateReadOpen               // StateReadOpen was opened read-only from a closed file.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

var dataKindNames = map[DataKind]string{
	KindUnknown:        "unknown",
	KindCellTrace:      "cell-trace",
	KindVesselDiameter: "vessel-diameter",
	KindRBCVelocity:    "rbc-velocity",
	KindEvents:         "events",
}

func (k DataKind) String() string {
	if name, ok := dataKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// ParseDataKind returns the kind named s, or KindUnknown.
func ParseDataKind(s string) DataKind {
	for k, name := range dataKindNames {
		if name == s {
			return k
		}
	}

	return KindUnknown
}

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "undecided"
	}
}

func (k ChannelKind) String() string {
	if k == ChannelDense {
		return "dense"
	}

	return "sparse"
}

func (p PacketFormat) String() string {
	if p == PacketLegacy {
		return "legacy"
	}

	return "tagged"
}

func (f FileKind) String() string {
	switch f {
	case FileRecords:
		return "records"
	case FileChannels:
		return "channels"
	default:
		return "unknown"
	}
}

func (s State) String() string {
	switch s {
	case StateWriteOpen:
		return "write-open"
	case StateClosed:
		return "closed"
	case StateReadOpen:
		return "read-open"
	default:
		return "unknown"
	}
}
